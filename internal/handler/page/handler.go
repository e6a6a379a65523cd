// Package page serves the single-page chat UI. Every interaction is a form post
// followed by a redirect, and the conversation is redrawn on each GET.
package page

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatHandler "github.com/zhouzirui/promptdesk/internal/handler/chat"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
	"github.com/zhouzirui/promptdesk/internal/model/chat"
	"github.com/zhouzirui/promptdesk/internal/render"
	"github.com/zhouzirui/promptdesk/internal/service/ai"
	chatService "github.com/zhouzirui/promptdesk/internal/service/chat"
)

// CookieName holds the session identifier of a browser.
const CookieName = "promptdesk_session"

//go:embed templates/index.html
var templates embed.FS

var indexTemplate = template.Must(template.ParseFS(templates, "templates/index.html"))

// Handler renders the chat page.
type Handler struct {
	chatSvc  *chatService.Service
	models   catalog.Store
	renderer *render.Renderer
	logger   *zap.Logger
}

// New creates the page handler.
func New(chatSvc *chatService.Service, models catalog.Store, renderer *render.Renderer, logger *zap.Logger) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		models:   models,
		renderer: renderer,
		logger:   logger,
	}
}

// RegisterRoutes registers the page routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Post("/settings", h.handleSettings)
	r.Post("/submit", h.handleSubmit)
	r.Post("/reset", h.handleReset)
}

type modelOption struct {
	ID       string
	Label    string
	Selected bool
}

type turnView struct {
	Role chat.Role
	HTML template.HTML
}

type pageData struct {
	Models      []modelOption
	HasAPIKey   bool
	Notice      chat.Notice
	Turns       []turnView
	BubbleClass string
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.ensureSession(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}

	ctx := r.Context()
	settings, err := h.chatSvc.Settings(ctx, sessionID)
	if err != nil {
		h.fail(w, err)
		return
	}
	conversation, err := h.chatSvc.Conversation(ctx, sessionID)
	if err != nil {
		h.fail(w, err)
		return
	}

	data := pageData{
		HasAPIKey: settings.HasAPIKey(),
		Notice:    h.chatSvc.TakeNotice(ctx, sessionID),
	}
	if h.renderer.Mode() == render.ModePlain {
		data.BubbleClass = "plain"
	}
	for _, m := range h.models.List() {
		data.Models = append(data.Models, modelOption{ID: m.ID, Label: m.Label, Selected: m.ID == settings.ModelID})
	}
	for turn := range conversation.Render() {
		data.Turns = append(data.Turns, turnView{Role: turn.Role, HTML: h.renderer.HTML(turn.Content)})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.Error("failed to render page", zap.Error(err))
	}
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.ensureSession(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	current, err := h.chatSvc.Settings(ctx, sessionID)
	if err != nil {
		h.fail(w, err)
		return
	}

	next := current
	if key := strings.TrimSpace(r.PostForm.Get("api_key")); key != "" {
		next.APIKey = key
	}
	if r.PostForm.Get("forget") != "" {
		next.APIKey = ""
	}

	modelID, err := chatHandler.ResolveModel(ctx, h.chatSvc, h.models, sessionID, r.PostForm.Get("model"))
	if err != nil {
		h.redirectWithNotice(w, r, sessionID, noticeFor(err))
		return
	}
	next.ModelID = modelID

	if err := h.chatSvc.UpdateSettings(ctx, sessionID, next); err != nil {
		h.fail(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.ensureSession(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	modelID, err := chatHandler.ResolveModel(ctx, h.chatSvc, h.models, sessionID, "")
	if err != nil {
		h.redirectWithNotice(w, r, sessionID, noticeFor(err))
		return
	}

	req := chatService.Request{Prompt: r.PostForm.Get("prompt"), ModelID: modelID}
	if err := h.chatSvc.Submit(ctx, sessionID, req); err != nil {
		h.redirectWithNotice(w, r, sessionID, noticeFor(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.ensureSession(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}

	conversation, err := h.chatSvc.Conversation(r.Context(), sessionID)
	if err != nil {
		h.fail(w, err)
		return
	}
	conversation.Reset()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ensureSession returns the session bound to the request cookie, creating a new
// one when the cookie is missing or the session has expired.
func (h *Handler) ensureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	ctx := r.Context()
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		if _, err := h.chatSvc.GetSession(ctx, cookie.Value); err == nil {
			return cookie.Value, nil
		}
	}

	session, err := h.chatSvc.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	if def, ok := h.models.Default(); ok {
		if err := h.chatSvc.UpdateSettings(ctx, session.ID, chat.Settings{ModelID: def.ID}); err != nil {
			return "", err
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	return session.ID, nil
}

func (h *Handler) redirectWithNotice(w http.ResponseWriter, r *http.Request, sessionID string, notice chat.Notice) {
	if err := h.chatSvc.SetNotice(r.Context(), sessionID, notice); err != nil {
		h.logger.Warn("failed to store notice", zap.Error(err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Error("page request failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// noticeFor turns a submission error into the message shown above the form.
func noticeFor(err error) chat.Notice {
	var aiErr *ai.Error
	switch {
	case errors.Is(err, chatService.ErrMissingCredential):
		return chat.Notice{Level: chat.NoticeError, Text: "Client is not initialized. Provide a valid API key in the sidebar."}
	case errors.Is(err, chatService.ErrEmptyPrompt):
		return chat.Notice{Level: chat.NoticeWarning, Text: "Please enter a prompt."}
	case chatHandler.IsUnknownModel(err):
		return chat.Notice{Level: chat.NoticeError, Text: err.Error()}
	case errors.As(err, &aiErr):
		source := aiErr.Provider
		if source == "" {
			source = "model service"
		}
		return chat.Notice{Level: chat.NoticeError, Text: fmt.Sprintf("Error from %s API: %s", source, aiErr.Message)}
	default:
		return chat.Notice{Level: chat.NoticeError, Text: err.Error()}
	}
}
