package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/promptdesk/internal/handler/apierror"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
	"github.com/zhouzirui/promptdesk/internal/model/chat"
	chatService "github.com/zhouzirui/promptdesk/internal/service/chat"
	"github.com/zhouzirui/promptdesk/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	models  catalog.Store
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, models catalog.Store) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		models:  models,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(s chi.Router) {
		s.Get("/", h.handleGetSession)
		s.Delete("/", h.handleDeleteSession)
		s.Put("/settings", h.handleUpdateSettings)
		s.Post("/submit", h.handleSubmit)
		s.Get("/turns", h.handleListTurns)
	})
}

type sessionView struct {
	chat.Session
	Model     string `json:"model"`
	HasAPIKey bool   `json:"hasApiKey"`
	Turns     int    `json:"turns"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		apierror.Respond(w, err)
		return
	}

	if def, ok := h.models.Default(); ok {
		if err := h.chatSvc.UpdateSettings(r.Context(), session.ID, chat.Settings{ModelID: def.ID}); err != nil {
			apierror.Respond(w, err)
			return
		}
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleGetSession 查询会话与侧栏设置，不返回 API Key
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	view, err := h.sessionView(r.Context(), sessionID)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

// handleDeleteSession 结束会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		apierror.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateSettings 保存 API Key 与模型选择
func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		APIKey string `json:"apiKey"`
		Model  string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondErrorBody(w, http.StatusBadRequest, utils.ErrorBody{Error: "invalid request body", Code: apierror.CodeBadRequest})
		return
	}

	modelID, err := h.resolveModel(r.Context(), sessionID, payload.Model)
	if err != nil {
		respondResolveError(w, err)
		return
	}

	if err := h.chatSvc.UpdateSettings(r.Context(), sessionID, chat.Settings{APIKey: payload.APIKey, ModelID: modelID}); err != nil {
		apierror.Respond(w, err)
		return
	}

	view, err := h.sessionView(r.Context(), sessionID)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

// handleSubmit 提交一次提问
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Prompt string `json:"prompt"`
		Model  string `json:"model"`
		APIKey string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondErrorBody(w, http.StatusBadRequest, utils.ErrorBody{Error: "invalid request body", Code: apierror.CodeBadRequest})
		return
	}

	modelID, err := h.resolveModel(r.Context(), sessionID, payload.Model)
	if err != nil {
		respondResolveError(w, err)
		return
	}

	req := chatService.Request{Prompt: payload.Prompt, ModelID: modelID, APIKey: payload.APIKey}
	if err := h.chatSvc.Submit(r.Context(), sessionID, req); err != nil {
		apierror.Respond(w, err)
		return
	}

	h.respondTurns(w, r, sessionID)
}

// handleListTurns 返回会话历史
func (h *Handler) handleListTurns(w http.ResponseWriter, r *http.Request) {
	h.respondTurns(w, r, chi.URLParam(r, "sessionID"))
}

func (h *Handler) respondTurns(w http.ResponseWriter, r *http.Request, sessionID string) {
	turns, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		apierror.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (h *Handler) sessionView(ctx context.Context, sessionID string) (sessionView, error) {
	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		return sessionView{}, err
	}
	settings, err := h.chatSvc.Settings(ctx, sessionID)
	if err != nil {
		return sessionView{}, err
	}
	conversation, err := h.chatSvc.Conversation(ctx, sessionID)
	if err != nil {
		return sessionView{}, err
	}

	return sessionView{
		Session:   session,
		Model:     settings.ModelID,
		HasAPIKey: settings.HasAPIKey(),
		Turns:     conversation.Len(),
	}, nil
}

type unknownModelError struct {
	id string
}

func (e unknownModelError) Error() string {
	return fmt.Sprintf("model %q is not available", e.id)
}

// resolveModel validates a requested model; an empty request falls back to the
// stored setting and then to the catalog default.
func (h *Handler) resolveModel(ctx context.Context, sessionID, requested string) (string, error) {
	return ResolveModel(ctx, h.chatSvc, h.models, sessionID, requested)
}

// ResolveModel is shared with the page and websocket handlers.
func ResolveModel(ctx context.Context, chatSvc *chatService.Service, models catalog.Store, sessionID, requested string) (string, error) {
	if requested != "" {
		if _, ok := models.FindByID(requested); !ok {
			return "", unknownModelError{id: requested}
		}
		return requested, nil
	}

	settings, err := chatSvc.Settings(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if settings.ModelID != "" {
		return settings.ModelID, nil
	}
	if def, ok := models.Default(); ok {
		return def.ID, nil
	}
	return "", unknownModelError{}
}

// IsUnknownModel reports whether err came from ResolveModel rejecting a model.
func IsUnknownModel(err error) bool {
	_, ok := err.(unknownModelError)
	return ok
}

func respondResolveError(w http.ResponseWriter, err error) {
	if IsUnknownModel(err) {
		utils.RespondErrorBody(w, http.StatusBadRequest, utils.ErrorBody{Error: err.Error(), Code: apierror.CodeUnknownModel})
		return
	}
	apierror.Respond(w, err)
}
