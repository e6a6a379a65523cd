package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/promptdesk/internal/handler/apierror"
	chatHandler "github.com/zhouzirui/promptdesk/internal/handler/chat"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
	"github.com/zhouzirui/promptdesk/internal/model/chat"
	chatService "github.com/zhouzirui/promptdesk/internal/service/chat"
	"github.com/zhouzirui/promptdesk/pkg/utils"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 54 * time.Second
)

// Handler WebSocket 对话处理器
type Handler struct {
	chatSvc  *chatService.Service
	models   catalog.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// readTimeout 为空闲连接的读超时，pingInterval 需小于它
	readTimeout  time.Duration
	pingInterval time.Duration
}

// New 创建WebSocket处理器
func New(chatSvc *chatService.Service, models catalog.Store, logger *zap.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		models:  models,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout:  defaultReadTimeout,
		pingInterval: defaultPingInterval,
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// submitMessage 提交消息
type submitMessage struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	APIKey string `json:"apiKey,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type historyPayload struct {
	Turns []chat.Turn `json:"turns"`
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		apierror.Respond(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("websocket connected", zap.String("session_id", sessionID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	out := make(chan outgoingMessage, 8)
	done := make(chan struct{})
	go h.writeLoop(ctx, conn, out, done)
	defer func() {
		cancel()
		<-done
	}()

	// 写协程退出后丢弃剩余消息
	send := func(msg outgoingMessage) {
		select {
		case out <- msg:
		case <-done:
		}
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}
		if msg.SessionID != "" && msg.SessionID != sessionID {
			send(errorMessage(sessionID, utils.ErrorBody{Error: "session mismatch", Code: apierror.CodeBadRequest}))
			continue
		}

		// 处理期间不读连接，pong 无法被消费；暂停读超时直到生成结束
		conn.SetReadDeadline(time.Time{})
		h.handleMessage(ctx, sessionID, &msg, send)
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) handleMessage(ctx context.Context, sessionID string, msg *inboundMessage, send func(outgoingMessage)) {
	switch msg.Type {
	case "submit":
		h.handleSubmit(ctx, sessionID, msg.Data, send)
	case "history":
		send(h.historyMessage(ctx, sessionID))
	case "ping":
		send(newMessage("pong", sessionID, nil))
	default:
		send(errorMessage(sessionID, utils.ErrorBody{Error: "unsupported message type: " + msg.Type, Code: apierror.CodeBadRequest}))
	}
}

// handleSubmit 在当前连接上同步处理一次提交；同一会话的提交由服务端串行执行。
func (h *Handler) handleSubmit(ctx context.Context, sessionID string, raw json.RawMessage, send func(outgoingMessage)) {
	var submit submitMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &submit); err != nil {
			send(errorMessage(sessionID, utils.ErrorBody{Error: "invalid submit payload", Code: apierror.CodeBadRequest}))
			return
		}
	}

	modelID, err := chatHandler.ResolveModel(ctx, h.chatSvc, h.models, sessionID, submit.Model)
	if err != nil {
		send(h.errorFrom(sessionID, err))
		return
	}

	send(newMessage("pending", sessionID, map[string]string{"model": modelID}))

	req := chatService.Request{Prompt: submit.Prompt, ModelID: modelID, APIKey: submit.APIKey}
	if err := h.chatSvc.Submit(ctx, sessionID, req); err != nil {
		send(h.errorFrom(sessionID, err))
		return
	}
	send(h.historyMessage(ctx, sessionID))
}

func (h *Handler) historyMessage(ctx context.Context, sessionID string) outgoingMessage {
	turns, err := h.chatSvc.LoadTranscript(ctx, sessionID)
	if err != nil {
		return h.errorFrom(sessionID, err)
	}
	return newMessage("history", sessionID, historyPayload{Turns: turns})
}

func (h *Handler) errorFrom(sessionID string, err error) outgoingMessage {
	if chatHandler.IsUnknownModel(err) {
		return errorMessage(sessionID, utils.ErrorBody{Error: err.Error(), Code: apierror.CodeUnknownModel})
	}
	_, body := apierror.FromError(err)
	return errorMessage(sessionID, body)
}

// writeLoop 负责所有写操作并定期发送ping
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan outgoingMessage, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("websocket write failed", zap.String("type", msg.Type), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func newMessage(kind, sessionID string, data any) outgoingMessage {
	return outgoingMessage{
		Type:      kind,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

func errorMessage(sessionID string, body utils.ErrorBody) outgoingMessage {
	return newMessage("error", sessionID, body)
}
