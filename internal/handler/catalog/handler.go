package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/promptdesk/internal/model/catalog"
	"github.com/zhouzirui/promptdesk/pkg/utils"
)

// Handler 模型列表的HTTP处理器
type Handler struct {
	models catalog.Store
}

// New 创建模型列表处理器
func New(models catalog.Store) *Handler {
	return &Handler{models: models}
}

// RegisterRoutes 注册模型相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/models", h.handleListModels)
}

// handleListModels 列出可选模型
func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.models.List())
}
