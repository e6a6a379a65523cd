package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	catalogHandler "github.com/zhouzirui/promptdesk/internal/handler/catalog"
	chatHandler "github.com/zhouzirui/promptdesk/internal/handler/chat"
	"github.com/zhouzirui/promptdesk/internal/handler/page"
	"github.com/zhouzirui/promptdesk/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/promptdesk/internal/middleware"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
	"github.com/zhouzirui/promptdesk/internal/render"
	chatService "github.com/zhouzirui/promptdesk/internal/service/chat"
	"github.com/zhouzirui/promptdesk/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, models catalog.Store, renderer *render.Renderer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Server-rendered chat page
	page.New(chatSvc, models, renderer, logger).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.CORS)

		catalogHandler.New(models).RegisterRoutes(api)
		chatHandler.New(chatSvc, models).RegisterRoutes(api)
		ws.New(chatSvc, models, logger).RegisterRoutes(api)
	})

	return r
}
