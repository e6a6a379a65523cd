package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/promptdesk/internal/config"
	"github.com/zhouzirui/promptdesk/internal/handler"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
	"github.com/zhouzirui/promptdesk/internal/render"
	"github.com/zhouzirui/promptdesk/internal/service/ai"
	"github.com/zhouzirui/promptdesk/internal/service/chat"
	"github.com/zhouzirui/promptdesk/pkg/logger"
)

const janitorInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.NewLogger(false).Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.NewLogger(cfg.Log.Debug)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Debug("no .env file loaded, using system environment variables only", zap.Error(envErr))
	}

	factory, err := ai.NewFactory(cfg.AI)
	if err != nil {
		log.Fatal("failed to initialize model client factory", zap.Error(err))
	}
	models := catalog.NewMemoryStore(cfg.AI.Catalog())

	chatService := chat.NewService(factory,
		chat.WithIdleTTL(cfg.Session.IdleTTL),
		chat.WithLogger(log.Named("chat")),
	)
	go chatService.RunJanitor(ctx, janitorInterval)

	renderer, err := render.New(render.Mode(cfg.Render.Mode))
	if err != nil {
		log.Fatal("failed to initialize renderer", zap.Error(err))
	}

	log.Info("chat backend configured",
		zap.String("provider", cfg.AI.Provider),
		zap.Int("models", len(models.List())),
		zap.String("render_mode", cfg.Render.Mode),
		zap.Duration("session_idle_ttl", cfg.Session.IdleTTL),
	)

	router := handler.NewRouter(chatService, models, renderer, log.Named("http"))

	startServer(ctx, log, cfg.Server, router)
}

func startServer(ctx context.Context, log *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("promptdesk listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
