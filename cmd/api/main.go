package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kevjes/liberal-api/internal/config"
	"github.com/Kevjes/liberal-api/internal/database"
	"github.com/Kevjes/liberal-api/internal/handler"
	"github.com/Kevjes/liberal-api/internal/middleware"
	"github.com/Kevjes/liberal-api/internal/render"
	"github.com/Kevjes/liberal-api/internal/repository"
	"github.com/Kevjes/liberal-api/internal/scheduler"
	"github.com/Kevjes/liberal-api/internal/service"
	"github.com/Kevjes/liberal-api/internal/storage"
	"github.com/Kevjes/liberal-api/internal/utils/email"
	"github.com/go-chi/chi"
	chimw "github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(ctx, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db, logger); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	files, err := storage.New(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	renderer := render.NewRenderer(
		render.NewImageLoader(files, logger),
		render.NewQREncoder(),
		cfg.CardBackgroundPath,
		cfg.CardFont,
		logger,
	)
	svc := service.NewService(repo, renderer, email.NewSender(cfg, logger), files, logger, cfg)
	if cfg.BootstrapAdmin != "" {
		if err := svc.EnsureAdmin(ctx, cfg.BootstrapAdmin, cfg.BootstrapAdminPass); err != nil {
			logger.Fatalf("Failed to bootstrap admin: %v", err)
		}
	}
	h := handler.NewHandler(svc, logger, cfg.MaxUploadBytes)

	// Setup router
	r := mux.NewRouter()
	if local, ok := files.(*storage.LocalStorage); ok {
		r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(local.Root()))))
	}
	h.RegisterRoutes(r,
		middleware.AuthMiddleware(svc),
		httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute),
	)

	// Wrapped outside the router so preflights and unmatched paths pass through too
	stack := chi.Chain(
		chimw.RequestID,
		chimw.RealIP,
		middleware.RequestLogger(logger),
		chimw.Recoverer,
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	digest := scheduler.NewDigestWorker(svc, logger)
	if err := digest.Start(cfg.DigestSchedule); err != nil {
		logger.Fatalf("Failed to start digest worker: %v", err)
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      stack.Handler(r),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	select {
	case <-digest.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("Digest job still running at shutdown")
	}
	logger.Info("Server gracefully stopped")
}
