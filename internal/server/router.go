// Package server assembles the HTTP router.
package server

import (
	"net/http"

	"github.com/cloo-solutions/obsidian/internal/api/handlers"
	"github.com/cloo-solutions/obsidian/internal/api/middleware"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultMaxUploadBytes int64 = 50 * 1024 * 1024
	defaultMaxJSONBytes   int64 = 1024 * 1024
)

type RouterConfig struct {
	Logger         *zap.Logger
	MaxUploadBytes int64
	MaxJSONBytes   int64

	// ActiveVersion reports the index version serving queries, for tracing.
	ActiveVersion func() (int64, bool)

	DocumentHandler *handlers.DocumentHandler
	QueryHandler    *handlers.QueryHandler
	AdminHandler    *handlers.AdminHandler
	HealthHandler   *handlers.HealthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	limits := middleware.BodyLimits{JSON: cfg.MaxJSONBytes, Upload: cfg.MaxUploadBytes}
	if limits.Upload <= 0 {
		limits.Upload = defaultMaxUploadBytes
	}
	if limits.JSON <= 0 {
		limits.JSON = defaultMaxJSONBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Sentry(cfg.ActiveVersion))
	r.Use(middleware.AccessLog(logging.OrNop(cfg.Logger)))
	r.Use(middleware.LimitBody(limits))

	r.Get("/health", cfg.HealthHandler.Health)

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", cfg.DocumentHandler.Create)
		r.Post("/batch", cfg.DocumentHandler.CreateBatch)
		r.Get("/", cfg.DocumentHandler.List)
		r.Get("/{id}", cfg.DocumentHandler.Get)
		r.Get("/{id}/chunks", cfg.DocumentHandler.Chunks)
		r.Delete("/{id}", cfg.DocumentHandler.Delete)
	})

	r.Post("/query", cfg.QueryHandler.Query)
	r.Get("/query/history", cfg.QueryHandler.History)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/rebuild-index", cfg.AdminHandler.Rebuild)
		r.Get("/index", cfg.AdminHandler.IndexStatus)
		r.Get("/stats", cfg.AdminHandler.Stats)
	})

	return r
}
