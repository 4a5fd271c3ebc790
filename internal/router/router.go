package router

import (
	"net/http"

	"aiops-sync-queue/internal/handler"
	"aiops-sync-queue/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	QueueHandler   *handler.QueueHandler
	AuthMiddleware func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// AUTHENTICATED routes (use Group to apply auth middleware only to these)
	r.Group(func(r chi.Router) {
		// Apply auth middleware only to this group
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			// Health check endpoints
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			// Sync queue endpoints, partitioned by tenant
			if cfg.QueueHandler != nil {
				r.Route("/queue/{tenant_id}", func(r chi.Router) {
					r.Post("/items", cfg.QueueHandler.Enqueue)
					r.Get("/items/{id}", cfg.QueueHandler.GetItem)
					r.Post("/items/{id}/progress", cfg.QueueHandler.MarkInProgress)
					r.Post("/items/{id}/complete", cfg.QueueHandler.MarkCompleted)
					r.Post("/items/{id}/fail", cfg.QueueHandler.MarkFailed)
					r.Post("/items/{id}/conflict", cfg.QueueHandler.MarkConflict)
					r.Post("/items/{id}/cancel", cfg.QueueHandler.MarkCancelled)
					r.Post("/batch", cfg.QueueHandler.NextBatch)
					r.Post("/clear", cfg.QueueHandler.Clear)
					r.Post("/retry-failed", cfg.QueueHandler.RetryFailed)
					r.Get("/stats", cfg.QueueHandler.Stats)
				})
			}
		})
	})

	return r
}
