// Package api provides the HTTP API server.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/flowmill/flowmill/config"
	"github.com/flowmill/flowmill/pkg/api/handlers"
	"github.com/flowmill/flowmill/pkg/api/middleware"
	"github.com/flowmill/flowmill/pkg/logger"
)

// Handlers bundles the endpoint handlers wired into the router.
type Handlers struct {
	Workflow  *handlers.WorkflowHandler
	Template  *handlers.TemplateHandler
	Health    *handlers.HealthHandler
	WebSocket *handlers.WebSocketHandler

	// Metrics enables the HTTP metrics middleware when set.
	Metrics middleware.MetricsRecorder
}

// NewRouter assembles the chi router with the standard middleware chain.
// A non-nil limiter enables per-client rate limiting; the caller owns its
// lifecycle and stops it on shutdown.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers, limiter *middleware.RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	if limiter != nil {
		r.Use(limiter.Middleware())
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	RegisterRoutes(r, h)
	return r
}

// RegisterRoutes mounts every API route on the router.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if h.Workflow != nil {
			r.Route("/workflows", func(r chi.Router) {
				r.Post("/", h.Workflow.Execute)
				r.Get("/", h.Workflow.List)
				r.Get("/{id}", h.Workflow.Get)
				r.Post("/{id}/cancel", h.Workflow.Cancel)
				r.Get("/{id}/steps/{sid}/result", h.Workflow.StepResult)
			})
		}

		if h.Template != nil {
			r.Route("/templates", func(r chi.Router) {
				r.Post("/", h.Template.Create)
				r.Get("/", h.Template.List)
				r.Get("/{id}", h.Template.Get)
				r.Get("/{id}/plan", h.Template.Plan)
			})
		}
	})

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	if h.WebSocket != nil {
		r.Get("/ws/events", h.WebSocket.ServeHTTP)
	}
}
