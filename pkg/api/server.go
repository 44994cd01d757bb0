package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmill/flowmill/config"
	"github.com/flowmill/flowmill/pkg/api/middleware"
	"github.com/flowmill/flowmill/pkg/logger"
)

// Server is the HTTP server lifecycle.
type Server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// HTTPServer serves the flowmill API.
type HTTPServer struct {
	config  *config.Config
	server  *http.Server
	router  chi.Router
	logger  logger.Logger
	limiter *middleware.RateLimiter
}

// NewHTTPServer builds the server with its router and middleware chain.
func NewHTTPServer(cfg *config.Config, log logger.Logger, h *Handlers) *HTTPServer {
	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(&cfg.Server.RateLimit)
	}
	router := NewRouter(cfg, log, h, limiter)

	srv := &http.Server{
		Addr:           cfg.Server.ListenAddr(),
		Handler:        router,
		ReadTimeout:    cfg.Server.HTTP.ReadTimeout,
		WriteTimeout:   cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:    cfg.Server.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.Server.HTTP.MaxHeaderBytes,
	}

	return &HTTPServer{
		config:  cfg,
		server:  srv,
		router:  router,
		logger:  log,
		limiter: limiter,
	}
}

// Start blocks serving requests until Shutdown or a listen failure.
func (s *HTTPServer) Start() error {
	s.logger.Info("http server starting",
		"addr", s.server.Addr,
		"read_timeout", s.config.Server.HTTP.ReadTimeout,
		"write_timeout", s.config.Server.HTTP.WriteTimeout,
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.logger.Info("http server stopped")
	return nil
}

// Router exposes the assembled router, primarily for tests.
func (s *HTTPServer) Router() chi.Router {
	return s.router
}
