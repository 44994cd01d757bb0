package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowmill/flowmill/config"
	"github.com/flowmill/flowmill/pkg/api/handlers"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/logger"
	"github.com/flowmill/flowmill/pkg/worker"
)

func testServer(t *testing.T, cfg *config.Config) *HTTPServer {
	t.Helper()

	registry := worker.NewRegistry()
	err := registry.Register(&worker.Func{
		WorkerName: "echo",
		Types:      []string{"echo"},
		Fn: func(ctx context.Context, task *worker.Task) (*worker.Result, error) {
			return &worker.Result{Success: true}, nil
		},
	})
	if err != nil {
		t.Fatalf("register worker: %v", err)
	}

	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stdout"})
	eng := engine.New(registry, engine.WithLogger(log))

	return NewHTTPServer(cfg, log, &Handlers{
		Workflow: handlers.NewWorkflowHandler(eng, log),
		Template: handlers.NewTemplateHandler(eng, log),
		Health:   handlers.NewHealthHandler(eng),
	})
}

func TestNewHTTPServer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 18080

	srv := testServer(t, cfg)

	if srv.server.Addr != "127.0.0.1:18080" {
		t.Errorf("unexpected addr %s", srv.server.Addr)
	}
	if srv.server.ReadTimeout != cfg.Server.HTTP.ReadTimeout {
		t.Errorf("read timeout not applied")
	}
	if srv.Router() == nil {
		t.Error("router not assembled")
	}
}

func TestHTTPServer_StopsRateLimiterOnShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.RateLimit.Enabled = true
	cfg.Server.RateLimit.RequestsPerSecond = 100
	cfg.Server.RateLimit.Burst = 10

	srv := testServer(t, cfg)
	if srv.limiter == nil {
		t.Fatal("expected rate limiter with rate limiting enabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// Stop is idempotent, so a second call after Shutdown must not panic.
	srv.limiter.Stop()
}

func TestHTTPServer_NoRateLimiterWhenDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.RateLimit.Enabled = false

	srv := testServer(t, cfg)
	if srv.limiter != nil {
		t.Error("expected no rate limiter with rate limiting disabled")
	}
}

func TestHTTPServer_RouterServes(t *testing.T) {
	srv := testServer(t, config.DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestHTTPServer_StartAndShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 18081

	srv := testServer(t, cfg)

	done := make(chan error, 1)
	go func() {
		done <- srv.Start()
	}()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://127.0.0.1:18081/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("start did not return after shutdown")
	}
}
