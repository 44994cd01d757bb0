package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowmill/flowmill/config"
	"github.com/flowmill/flowmill/pkg/api/handlers"
	"github.com/flowmill/flowmill/pkg/api/middleware"
	"github.com/flowmill/flowmill/pkg/api/models"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/logger"
	"github.com/flowmill/flowmill/pkg/template"
	"github.com/flowmill/flowmill/pkg/worker"
)

func testRouterSetup(t *testing.T) (chi.Router, *engine.Engine) {
	t.Helper()

	registry := worker.NewRegistry()
	err := registry.Register(&worker.Func{
		WorkerName: "echo",
		Types:      []string{"echo"},
		Fn: func(ctx context.Context, task *worker.Task) (*worker.Result, error) {
			return &worker.Result{Success: true, Data: task.Payload}, nil
		},
	})
	if err != nil {
		t.Fatalf("register worker: %v", err)
	}

	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stdout"})
	eng := engine.New(registry,
		engine.WithConfig(engine.Config{
			BackoffBase:          time.Millisecond,
			PollInterval:         5 * time.Millisecond,
			MaxRetainedWorkflows: 16,
		}),
		engine.WithLogger(log),
	)

	cfg := config.DefaultConfig()
	h := &Handlers{
		Workflow: handlers.NewWorkflowHandler(eng, log),
		Template: handlers.NewTemplateHandler(eng, log),
		Health:   handlers.NewHealthHandler(eng),
	}

	return NewRouter(cfg, log, h, nil), eng
}

func TestRouter_HealthEndpoints(t *testing.T) {
	router, _ := testRouterSetup(t)

	for _, path := range []string{"/health", "/ready", "/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestRouter_RequestIDHeader(t *testing.T) {
	router, _ := testRouterSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRouter_WorkflowRoundTrip(t *testing.T) {
	router, _ := testRouterSetup(t)

	def := &template.Definition{
		Name: "roundtrip",
		Steps: []template.StepDefinition{
			{StepID: "only", Worker: "echo", TaskType: "echo", RetryLimit: 1},
		},
	}
	body, _ := json.Marshal(models.ExecuteWorkflowRequest{
		Definition: def,
		Input:      map[string]any{"k": "v"},
		Wait:       true,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("execute: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result engine.ExecutionResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid result: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/workflows/"+result.WorkflowID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get: expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("list: expected 200, got %d", w.Code)
	}
}

func TestRouter_TemplateRoutes(t *testing.T) {
	router, _ := testRouterSetup(t)

	def := &template.Definition{
		Name: "routed",
		Steps: []template.StepDefinition{
			{StepID: "only", Worker: "echo", TaskType: "echo", RetryLimit: 1},
		},
	}
	body, _ := json.Marshal(def)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/templates/routed", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get: expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/templates/routed/plan", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("plan: expected 200, got %d", w.Code)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router, _ := testRouterSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestRouter_NilHandlersSkipped(t *testing.T) {
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stdout"})
	router := NewRouter(config.DefaultConfig(), log, &Handlers{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 with no health handler, got %d", w.Code)
	}
}
