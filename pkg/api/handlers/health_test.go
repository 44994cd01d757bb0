package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/worker"
)

func TestHealth(t *testing.T) {
	h := NewHealthHandler(testEngine(t))

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestReady_WithWorkers(t *testing.T) {
	h := NewHealthHandler(testEngine(t))

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestReady_NoWorkers(t *testing.T) {
	eng := engine.New(worker.NewRegistry())
	h := NewHealthHandler(eng)

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with no workers, got %d", w.Code)
	}
}

func TestReady_NilEngine(t *testing.T) {
	h := NewHealthHandler(nil)

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with nil engine, got %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	h := NewHealthHandler(testEngine(t))

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	for _, key := range []string{"uptime_seconds", "version", "active_workflows", "workflow_counts", "workers", "templates"} {
		if _, ok := body[key]; !ok {
			t.Errorf("status response missing %q", key)
		}
	}

	workers, ok := body["workers"].([]any)
	if !ok || len(workers) != 2 {
		t.Errorf("expected 2 workers, got %v", body["workers"])
	}
}

func TestStatus_WorkflowCounts(t *testing.T) {
	eng := testEngine(t)
	h := NewHealthHandler(eng)

	if _, err := eng.ExecuteWorkflow(context.Background(), &engine.ExecutionRequest{
		Definition: echoDefinition("counted"),
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	counts, ok := body["workflow_counts"].(map[string]any)
	if !ok {
		t.Fatalf("workflow_counts missing or malformed: %v", body["workflow_counts"])
	}
	if counts["completed"] != float64(1) {
		t.Errorf("expected one completed workflow, got %v", counts)
	}
}
