package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowmill/flowmill/pkg/api/models"
	"github.com/flowmill/flowmill/pkg/api/response"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/logger"
	"github.com/flowmill/flowmill/pkg/template"
	"github.com/flowmill/flowmill/pkg/worker"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()

	registry := worker.NewRegistry()
	echo := &worker.Func{
		WorkerName: "echo",
		Types:      []string{"echo"},
		Fn: func(ctx context.Context, task *worker.Task) (*worker.Result, error) {
			return &worker.Result{
				Success: true,
				Data:    map[string]any{"echoed": task.Payload["value"]},
			}, nil
		},
	}
	failing := &worker.Func{
		WorkerName: "failing",
		Types:      []string{"echo"},
		Fn: func(ctx context.Context, task *worker.Task) (*worker.Result, error) {
			return nil, fmt.Errorf("intentional failure")
		},
	}
	if err := registry.Register(echo); err != nil {
		t.Fatalf("register echo: %v", err)
	}
	if err := registry.Register(failing); err != nil {
		t.Fatalf("register failing: %v", err)
	}

	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stdout"})
	return engine.New(registry,
		engine.WithConfig(engine.Config{
			BackoffBase:          time.Millisecond,
			PollInterval:         5 * time.Millisecond,
			MaxRetainedWorkflows: 32,
		}),
		engine.WithLogger(log),
	)
}

func testWorkflowHandler(t *testing.T) (*WorkflowHandler, *engine.Engine) {
	t.Helper()
	eng := testEngine(t)
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stdout"})
	return NewWorkflowHandler(eng, log), eng
}

func echoDefinition(name string) *template.Definition {
	return &template.Definition{
		Name: name,
		Steps: []template.StepDefinition{
			{StepID: "first", Worker: "echo", TaskType: "echo", RetryLimit: 1},
			{StepID: "second", Worker: "echo", TaskType: "echo", RetryLimit: 1, Dependencies: []string{"first"}},
		},
	}
}

// workflowRouter mounts the handler the way the production router does so
// chi URL params resolve.
func workflowRouter(h *WorkflowHandler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1/workflows", func(r chi.Router) {
		r.Post("/", h.Execute)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/cancel", h.Cancel)
		r.Get("/{id}/steps/{sid}/result", h.StepResult)
	})
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWorkflowExecute_Wait(t *testing.T) {
	h, _ := testWorkflowHandler(t)
	router := workflowRouter(h)

	w := postJSON(t, router, "/api/v1/workflows", models.ExecuteWorkflowRequest{
		Definition: echoDefinition("sync-run"),
		Input:      map[string]any{"value": "hello"},
		Wait:       true,
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result engine.ExecutionResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if result.Status != engine.WorkflowStatusCompleted {
		t.Errorf("expected completed workflow, got %s", result.Status)
	}
}

func TestWorkflowExecute_Async(t *testing.T) {
	h, eng := testWorkflowHandler(t)
	router := workflowRouter(h)

	w := postJSON(t, router, "/api/v1/workflows", models.ExecuteWorkflowRequest{
		Definition: echoDefinition("async-run"),
	})

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var submitted models.SubmitResponse
	if err := json.Unmarshal(w.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if submitted.ID == "" {
		t.Fatal("expected a workflow ID")
	}
	if submitted.Status != engine.WorkflowStatusPending {
		t.Errorf("expected pending status, got %s", submitted.Status)
	}

	deadline := time.After(2 * time.Second)
	for {
		state, err := eng.GetWorkflowStatus(context.Background(), submitted.ID)
		if err == nil && state.Status == engine.WorkflowStatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("workflow did not complete in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWorkflowExecute_MissingTemplateAndDefinition(t *testing.T) {
	h, _ := testWorkflowHandler(t)
	router := workflowRouter(h)

	w := postJSON(t, router, "/api/v1/workflows", models.ExecuteWorkflowRequest{})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body response.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Error.Code != response.ErrCodeValidationFailed {
		t.Errorf("unexpected code %s", body.Error.Code)
	}
}

func TestWorkflowExecute_InvalidBody(t *testing.T) {
	h, _ := testWorkflowHandler(t)
	router := workflowRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestWorkflowExecute_UnknownTemplate(t *testing.T) {
	h, _ := testWorkflowHandler(t)
	router := workflowRouter(h)

	w := postJSON(t, router, "/api/v1/workflows", models.ExecuteWorkflowRequest{
		TemplateID: "no-such-template",
		Wait:       true,
	})

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown template, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWorkflowGet(t *testing.T) {
	h, eng := testWorkflowHandler(t)
	router := workflowRouter(h)

	result, err := eng.ExecuteWorkflow(context.Background(), &engine.ExecutionRequest{
		Definition: echoDefinition("lookup"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/"+result.WorkflowID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var status models.WorkflowStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if status.ID != result.WorkflowID {
		t.Errorf("unexpected id %s", status.ID)
	}
	if len(status.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(status.Steps))
	}
}

func TestWorkflowGet_NotFound(t *testing.T) {
	h, _ := testWorkflowHandler(t)
	router := workflowRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestWorkflowList(t *testing.T) {
	h, eng := testWorkflowHandler(t)
	router := workflowRouter(h)

	for i := 0; i < 3; i++ {
		if _, err := eng.ExecuteWorkflow(context.Background(), &engine.ExecutionRequest{
			Definition: echoDefinition(fmt.Sprintf("listed-%d", i)),
		}); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows?status=completed&limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var list models.WorkflowListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if list.Total != 3 {
		t.Errorf("expected total 3, got %d", list.Total)
	}
	if len(list.Workflows) != 2 {
		t.Errorf("expected 2 workflows in page, got %d", len(list.Workflows))
	}
	if list.Limit != 2 {
		t.Errorf("expected limit 2, got %d", list.Limit)
	}
}

func TestWorkflowCancel_FinishedWorkflow(t *testing.T) {
	h, eng := testWorkflowHandler(t)
	router := workflowRouter(h)

	result, err := eng.ExecuteWorkflow(context.Background(), &engine.ExecutionRequest{
		Definition: echoDefinition("done"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/"+result.WorkflowID+"/cancel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a finished workflow, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWorkflowCancel_NotFound(t *testing.T) {
	h, _ := testWorkflowHandler(t)
	router := workflowRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/missing/cancel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestWorkflowStepResult(t *testing.T) {
	h, eng := testWorkflowHandler(t)
	router := workflowRouter(h)

	result, err := eng.ExecuteWorkflow(context.Background(), &engine.ExecutionRequest{
		Definition: echoDefinition("steps"),
		Input:      map[string]any{"value": 42},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// The handler accepts the bare step name even though stored IDs carry
	// the workflow prefix.
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/workflows/"+result.WorkflowID+"/steps/first/result", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var step models.StepResultResponse
	if err := json.Unmarshal(w.Body.Bytes(), &step); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if step.Status != engine.StepStatusCompleted {
		t.Errorf("expected completed step, got %s", step.Status)
	}
	if step.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", step.Attempts)
	}
}

func TestWorkflowStepResult_UnknownStep(t *testing.T) {
	h, eng := testWorkflowHandler(t)
	router := workflowRouter(h)

	result, err := eng.ExecuteWorkflow(context.Background(), &engine.ExecutionRequest{
		Definition: echoDefinition("nostep"),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/workflows/"+result.WorkflowID+"/steps/ghost/result", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
