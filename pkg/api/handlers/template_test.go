package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/flowmill/flowmill/pkg/api/models"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/logger"
	"github.com/flowmill/flowmill/pkg/template"
)

func testTemplateHandler(t *testing.T) (*TemplateHandler, *engine.Engine) {
	t.Helper()
	eng := testEngine(t)
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stdout"})
	return NewTemplateHandler(eng, log), eng
}

func templateRouter(h *TemplateHandler) chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1/templates", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/plan", h.Plan)
	})
	return r
}

func TestTemplateCreate(t *testing.T) {
	h, eng := testTemplateHandler(t)
	router := templateRouter(h)

	w := postJSON(t, router, "/api/v1/templates", echoDefinition("order-intake"))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created models.TemplateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if created.ID != "order-intake" {
		t.Errorf("expected id order-intake, got %s", created.ID)
	}
	if created.Steps != 2 {
		t.Errorf("expected 2 steps, got %d", created.Steps)
	}

	if _, err := eng.Templates().Get("order-intake"); err != nil {
		t.Errorf("template not registered: %v", err)
	}
}

func TestTemplateCreate_Duplicate(t *testing.T) {
	h, _ := testTemplateHandler(t)
	router := templateRouter(h)

	if w := postJSON(t, router, "/api/v1/templates", echoDefinition("dup")); w.Code != http.StatusCreated {
		t.Fatalf("first create failed: %d", w.Code)
	}

	w := postJSON(t, router, "/api/v1/templates", echoDefinition("dup"))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTemplateCreate_InvalidDefinition(t *testing.T) {
	h, _ := testTemplateHandler(t)
	router := templateRouter(h)

	// Self-referencing dependency is rejected at registration.
	def := &template.Definition{
		Name: "broken",
		Steps: []template.StepDefinition{
			{StepID: "a", Worker: "echo", TaskType: "echo", Dependencies: []string{"a"}},
		},
	}

	w := postJSON(t, router, "/api/v1/templates", def)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTemplateCreate_InvalidBody(t *testing.T) {
	h, _ := testTemplateHandler(t)
	router := templateRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/templates", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestTemplateList(t *testing.T) {
	h, _ := testTemplateHandler(t)
	router := templateRouter(h)

	postJSON(t, router, "/api/v1/templates", echoDefinition("alpha"))
	postJSON(t, router, "/api/v1/templates", echoDefinition("beta"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var list models.TemplateListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if list.Total != 2 {
		t.Errorf("expected 2 templates, got %d", list.Total)
	}
}

func TestTemplateGet(t *testing.T) {
	h, _ := testTemplateHandler(t)
	router := templateRouter(h)

	postJSON(t, router, "/api/v1/templates", echoDefinition("fetchme"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/fetchme", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var def template.Definition
	if err := json.Unmarshal(w.Body.Bytes(), &def); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if def.Name != "fetchme" {
		t.Errorf("unexpected definition name %s", def.Name)
	}
	if len(def.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(def.Steps))
	}
}

func TestTemplatePlan(t *testing.T) {
	h, _ := testTemplateHandler(t)
	router := templateRouter(h)

	def := &template.Definition{
		Name: "diamond",
		Steps: []template.StepDefinition{
			{StepID: "fetch", Worker: "echo", TaskType: "echo"},
			{StepID: "classify", Worker: "echo", TaskType: "echo", Dependencies: []string{"fetch"}},
			{StepID: "extract", Worker: "echo", TaskType: "echo", Dependencies: []string{"fetch"}},
			{StepID: "route", Worker: "echo", TaskType: "echo", Dependencies: []string{"classify", "extract"}},
		},
	}
	if w := postJSON(t, router, "/api/v1/templates", def); w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/diamond/plan", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var plan models.TemplatePlanResponse
	if err := json.Unmarshal(w.Body.Bytes(), &plan); err != nil {
		t.Fatalf("invalid body: %v", err)
	}

	if plan.ID != "diamond" {
		t.Errorf("expected id diamond, got %s", plan.ID)
	}
	if plan.TotalSteps != 4 {
		t.Errorf("expected 4 steps, got %d", plan.TotalSteps)
	}
	if plan.MaxParallel != 2 {
		t.Errorf("expected max parallelism 2, got %d", plan.MaxParallel)
	}
	if len(plan.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %v", plan.Levels)
	}
	if len(plan.Levels[1]) != 2 || plan.Levels[1][0] != "classify" || plan.Levels[1][1] != "extract" {
		t.Errorf("level 1 should be [classify extract], got %v", plan.Levels[1])
	}
	if len(plan.Roots) != 1 || plan.Roots[0] != "fetch" {
		t.Errorf("expected roots [fetch], got %v", plan.Roots)
	}
	if len(plan.CriticalPath) != 3 {
		t.Fatalf("expected critical path of 3, got %v", plan.CriticalPath)
	}
	if plan.CriticalPath[0] != "fetch" || plan.CriticalPath[2] != "route" {
		t.Errorf("critical path should run fetch..route, got %v", plan.CriticalPath)
	}

	fetch, ok := plan.Steps["fetch"]
	if !ok {
		t.Fatal("plan missing step fetch")
	}
	if fetch.Level != 0 {
		t.Errorf("fetch should sit in level 0, got %d", fetch.Level)
	}
	if len(fetch.Dependents) != 2 || fetch.Dependents[0] != "classify" || fetch.Dependents[1] != "extract" {
		t.Errorf("fetch dependents should be [classify extract], got %v", fetch.Dependents)
	}
	if route := plan.Steps["route"]; route.Level != 2 || len(route.Dependencies) != 2 {
		t.Errorf("unexpected route step view: %+v", route)
	}
}

func TestTemplatePlan_NotFound(t *testing.T) {
	h, _ := testTemplateHandler(t)
	router := templateRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/ghost/plan", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestTemplateGet_NotFound(t *testing.T) {
	h, _ := testTemplateHandler(t)
	router := templateRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/ghost", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
