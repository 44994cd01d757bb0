package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/flowmill/flowmill/pkg/api/middleware"
	"github.com/flowmill/flowmill/pkg/api/models"
	"github.com/flowmill/flowmill/pkg/api/response"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/logger"
	"github.com/flowmill/flowmill/pkg/template"
)

// TemplateHandler serves the template endpoints.
type TemplateHandler struct {
	engine *engine.Engine
	logger logger.Logger
}

// NewTemplateHandler creates a template handler.
func NewTemplateHandler(eng *engine.Engine, log logger.Logger) *TemplateHandler {
	return &TemplateHandler{
		engine: eng,
		logger: log,
	}
}

// Create handles POST /api/v1/templates. The body is a workflow
// definition; it is validated and registered under its name.
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var def template.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", requestID)
		return
	}

	id, err := h.engine.CreateTemplate(&def)
	if err != nil {
		h.logger.ErrorContext(ctx, "template registration rejected", "template", def.Name, "error", err)
		response.HandleError(w, err, requestID)
		return
	}

	response.JSON(w, http.StatusCreated, models.TemplateResponse{
		ID:    id,
		Steps: len(def.Steps),
	})
}

// List handles GET /api/v1/templates.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := h.engine.Templates().IDs()
	response.JSON(w, http.StatusOK, models.TemplateListResponse{
		Templates: ids,
		Total:     len(ids),
	})
}

// Get handles GET /api/v1/templates/{id}, returning the stored definition.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	templateID := chi.URLParam(r, "id")

	def, err := h.engine.Templates().Get(templateID)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}
	response.JSON(w, http.StatusOK, def)
}

// Plan handles GET /api/v1/templates/{id}/plan, compiling the stored
// definition into its execution plan: parallel levels, critical path, and
// per-step dependency wiring.
func (h *TemplateHandler) Plan(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	templateID := chi.URLParam(r, "id")

	def, err := h.engine.Templates().Get(templateID)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	g, err := def.Graph()
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}
	plan, err := g.Compile()
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	roots := make([]string, 0)
	for _, root := range g.Roots() {
		roots = append(roots, root.ID)
	}

	steps := make(map[string]models.PlanStep, g.StepCount())
	for _, step := range g.Steps() {
		dependents, err := g.Dependents(step.ID)
		if err != nil {
			response.HandleError(w, err, requestID)
			return
		}
		dependentIDs := make([]string, 0, len(dependents))
		for _, dep := range dependents {
			dependentIDs = append(dependentIDs, dep.ID)
		}
		sort.Strings(dependentIDs)

		steps[step.ID] = models.PlanStep{
			Worker:       step.Worker,
			TaskType:     step.TaskType,
			Dependencies: step.Deps,
			Dependents:   dependentIDs,
			Level:        plan.LevelOf(step.ID),
		}
	}

	response.JSON(w, http.StatusOK, models.TemplatePlanResponse{
		ID:           templateID,
		TotalSteps:   plan.TotalSteps,
		MaxParallel:  plan.MaxParallel,
		Levels:       plan.Levels,
		CriticalPath: plan.CriticalPath,
		Roots:        roots,
		Steps:        steps,
	})
}
