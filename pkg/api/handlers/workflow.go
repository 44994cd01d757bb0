// Package handlers provides HTTP request handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flowmill/flowmill/pkg/api/middleware"
	"github.com/flowmill/flowmill/pkg/api/models"
	"github.com/flowmill/flowmill/pkg/api/response"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/logger"
	"github.com/flowmill/flowmill/pkg/storage"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// WorkflowHandler serves the workflow endpoints.
type WorkflowHandler struct {
	engine *engine.Engine
	logger logger.Logger
}

// NewWorkflowHandler creates a workflow handler.
func NewWorkflowHandler(eng *engine.Engine, log logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		engine: eng,
		logger: log,
	}
}

// Execute handles POST /api/v1/workflows. By default the workflow runs in
// the background and the response is an immediate 202; with "wait": true
// the request blocks and returns the full execution result.
func (h *WorkflowHandler) Execute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req models.ExecuteWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", requestID)
		return
	}
	if req.TemplateID == "" && req.Definition == nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"either template_id or definition is required", requestID)
		return
	}

	execReq := &engine.ExecutionRequest{
		TemplateID: req.TemplateID,
		Definition: req.Definition,
		Input:      req.Input,
	}

	if req.Wait {
		result, err := h.engine.ExecuteWorkflow(ctx, execReq)
		if err != nil {
			h.logger.ErrorContext(ctx, "workflow execution rejected", "error", err)
			response.HandleError(w, err, requestID)
			return
		}
		response.JSON(w, http.StatusOK, result)
		return
	}

	id, err := h.engine.SubmitWorkflow(ctx, execReq)
	if err != nil {
		h.logger.ErrorContext(ctx, "workflow submission rejected", "error", err)
		response.HandleError(w, err, requestID)
		return
	}

	response.JSON(w, http.StatusAccepted, models.SubmitResponse{
		ID:      id,
		Status:  engine.WorkflowStatusPending,
		Message: "workflow submitted",
	})
}

// Get handles GET /api/v1/workflows/{id}.
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	workflowID := chi.URLParam(r, "id")

	state, err := h.engine.GetWorkflowStatus(ctx, workflowID)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	response.JSON(w, http.StatusOK, snapshotToStatus(state))
}

// List handles GET /api/v1/workflows with status, limit and offset query
// parameters. Multiple statuses may be passed comma-separated.
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	filter := &storage.WorkflowFilter{Limit: defaultListLimit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Status = append(filter.Status, s)
			}
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = min(limit, maxListLimit)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	states, total, err := h.engine.ListWorkflows(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "workflow listing failed", "error", err)
		response.HandleError(w, err, requestID)
		return
	}

	summaries := make([]models.WorkflowSummary, 0, len(states))
	for _, state := range states {
		summaries = append(summaries, models.WorkflowSummary{
			ID:          state.ID,
			Name:        state.Name,
			Status:      state.Status,
			CreatedAt:   state.CreatedAt,
			CompletedAt: state.CompletedAt,
			StepCount:   len(state.Steps),
		})
	}

	response.JSON(w, http.StatusOK, models.WorkflowListResponse{
		Workflows: summaries,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
}

// Cancel handles POST /api/v1/workflows/{id}/cancel.
func (h *WorkflowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	workflowID := chi.URLParam(r, "id")

	if err := h.engine.CancelWorkflow(ctx, workflowID); err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"id":      workflowID,
		"message": "cancellation requested",
	})
}

// StepResult handles GET /api/v1/workflows/{id}/steps/{sid}/result.
func (h *WorkflowHandler) StepResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	workflowID := chi.URLParam(r, "id")
	stepID := chi.URLParam(r, "sid")

	state, err := h.engine.GetWorkflowStatus(ctx, workflowID)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	step, ok := state.Steps[stepID]
	if !ok {
		// Step IDs are namespaced with the workflow ID; accept the bare
		// step name as well.
		step, ok = state.Steps[workflowID+"_"+stepID]
	}
	if !ok {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "step not found", requestID)
		return
	}

	response.JSON(w, http.StatusOK, models.StepResultResponse{
		WorkflowID:  workflowID,
		StepID:      step.ID,
		Status:      step.Status,
		Attempts:    step.Attempts,
		Result:      step.Result,
		Error:       step.Error,
		CompletedAt: step.CompletedAt,
	})
}

// snapshotToStatus converts a stored snapshot into the API shape with
// steps sorted by ID.
func snapshotToStatus(state *storage.WorkflowState) models.WorkflowStatusResponse {
	ids := make([]string, 0, len(state.Steps))
	for id := range state.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	steps := make([]models.StepStatus, 0, len(ids))
	for _, id := range ids {
		st := state.Steps[id]
		steps = append(steps, models.StepStatus{
			ID:          st.ID,
			Worker:      st.Worker,
			TaskType:    st.TaskType,
			Status:      st.Status,
			Attempts:    st.Attempts,
			StartedAt:   st.StartedAt,
			CompletedAt: st.CompletedAt,
			Error:       st.Error,
			Result:      st.Result,
		})
	}

	return models.WorkflowStatusResponse{
		ID:          state.ID,
		Name:        state.Name,
		Description: state.Description,
		Status:      state.Status,
		CreatedAt:   state.CreatedAt,
		StartedAt:   state.StartedAt,
		CompletedAt: state.CompletedAt,
		Steps:       steps,
		Metadata:    state.Metadata,
		Error:       state.Error,
	}
}
