package handlers

import (
	"net/http"
	"time"

	"github.com/flowmill/flowmill/pkg/api/response"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/version"
)

// HealthHandler serves the liveness, readiness and status probes.
type HealthHandler struct {
	engine    *engine.Engine
	startedAt time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(eng *engine.Engine) *HealthHandler {
	return &HealthHandler{
		engine:    eng,
		startedAt: time.Now(),
	}
}

// Health handles GET /health (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles GET /ready (readiness probe). The process is ready once
// the engine is wired up with at least one registered worker.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil || h.engine.Workers().Count() == 0 {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{
		"ready": true,
	})
}

// Status handles GET /status with runtime details.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"uptime_seconds":   int64(time.Since(h.startedAt).Seconds()),
		"version":          version.Info(),
		"active_workflows": h.engine.ActiveWorkflows(),
		"workflow_counts":  h.engine.WorkflowCounts(),
		"workers":          h.engine.Workers().Names(),
		"templates":        h.engine.Templates().IDs(),
	}
	response.JSON(w, http.StatusOK, status)
}
