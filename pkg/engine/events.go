package engine

import (
	"context"

	"github.com/flowmill/flowmill/pkg/eventbus"
)

// Lifecycle event types published on the bus.
const (
	eventWorkflowStatusChanged = "workflow_status_changed"
	eventStepStatusChanged     = "step_status_changed"
)

// emitWorkflowChange publishes a workflow status transition. Publishing is
// best-effort; a full subscriber drops the message rather than blocking the
// scheduler.
func (e *Engine) emitWorkflowChange(wf *Workflow, oldStatus string) {
	if e.bus == nil {
		return
	}

	snap := wf.Snapshot()
	change := eventbus.StateChange{
		WorkflowID: wf.ID,
		OldStatus:  oldStatus,
		NewStatus:  snap.Status,
		Error:      snap.Error,
	}
	env, err := eventbus.BuildEnvelope(eventWorkflowStatusChanged, wf.ID, "", change)
	if err != nil {
		e.logger.Warn("workflow event not built", "workflow_id", wf.ID, "error", err)
		return
	}
	subject := eventbus.WorkflowSubject(snap.Status)
	if err := e.bus.PublishEnvelope(context.Background(), subject, env); err != nil {
		e.logger.Warn("workflow event not published", "workflow_id", wf.ID, "error", err)
	}
}

// emitStepChange publishes a step status transition.
func (e *Engine) emitStepChange(wf *Workflow, stepID, oldStatus string) {
	if e.bus == nil {
		return
	}

	status, ok := wf.stepStatus(stepID)
	if !ok {
		return
	}
	var errMsg string
	if rec := wf.stepRecord(stepID); rec != nil {
		errMsg = rec.Error
	}

	change := eventbus.StateChange{
		WorkflowID: wf.ID,
		StepID:     stepID,
		OldStatus:  oldStatus,
		NewStatus:  status,
		Error:      errMsg,
	}
	env, err := eventbus.BuildEnvelope(eventStepStatusChanged, wf.ID, stepID, change)
	if err != nil {
		e.logger.Warn("step event not built", "workflow_id", wf.ID, "step_id", stepID, "error", err)
		return
	}
	subject := eventbus.StepSubject(status)
	if err := e.bus.PublishEnvelope(context.Background(), subject, env); err != nil {
		e.logger.Warn("step event not published", "workflow_id", wf.ID, "step_id", stepID, "error", err)
	}
}
