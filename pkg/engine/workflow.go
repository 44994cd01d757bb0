// Package engine executes workflows: it resolves workers, runs steps in
// dependency order with retry and timeout handling, and tracks workflow
// state through to a terminal status.
package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowmill/flowmill/pkg/dag"
	"github.com/flowmill/flowmill/pkg/storage"
	"github.com/flowmill/flowmill/pkg/template"
	"github.com/flowmill/flowmill/pkg/worker"
)

// Workflow statuses.
const (
	WorkflowStatusPending   = "pending"
	WorkflowStatusRunning   = "running"
	WorkflowStatusCompleted = "completed"
	WorkflowStatusFailed    = "failed"
	WorkflowStatusCancelled = "cancelled"
)

// Step statuses.
const (
	StepStatusWaiting   = "waiting"
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)

var allowedWorkflowTransitions = map[string]map[string]struct{}{
	WorkflowStatusPending: {
		WorkflowStatusRunning:   {},
		WorkflowStatusFailed:    {},
		WorkflowStatusCancelled: {},
	},
	WorkflowStatusRunning: {
		WorkflowStatusCompleted: {},
		WorkflowStatusFailed:    {},
		WorkflowStatusCancelled: {},
	},
}

var allowedStepTransitions = map[string]map[string]struct{}{
	StepStatusWaiting: {
		StepStatusRunning: {},
		StepStatusSkipped: {},
	},
	StepStatusRunning: {
		StepStatusCompleted: {},
		StepStatusFailed:    {},
	},
}

func isTerminalWorkflowStatus(status string) bool {
	return status == WorkflowStatusCompleted || status == WorkflowStatusFailed || status == WorkflowStatusCancelled
}

func isTerminalStepStatus(status string) bool {
	return status == StepStatusCompleted || status == StepStatusFailed || status == StepStatusSkipped
}

func validateWorkflowTransition(oldStatus, newStatus string) error {
	if oldStatus == newStatus {
		return nil
	}
	if isTerminalWorkflowStatus(oldStatus) {
		return fmt.Errorf("illegal workflow transition %q -> %q: terminal state is immutable", oldStatus, newStatus)
	}
	allowed, ok := allowedWorkflowTransitions[oldStatus]
	if !ok {
		return fmt.Errorf("illegal workflow transition %q -> %q", oldStatus, newStatus)
	}
	if _, ok := allowed[newStatus]; !ok {
		return fmt.Errorf("illegal workflow transition %q -> %q", oldStatus, newStatus)
	}
	return nil
}

func validateStepTransition(oldStatus, newStatus string) error {
	if oldStatus == newStatus {
		return nil
	}
	if isTerminalStepStatus(oldStatus) {
		return fmt.Errorf("illegal step transition %q -> %q: terminal state is immutable", oldStatus, newStatus)
	}
	allowed, ok := allowedStepTransitions[oldStatus]
	if !ok {
		return fmt.Errorf("illegal step transition %q -> %q", oldStatus, newStatus)
	}
	if _, ok := allowed[newStatus]; !ok {
		return fmt.Errorf("illegal step transition %q -> %q", oldStatus, newStatus)
	}
	return nil
}

// StepRecord tracks the runtime state of one step.
type StepRecord struct {
	Step        *dag.Step
	Status      string
	Attempts    int
	Result      *worker.Result
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Workflow is a running or retained workflow instance. All state mutation
// goes through the mutex; the scheduler owns step transitions, Cancel is the
// only external mutation.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Metadata    map[string]string
	CreatedAt   time.Time

	mu          sync.RWMutex
	status      string
	steps       map[string]*StepRecord
	startedAt   *time.Time
	completedAt *time.Time
	errMsg      string

	// notify wakes the scheduler when a step lands or the workflow is
	// cancelled. Buffer of one: a pending signal is never lost, duplicates
	// collapse.
	notify chan struct{}
}

// newWorkflow builds the runtime state for a template instance. The step
// graph is validated here: unknown dependency references and cycles are
// rejected before anything executes.
func newWorkflow(inst *template.Instance) (*Workflow, error) {
	g := dag.NewGraph()
	for _, step := range inst.Steps {
		if err := g.AddStep(step); err != nil {
			return nil, &DefinitionError{Cause: err}
		}
	}
	if err := g.Validate(); err != nil {
		return nil, &DefinitionError{Cause: err}
	}

	steps := make(map[string]*StepRecord, len(inst.Steps))
	for _, step := range inst.Steps {
		steps[step.ID] = &StepRecord{
			Step:   step,
			Status: StepStatusWaiting,
		}
	}

	return &Workflow{
		ID:          inst.WorkflowID,
		Name:        inst.Name,
		Description: inst.Description,
		Metadata:    inst.Metadata,
		CreatedAt:   time.Now().UTC(),
		status:      WorkflowStatusPending,
		steps:       steps,
		notify:      make(chan struct{}, 1),
	}, nil
}

// Status returns the current workflow status.
func (w *Workflow) Status() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// transition moves the workflow to a new status, stamping started/completed
// times as appropriate.
func (w *Workflow) transition(newStatus, errMsg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status == newStatus {
		return nil
	}
	if err := validateWorkflowTransition(w.status, newStatus); err != nil {
		return err
	}

	now := time.Now().UTC()
	w.status = newStatus
	switch newStatus {
	case WorkflowStatusRunning:
		if w.startedAt == nil {
			t := now
			w.startedAt = &t
		}
	case WorkflowStatusCompleted:
		t := now
		w.completedAt = &t
	case WorkflowStatusFailed, WorkflowStatusCancelled:
		t := now
		w.completedAt = &t
		w.errMsg = errMsg
	}
	return nil
}

// Cancel marks the workflow cancelled. Running steps are not interrupted;
// the scheduler launches no further batches once the status is observed.
func (w *Workflow) Cancel() error {
	if err := w.transition(WorkflowStatusCancelled, "cancelled by request"); err != nil {
		return err
	}
	w.signal()
	return nil
}

// readySteps returns waiting steps whose dependencies have all completed.
func (w *Workflow) readySteps() []*dag.Step {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var ready []*dag.Step
	for _, rec := range w.steps {
		if rec.Status != StepStatusWaiting {
			continue
		}
		satisfied := true
		for _, dep := range rec.Step.Deps {
			depRec, ok := w.steps[dep]
			if !ok || depRec.Status != StepStatusCompleted {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, rec.Step)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// startStep transitions a step to running.
func (w *Workflow) startStep(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec, ok := w.steps[id]
	if !ok {
		return &dag.StepNotFoundError{ID: id}
	}
	if err := validateStepTransition(rec.Status, StepStatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Status = StepStatusRunning
	rec.StartedAt = &now
	return nil
}

// completeStep records a step outcome and wakes the scheduler.
func (w *Workflow) completeStep(id string, out *stepOutcome) error {
	w.mu.Lock()

	rec, ok := w.steps[id]
	if !ok {
		w.mu.Unlock()
		return &dag.StepNotFoundError{ID: id}
	}

	newStatus := StepStatusCompleted
	if out.Err != nil {
		newStatus = StepStatusFailed
	}
	if err := validateStepTransition(rec.Status, newStatus); err != nil {
		w.mu.Unlock()
		return err
	}

	now := time.Now().UTC()
	rec.Status = newStatus
	rec.Attempts = out.Attempts
	rec.Result = out.Result
	rec.CompletedAt = &now
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	w.mu.Unlock()

	w.signal()
	return nil
}

// skipBlockedSteps marks every waiting step skipped. Called only when no step
// is ready and none is running: remaining waiting steps sit behind a failed
// or skipped dependency and can never start.
func (w *Workflow) skipBlockedSteps() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var skipped []string
	for id, rec := range w.steps {
		if rec.Status == StepStatusWaiting {
			rec.Status = StepStatusSkipped
			skipped = append(skipped, id)
		}
	}
	sort.Strings(skipped)
	return skipped
}

// runningCount returns the number of steps currently running.
func (w *Workflow) runningCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, rec := range w.steps {
		if rec.Status == StepStatusRunning {
			n++
		}
	}
	return n
}

// waitingCount returns the number of steps still waiting.
func (w *Workflow) waitingCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, rec := range w.steps {
		if rec.Status == StepStatusWaiting {
			n++
		}
	}
	return n
}

// failedSteps returns the IDs of failed steps, sorted.
func (w *Workflow) failedSteps() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var failed []string
	for id, rec := range w.steps {
		if rec.Status == StepStatusFailed {
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)
	return failed
}

// failureSummary describes which steps failed, for the workflow error field.
func (w *Workflow) failureSummary() string {
	failed := w.failedSteps()
	if len(failed) == 0 {
		return ""
	}
	return fmt.Sprintf("step(s) failed: %s", strings.Join(failed, ", "))
}

// stepRecord returns a shallow copy of the record for one step, nil when the
// step is unknown.
func (w *Workflow) stepRecord(id string) *StepRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.steps[id]
	if !ok {
		return nil
	}
	c := *rec
	return &c
}

// stepStatus returns the status of one step.
func (w *Workflow) stepStatus(id string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.steps[id]
	if !ok {
		return "", false
	}
	return rec.Status, true
}

// signal wakes the scheduler without blocking.
func (w *Workflow) signal() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// awaitChange blocks until a step lands, the poll interval elapses, or the
// context is cancelled.
func (w *Workflow) awaitChange(done <-chan struct{}, poll time.Duration) {
	select {
	case <-done:
	case <-w.notify:
	case <-time.After(poll):
	}
}

// Snapshot returns the persistable state of the workflow.
func (w *Workflow) Snapshot() *storage.WorkflowState {
	w.mu.RLock()
	defer w.mu.RUnlock()

	steps := make(map[string]*storage.StepState, len(w.steps))
	for id, rec := range w.steps {
		st := &storage.StepState{
			ID:          id,
			Worker:      rec.Step.Worker,
			TaskType:    rec.Step.TaskType,
			Status:      rec.Status,
			Attempts:    rec.Attempts,
			StartedAt:   copyTime(rec.StartedAt),
			CompletedAt: copyTime(rec.CompletedAt),
			Error:       rec.Error,
		}
		if rec.Result != nil {
			st.Result = rec.Result.Data
		}
		steps[id] = st
	}

	var metadata map[string]string
	if w.Metadata != nil {
		metadata = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			metadata[k] = v
		}
	}

	return &storage.WorkflowState{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Status:      w.status,
		Steps:       steps,
		Metadata:    metadata,
		CreatedAt:   w.CreatedAt,
		StartedAt:   copyTime(w.startedAt),
		CompletedAt: copyTime(w.completedAt),
		Error:       w.errMsg,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
