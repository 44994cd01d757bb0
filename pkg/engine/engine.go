package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/flowmill/flowmill/pkg/eventbus"
	"github.com/flowmill/flowmill/pkg/logger"
	"github.com/flowmill/flowmill/pkg/storage"
	"github.com/flowmill/flowmill/pkg/storage/memory"
	"github.com/flowmill/flowmill/pkg/template"
	"github.com/flowmill/flowmill/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config holds engine tuning knobs.
type Config struct {
	// BackoffBase is the delay before a step's second attempt; doubled for
	// each further attempt.
	BackoffBase time.Duration
	// PollInterval is the scheduler's fallback wait between readiness passes.
	PollInterval time.Duration
	// MaxRetainedWorkflows bounds the in-memory window of finished workflows.
	MaxRetainedWorkflows int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		BackoffBase:          DefaultBackoffBase,
		PollInterval:         DefaultPollInterval,
		MaxRetainedWorkflows: DefaultMaxRetained,
	}
}

// Engine ties the worker registry, template store, scheduler, and storage
// together behind the workflow operations.
type Engine struct {
	cfg       Config
	workers   *worker.Registry
	templates *template.Store
	registry  *registry
	sched     *scheduler
	store     storage.Storage
	metrics   MetricsRecorder
	bus       *eventbus.Bus
	logger    logger.Logger
}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithConfig overrides the default engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithStorage sets the snapshot storage backend.
func WithStorage(store storage.Storage) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(e *Engine) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// WithEventBus sets the lifecycle event bus.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(e *Engine) {
		if bus != nil {
			e.bus = bus
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.logger = log
		}
	}
}

// New creates an Engine around the given worker registry. Unset dependencies
// fall back to in-memory storage, a no-op metrics recorder, no event bus,
// and the global logger.
func New(workers *worker.Registry, opts ...Option) *Engine {
	e := &Engine{
		cfg:       DefaultConfig(),
		workers:   workers,
		templates: template.NewStore(),
		store:     memory.New(),
		metrics:   nopMetrics{},
		logger:    logger.Global(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.registry = newRegistry(e.cfg.MaxRetainedWorkflows)
	executor := newStepExecutor(e.workers, e.cfg.BackoffBase, e.logger)
	e.sched = newScheduler(executor, e.logger, e.cfg.PollInterval)
	e.sched.onStepChange = e.observeStepChange
	e.sched.onWorkflowChange = e.observeWorkflowChange

	return e
}

// Workers returns the engine's worker registry.
func (e *Engine) Workers() *worker.Registry { return e.workers }

// Templates returns the engine's template store.
func (e *Engine) Templates() *template.Store { return e.templates }

// ActiveWorkflows returns the number of currently executing workflows.
func (e *Engine) ActiveWorkflows() int { return e.registry.activeCount() }

// WorkflowCounts returns per-status counts over every workflow the engine
// still tracks in memory, in-flight plus the retention window.
func (e *Engine) WorkflowCounts() map[string]int {
	counts := make(map[string]int)
	for _, wf := range e.registry.list() {
		counts[wf.Status()]++
	}
	return counts
}

// ExecutionRequest selects what to run: a registered template by ID or an
// inline one-off definition, plus the workflow input merged into every step
// payload.
type ExecutionRequest struct {
	TemplateID string
	Definition *template.Definition
	Input      map[string]any
}

// StepReport is the per-step diagnostic in an ExecutionResult.
type StepReport struct {
	ID          string         `json:"id"`
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
}

// ExecutionResult is the structured outcome of a workflow run.
type ExecutionResult struct {
	WorkflowID string        `json:"workflow_id"`
	Name       string        `json:"name"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Steps      []StepReport  `json:"steps"`
	Duration   time.Duration `json:"duration"`
}

// ExecuteWorkflow instantiates and runs a workflow to completion, returning
// a structured result with the terminal status and per-step diagnostics.
// Definition problems (unknown template, bad references, cycles) are the
// only error returns; step failures surface in the result.
func (e *Engine) ExecuteWorkflow(ctx context.Context, req *ExecutionRequest) (*ExecutionResult, error) {
	wf, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, wf), nil
}

// SubmitWorkflow instantiates a workflow and starts it in the background,
// returning its ID immediately. Progress is observable through
// GetWorkflowStatus, the event bus, and cancellation through
// CancelWorkflow. The run is detached from the caller's context lifetime
// but keeps its values for tracing.
func (e *Engine) SubmitWorkflow(ctx context.Context, req *ExecutionRequest) (string, error) {
	wf, err := e.prepare(req)
	if err != nil {
		return "", err
	}

	go e.run(context.WithoutCancel(ctx), wf)
	return wf.ID, nil
}

// prepare resolves the request into a validated, registered workflow in
// the pending state.
func (e *Engine) prepare(req *ExecutionRequest) (*Workflow, error) {
	if req == nil {
		return nil, fmt.Errorf("execution request cannot be nil")
	}

	var (
		inst *template.Instance
		err  error
	)
	switch {
	case req.TemplateID != "":
		inst, err = e.templates.Instantiate(req.TemplateID, req.Input)
	case req.Definition != nil:
		inst, err = template.FromDefinition(req.Definition, req.Input)
	default:
		return nil, fmt.Errorf("execution request needs a template id or an inline definition")
	}
	if err != nil {
		return nil, err
	}

	wf, err := newWorkflow(inst)
	if err != nil {
		return nil, err
	}

	e.registry.add(wf)
	e.persist(wf)
	e.emitWorkflowChange(wf, "")
	e.metrics.RecordWorkflowSubmission(WorkflowStatusPending)
	return wf, nil
}

// run drives a prepared workflow to completion and retires it.
func (e *Engine) run(ctx context.Context, wf *Workflow) *ExecutionResult {
	ctx, span := engineTracer().Start(ctx, spanWorkflowExecute,
		trace.WithAttributes(
			attribute.String("workflow.id", wf.ID),
			attribute.String("workflow.name", wf.Name),
			attribute.Int("workflow.steps", len(wf.steps)),
		))
	defer span.End()
	defer e.registry.retire(wf.ID)

	e.logger.InfoContext(ctx, "workflow started",
		"workflow_id", wf.ID, "name", wf.Name, "steps", len(wf.steps))

	start := time.Now()
	e.sched.run(ctx, wf)
	elapsed := time.Since(start)

	e.persist(wf)

	result := e.buildResult(wf, elapsed)
	e.logger.InfoContext(ctx, "workflow finished",
		"workflow_id", wf.ID, "status", result.Status, "duration", elapsed)
	return result
}

// CreateTemplate validates and registers a reusable workflow template keyed
// by its name, returning the template ID.
func (e *Engine) CreateTemplate(def *template.Definition) (string, error) {
	if def == nil {
		return "", fmt.Errorf("template definition cannot be nil")
	}
	if err := e.templates.Register(def.Name, def); err != nil {
		var dup *template.DuplicateError
		if errors.As(err, &dup) {
			return "", err
		}
		return "", &DefinitionError{Cause: err}
	}
	e.logger.Info("template registered", "template_id", def.Name, "steps", len(def.Steps))
	return def.Name, nil
}

// GetWorkflowStatus returns the current snapshot of a workflow, live state
// for in-flight and retained executions, storage otherwise.
func (e *Engine) GetWorkflowStatus(ctx context.Context, id string) (*storage.WorkflowState, error) {
	if wf, ok := e.registry.get(id); ok {
		return wf.Snapshot(), nil
	}
	state, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		var notFound *storage.NotFoundError
		if errors.As(err, &notFound) {
			return nil, &WorkflowNotFoundError{ID: id}
		}
		return nil, err
	}
	return state, nil
}

// CancelWorkflow marks a workflow cancelled. Cancellation is advisory: steps
// already running finish naturally and their outcomes are recorded, but no
// further batch launches.
func (e *Engine) CancelWorkflow(ctx context.Context, id string) error {
	if wf, ok := e.registry.getActive(id); ok {
		oldStatus := wf.Status()
		if err := wf.Cancel(); err != nil {
			return &WorkflowNotCancellableError{ID: id, Status: wf.Status()}
		}
		e.persist(wf)
		e.emitWorkflowChange(wf, oldStatus)
		e.logger.InfoContext(ctx, "workflow cancelled", "workflow_id", id)
		return nil
	}

	state, err := e.GetWorkflowStatus(ctx, id)
	if err != nil {
		return err
	}
	return &WorkflowNotCancellableError{ID: id, Status: state.Status}
}

// ListWorkflows lists workflow snapshots with optional status filtering and
// pagination, returning the page and the total match count.
func (e *Engine) ListWorkflows(ctx context.Context, filter *storage.WorkflowFilter) ([]*storage.WorkflowState, int, error) {
	return e.store.ListWorkflows(ctx, filter)
}

// buildResult converts the final workflow state into an ExecutionResult.
func (e *Engine) buildResult(wf *Workflow, elapsed time.Duration) *ExecutionResult {
	snap := wf.Snapshot()

	ids := make([]string, 0, len(snap.Steps))
	for id := range snap.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	steps := make([]StepReport, 0, len(ids))
	for _, id := range ids {
		st := snap.Steps[id]
		steps = append(steps, StepReport{
			ID:          st.ID,
			Status:      st.Status,
			Attempts:    st.Attempts,
			Error:       st.Error,
			StartedAt:   st.StartedAt,
			CompletedAt: st.CompletedAt,
			Result:      st.Result,
		})
	}

	return &ExecutionResult{
		WorkflowID: snap.ID,
		Name:       snap.Name,
		Status:     snap.Status,
		Error:      snap.Error,
		Steps:      steps,
		Duration:   elapsed,
	}
}

// persist writes the current workflow snapshot; persistence failures are
// logged, never fatal to execution.
func (e *Engine) persist(wf *Workflow) {
	if err := e.store.SaveWorkflow(context.Background(), wf.Snapshot()); err != nil {
		e.logger.Error("workflow snapshot not persisted", "workflow_id", wf.ID, "error", err)
	}
}

// observeWorkflowChange is the scheduler hook for workflow transitions.
func (e *Engine) observeWorkflowChange(wf *Workflow, oldStatus string) {
	e.persist(wf)
	e.emitWorkflowChange(wf, oldStatus)

	status := wf.Status()
	if status == WorkflowStatusRunning {
		e.metrics.IncActiveWorkflows()
	}
	if oldStatus == WorkflowStatusRunning && isTerminalWorkflowStatus(status) {
		e.metrics.DecActiveWorkflows()
		snap := wf.Snapshot()
		started := snap.CreatedAt
		if snap.StartedAt != nil {
			started = *snap.StartedAt
		}
		if snap.CompletedAt != nil {
			e.metrics.RecordWorkflowDuration(status, snap.CompletedAt.Sub(started))
		}
	}
}

// observeStepChange is the scheduler hook for step transitions.
func (e *Engine) observeStepChange(wf *Workflow, stepID, oldStatus string) {
	e.persist(wf)
	e.emitStepChange(wf, stepID, oldStatus)

	rec := wf.stepRecord(stepID)
	if rec == nil || !isTerminalStepStatus(rec.Status) {
		return
	}
	e.metrics.RecordStepExecution(rec.Status)
	if rec.StartedAt != nil && rec.CompletedAt != nil {
		e.metrics.RecordStepDuration(rec.CompletedAt.Sub(*rec.StartedAt))
	}
	for i := 1; i < rec.Attempts; i++ {
		e.metrics.RecordStepRetry()
	}
}
