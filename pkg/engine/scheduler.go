package engine

import (
	"context"
	"sync"
	"time"

	"github.com/flowmill/flowmill/pkg/dag"
	"github.com/flowmill/flowmill/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPollInterval is the fallback wait between readiness passes when no
// completion signal arrives.
const DefaultPollInterval = 100 * time.Millisecond

// scheduler drives one workflow to a terminal status. Each pass it computes
// the ready set (waiting steps whose dependencies all completed) and fans the
// whole batch out concurrently; the next pass starts only after the entire
// batch has landed, so no step influences readiness mid-batch.
type scheduler struct {
	executor     *stepExecutor
	logger       logger.Logger
	pollInterval time.Duration

	// onStepChange and onWorkflowChange observe every transition. The engine
	// uses them to persist snapshots, emit lifecycle events, and record
	// metrics.
	onStepChange     func(wf *Workflow, stepID, oldStatus string)
	onWorkflowChange func(wf *Workflow, oldStatus string)
}

func newScheduler(executor *stepExecutor, log logger.Logger, pollInterval time.Duration) *scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if log == nil {
		log = logger.Global()
	}
	return &scheduler{
		executor:         executor,
		logger:           log,
		pollInterval:     pollInterval,
		onStepChange:     func(*Workflow, string, string) {},
		onWorkflowChange: func(*Workflow, string) {},
	}
}

// run executes the workflow until it reaches a terminal status. It returns
// after every launched step has landed; cancellation stops new batches but
// never interrupts steps already in flight.
func (s *scheduler) run(ctx context.Context, wf *Workflow) {
	if err := s.setWorkflowStatus(wf, WorkflowStatusRunning, ""); err != nil {
		s.logger.ErrorContext(ctx, "workflow could not start", "workflow_id", wf.ID, "error", err)
		return
	}

	for {
		if ctx.Err() != nil && !isTerminalWorkflowStatus(wf.Status()) {
			s.setWorkflowStatus(wf, WorkflowStatusCancelled, ctx.Err().Error())
		}
		if wf.Status() == WorkflowStatusCancelled {
			s.logger.InfoContext(ctx, "workflow cancelled, no further batches",
				"workflow_id", wf.ID, "waiting", wf.waitingCount())
			return
		}

		ready := wf.readySteps()
		if len(ready) > 0 {
			s.runBatch(ctx, wf, ready)
			continue
		}

		if wf.runningCount() == 0 {
			s.finish(ctx, wf)
			return
		}

		// Defensive: with the batch barrier nothing should be running here,
		// but readiness recomputation stays bounded either way.
		wf.awaitChange(ctx.Done(), s.pollInterval)
	}
}

// runBatch starts every ready step and blocks until all of them land.
func (s *scheduler) runBatch(ctx context.Context, wf *Workflow, batch []*dag.Step) {
	s.logger.DebugContext(ctx, "scheduling batch", "workflow_id", wf.ID, "steps", len(batch))

	var wg sync.WaitGroup
	for _, step := range batch {
		if err := wf.startStep(step.ID); err != nil {
			s.logger.ErrorContext(ctx, "step could not start",
				"workflow_id", wf.ID, "step_id", step.ID, "error", err)
			continue
		}
		s.onStepChange(wf, step.ID, StepStatusWaiting)

		wg.Add(1)
		go func(st *dag.Step) {
			defer wg.Done()
			s.runStep(ctx, wf, st)
		}(step)
	}
	wg.Wait()
}

func (s *scheduler) runStep(ctx context.Context, wf *Workflow, step *dag.Step) {
	stepCtx, span := engineTracer().Start(ctx, spanStepRun,
		trace.WithAttributes(
			attribute.String("workflow.id", wf.ID),
			attribute.String("step.id", step.ID),
			attribute.String("step.worker", step.Worker),
		))
	defer span.End()

	out := s.executor.execute(stepCtx, step)
	if err := wf.completeStep(step.ID, out); err != nil {
		s.logger.ErrorContext(ctx, "step outcome could not be recorded",
			"workflow_id", wf.ID, "step_id", step.ID, "error", err)
		return
	}
	s.onStepChange(wf, step.ID, StepStatusRunning)
}

// finish settles the workflow once nothing is ready and nothing is running.
// Waiting steps at this point sit behind a failed dependency: they are marked
// skipped so their non-execution is observable, and the workflow fails.
func (s *scheduler) finish(ctx context.Context, wf *Workflow) {
	if wf.waitingCount() > 0 {
		skipped := wf.skipBlockedSteps()
		s.logger.WarnContext(ctx, "blocked steps skipped",
			"workflow_id", wf.ID, "steps", skipped)
		for _, id := range skipped {
			s.onStepChange(wf, id, StepStatusWaiting)
		}
	}

	if len(wf.failedSteps()) > 0 {
		s.setWorkflowStatus(wf, WorkflowStatusFailed, wf.failureSummary())
		return
	}
	s.setWorkflowStatus(wf, WorkflowStatusCompleted, "")
}

func (s *scheduler) setWorkflowStatus(wf *Workflow, newStatus, errMsg string) error {
	oldStatus := wf.Status()
	if err := wf.transition(newStatus, errMsg); err != nil {
		return err
	}
	s.onWorkflowChange(wf, oldStatus)
	return nil
}
