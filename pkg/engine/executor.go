package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowmill/flowmill/pkg/dag"
	"github.com/flowmill/flowmill/pkg/logger"
	"github.com/flowmill/flowmill/pkg/worker"
)

// DefaultBackoffBase is the delay before the second attempt; each further
// attempt doubles it.
const DefaultBackoffBase = time.Second

// stepOutcome is the terminal result of executing one step. Err is nil on
// success; Attempts counts worker invocations, zero when the worker could
// not be resolved.
type stepOutcome struct {
	Result   *worker.Result
	Attempts int
	Err      error
}

// stepExecutor runs a single step against its worker with per-attempt
// timeout enforcement and exponential backoff between attempts. It holds no
// per-workflow state and is safe for concurrent use.
type stepExecutor struct {
	workers     *worker.Registry
	backoffBase time.Duration
	logger      logger.Logger
}

func newStepExecutor(workers *worker.Registry, backoffBase time.Duration, log logger.Logger) *stepExecutor {
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	if log == nil {
		log = logger.Global()
	}
	return &stepExecutor{
		workers:     workers,
		backoffBase: backoffBase,
		logger:      log,
	}
}

// execute drives a step to a terminal outcome. An unknown worker fails the
// step without consuming any attempt. A timed-out invocation counts as a
// failed attempt like any worker error.
func (e *stepExecutor) execute(ctx context.Context, step *dag.Step) *stepOutcome {
	w, err := e.workers.Resolve(step.Worker)
	if err != nil {
		e.logger.ErrorContext(ctx, "worker not found", "step_id", step.ID, "worker", step.Worker)
		return &stepOutcome{
			Attempts: 0,
			Err:      &StepFailureError{StepID: step.ID, Attempts: 0, Cause: err},
		}
	}

	task := &worker.Task{
		TaskID:   step.ID,
		TaskType: step.TaskType,
		Payload:  step.Payload,
		Timeout:  step.Timeout,
	}

	limit := step.RetryLimit
	if limit < 1 {
		limit = 1
	}

	var (
		lastErr    error
		lastResult *worker.Result
	)

	for attempt := 1; attempt <= limit; attempt++ {
		start := time.Now()
		res, err := e.invoke(ctx, w, task, step.Timeout)
		elapsed := time.Since(start)

		if err == nil && res != nil && res.Success {
			e.logger.DebugContext(ctx, "step attempt succeeded",
				"step_id", step.ID, "attempt", attempt, "duration", elapsed)
			return &stepOutcome{Result: res, Attempts: attempt}
		}

		switch {
		case err != nil:
			lastErr = err
		case res == nil:
			lastErr = fmt.Errorf("worker %s returned no result", step.Worker)
		case res.ErrorMessage != "":
			lastResult = res
			lastErr = errors.New(res.ErrorMessage)
		default:
			lastResult = res
			lastErr = fmt.Errorf("worker %s reported failure", step.Worker)
		}

		e.logger.WarnContext(ctx, "step attempt failed",
			"step_id", step.ID, "attempt", attempt, "limit", limit,
			"duration", elapsed, "error", lastErr)

		// Caller gave up; remaining attempts are pointless.
		if ctx.Err() != nil {
			return &stepOutcome{
				Result:   lastResult,
				Attempts: attempt,
				Err:      &StepFailureError{StepID: step.ID, Attempts: attempt, Cause: ctx.Err()},
			}
		}

		if attempt < limit {
			if err := e.backoff(ctx, attempt); err != nil {
				return &stepOutcome{
					Result:   lastResult,
					Attempts: attempt,
					Err:      &StepFailureError{StepID: step.ID, Attempts: attempt, Cause: err},
				}
			}
		}
	}

	return &stepOutcome{
		Result:   lastResult,
		Attempts: limit,
		Err:      &StepFailureError{StepID: step.ID, Attempts: limit, Cause: lastErr},
	}
}

// invoke runs one worker attempt bounded by the step timeout. The select
// enforces the deadline even against a worker that ignores its context; an
// abandoned worker goroutine delivers into a buffered channel and exits.
func (e *stepExecutor) invoke(ctx context.Context, w worker.Worker, task *worker.Task, timeout time.Duration) (*worker.Result, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type reply struct {
		res *worker.Result
		err error
	}
	ch := make(chan reply, 1)

	go func() {
		res, err := w.Execute(runCtx, task)
		ch <- reply{res: res, err: err}
	}()

	select {
	case r := <-ch:
		return r.res, r.err
	case <-runCtx.Done():
		return nil, runCtx.Err()
	}
}

// backoff sleeps backoffBase * 2^(attempt-1), aborting on context
// cancellation.
func (e *stepExecutor) backoff(ctx context.Context, attempt int) error {
	delay := e.backoffBase << (attempt - 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
