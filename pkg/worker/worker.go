// Package worker defines the uniform task-execution contract between the
// engine and its external collaborators, and the registry that resolves
// worker names to handles.
package worker

import (
	"context"
	"time"
)

// Task is the request submitted to a worker for a single step execution.
type Task struct {
	// TaskID is "{workflow_id}_{step_id}", unique per invocation target.
	TaskID string `json:"task_id"`

	// TaskType is the operation the worker should perform.
	TaskType string `json:"task_type"`

	// Payload carries the step's merged input data.
	Payload map[string]any `json:"payload"`

	// Timeout bounds this single invocation.
	Timeout time.Duration `json:"timeout_seconds"`
}

// Result is the uniform response every worker must honor.
type Result struct {
	// Success reports whether the task was handled.
	Success bool `json:"success"`

	// Data holds worker-specific output.
	Data map[string]any `json:"data"`

	// Confidence is the worker's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// ProcessingTime is the worker-side execution duration in seconds.
	ProcessingTime float64 `json:"processing_time_seconds"`

	// ErrorMessage describes the failure when Success is false.
	ErrorMessage string `json:"error_message,omitempty"`
}

// Failure builds a failed Result with the given error message.
func Failure(msg string) *Result {
	return &Result{
		Success:      false,
		Data:         map[string]any{},
		ErrorMessage: msg,
	}
}

// Worker is an external collaborator capable of executing tasks.
// Implementations must be safe for concurrent use: the engine fans out
// independent steps in parallel and may route several of them to one worker.
type Worker interface {
	// Name returns the registry key for this worker.
	Name() string

	// TaskTypes lists the task types this worker supports.
	TaskTypes() []string

	// Execute performs the task. A non-nil error is treated the same as a
	// Result with Success=false; the engine retries either form.
	Execute(ctx context.Context, task *Task) (*Result, error)
}

// Func adapts a plain function to the Worker interface.
type Func struct {
	WorkerName string
	Types      []string
	Fn         func(ctx context.Context, task *Task) (*Result, error)
}

// Name implements Worker.
func (f *Func) Name() string { return f.WorkerName }

// TaskTypes implements Worker.
func (f *Func) TaskTypes() []string { return f.Types }

// Execute implements Worker.
func (f *Func) Execute(ctx context.Context, task *Task) (*Result, error) {
	return f.Fn(ctx, task)
}
