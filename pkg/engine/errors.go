package engine

import "fmt"

// DefinitionError is returned when a workflow definition fails validation
// (unknown dependency references, cycles, malformed steps).
type DefinitionError struct {
	Cause error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid workflow definition: %v", e.Cause)
}

func (e *DefinitionError) Unwrap() error { return e.Cause }

// StepFailureError is returned when a step fails after exhausting its
// attempts. Attempts is zero when the worker could not be resolved.
type StepFailureError struct {
	StepID   string
	Attempts int
	Cause    error
}

func (e *StepFailureError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempt(s): %v", e.StepID, e.Attempts, e.Cause)
}

func (e *StepFailureError) Unwrap() error { return e.Cause }

// WorkflowNotFoundError is returned when a workflow ID is unknown to both
// the runtime registry and storage.
type WorkflowNotFoundError struct {
	ID string
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow not found: %s", e.ID)
}

// WorkflowNotCancellableError is returned when cancellation is requested for
// a workflow already in a terminal state.
type WorkflowNotCancellableError struct {
	ID     string
	Status string
}

func (e *WorkflowNotCancellableError) Error() string {
	return fmt.Sprintf("workflow %s cannot be cancelled: already %s", e.ID, e.Status)
}
