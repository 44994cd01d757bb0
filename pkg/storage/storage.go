// Package storage provides the persistence abstraction for workflow state
// snapshots. Storage is a query and history surface: execution always runs
// in-process, and cross-restart resumption is out of scope.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Storage is the interface workflow snapshots are written to and read from.
type Storage interface {
	// SaveWorkflow upserts a workflow snapshot, step states included.
	SaveWorkflow(ctx context.Context, wf *WorkflowState) error

	// GetWorkflow retrieves a workflow snapshot by ID.
	GetWorkflow(ctx context.Context, id string) (*WorkflowState, error)

	// ListWorkflows lists snapshots with optional filtering and pagination,
	// returning the page and the total match count.
	ListWorkflows(ctx context.Context, filter *WorkflowFilter) ([]*WorkflowState, int, error)

	// DeleteWorkflow removes a workflow snapshot.
	DeleteWorkflow(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

// WorkflowState is the persisted snapshot of a workflow.
type WorkflowState struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Status      string                `json:"status"`
	Steps       map[string]*StepState `json:"steps"`
	Metadata    map[string]string     `json:"metadata"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// StepState is the persisted snapshot of one step.
type StepState struct {
	ID          string         `json:"id"`
	Worker      string         `json:"worker"`
	TaskType    string         `json:"task_type"`
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
}

// WorkflowFilter defines filtering options for listing workflows.
type WorkflowFilter struct {
	Status []string `json:"status,omitempty"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// Clone deep-copies the snapshot so backends never share mutable state with
// callers.
func (w *WorkflowState) Clone() *WorkflowState {
	copied := *w
	if w.Steps != nil {
		copied.Steps = make(map[string]*StepState, len(w.Steps))
		for k, v := range w.Steps {
			stepCopy := *v
			if v.Result != nil {
				stepCopy.Result = make(map[string]any, len(v.Result))
				for rk, rv := range v.Result {
					stepCopy.Result[rk] = rv
				}
			}
			copied.Steps[k] = &stepCopy
		}
	}
	if w.Metadata != nil {
		copied.Metadata = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

// NotFoundError indicates that the requested entity was not found.
type NotFoundError struct {
	EntityType string
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.EntityType, e.ID)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure serializing or deserializing state.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }
