// Package dag models the step-dependency graph of a workflow and validates
// that it is executable: every dependency exists and no cycle is present.
package dag

import (
	"fmt"
	"time"
)

// Step is one node in a workflow graph: a unit of work routed to exactly one
// worker, gated on the completion of its dependencies.
type Step struct {
	// ID is the step identifier, unique within a workflow.
	ID string `json:"id" yaml:"id"`

	// Worker names the registered worker that executes this step.
	Worker string `json:"worker" yaml:"worker"`

	// TaskType is the operation the worker should perform.
	TaskType string `json:"task_type" yaml:"task_type"`

	// Payload carries step input, merged with workflow input at instantiation.
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`

	// Deps lists step IDs that must complete before this step becomes ready.
	Deps []string `json:"deps,omitempty" yaml:"deps,omitempty"`

	// RetryLimit is the maximum number of execution attempts.
	RetryLimit int `json:"retry_limit,omitempty" yaml:"retry_limit,omitempty"`

	// Timeout bounds a single worker invocation, not the whole retry sequence.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Validate checks that the step definition is well formed.
func (s *Step) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("step ID cannot be empty")
	}
	if s.Worker == "" {
		return fmt.Errorf("step %s: worker name cannot be empty", s.ID)
	}
	if s.TaskType == "" {
		return fmt.Errorf("step %s: task type cannot be empty", s.ID)
	}
	if s.RetryLimit < 0 {
		return fmt.Errorf("step %s: retry limit cannot be negative", s.ID)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("step %s: timeout cannot be negative", s.ID)
	}
	return nil
}

// Clone returns a deep copy of the step.
func (s *Step) Clone() *Step {
	cloned := &Step{
		ID:         s.ID,
		Worker:     s.Worker,
		TaskType:   s.TaskType,
		RetryLimit: s.RetryLimit,
		Timeout:    s.Timeout,
	}

	if s.Deps != nil {
		cloned.Deps = make([]string, len(s.Deps))
		copy(cloned.Deps, s.Deps)
	}

	if s.Payload != nil {
		cloned.Payload = make(map[string]any, len(s.Payload))
		for k, v := range s.Payload {
			cloned.Payload[k] = v
		}
	}

	return cloned
}

// DependsOn reports whether the step lists the given step ID as a dependency.
func (s *Step) DependsOn(stepID string) bool {
	for _, dep := range s.Deps {
		if dep == stepID {
			return true
		}
	}
	return false
}

// String returns a compact description of the step.
func (s *Step) String() string {
	return fmt.Sprintf("Step{ID: %s, Worker: %s, TaskType: %s, Deps: %v}",
		s.ID, s.Worker, s.TaskType, s.Deps)
}
