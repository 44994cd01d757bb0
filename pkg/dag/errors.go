package dag

import (
	"fmt"
	"strings"
)

// StepNotFoundError is returned when a referenced step does not exist.
type StepNotFoundError struct {
	ID string
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step not found: %s", e.ID)
}

// DuplicateStepError is returned when a step with the same ID is added twice.
type DuplicateStepError struct {
	ID string
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("duplicate step ID: %s", e.ID)
}

// DependencyNotFoundError is returned when a step depends on a step that was
// never added to the graph.
type DependencyNotFoundError struct {
	StepID string
	DepID  string
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("step %s depends on non-existent step: %s", e.StepID, e.DepID)
}

// CyclicDependencyError is returned when the graph contains a cycle.
// Path holds the cycle with the starting step repeated at the end,
// e.g. ["a", "b", "c", "a"].
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "cyclic dependency detected"
	}
	return fmt.Sprintf("cyclic dependency detected: %s", strings.Join(e.Path, " -> "))
}

// SelfDependencyError is returned when a step lists itself as a dependency.
type SelfDependencyError struct {
	ID string
}

func (e *SelfDependencyError) Error() string {
	return fmt.Sprintf("step %s cannot depend on itself", e.ID)
}
