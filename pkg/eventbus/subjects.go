// Package eventbus provides in-process pub/sub for workflow lifecycle events.
package eventbus

import "fmt"

const (
	// SubjectPrefix is the prefix for all lifecycle event subjects.
	SubjectPrefix = "flowmill.v1.lifecycle"
)

// Domain identifies the lifecycle event domains.
type Domain string

const (
	DomainWorkflow Domain = "workflow"
	DomainStep     Domain = "step"
)

// WorkflowSubject returns the subject for a workflow lifecycle event.
func WorkflowSubject(eventType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, DomainWorkflow, sanitizeSegment(eventType))
}

// StepSubject returns the subject for a step lifecycle event.
func StepSubject(eventType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, DomainStep, sanitizeSegment(eventType))
}

// DomainWildcardSubject returns the wildcard subject for a domain.
func DomainWildcardSubject(domain Domain) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, sanitizeSegment(string(domain)))
}

// AllSubjects returns the wildcard subject matching every lifecycle event.
func AllSubjects() string {
	return SubjectPrefix + ".>"
}

func sanitizeSegment(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
