// Package models defines API request/response data structures.
package models

import (
	"time"

	"github.com/flowmill/flowmill/pkg/template"
)

// ExecuteWorkflowRequest submits a workflow: either a registered template
// by ID or an inline one-off definition. Input is merged into every step
// payload, with input keys winning on conflict.
type ExecuteWorkflowRequest struct {
	// TemplateID selects a registered template.
	TemplateID string `json:"template_id,omitempty"`

	// Definition is an inline workflow definition, used when TemplateID
	// is empty.
	Definition *template.Definition `json:"definition,omitempty"`

	// Input holds workflow-level parameters.
	Input map[string]any `json:"input,omitempty"`

	// Wait makes the request block until the workflow finishes.
	Wait bool `json:"wait,omitempty"`
}

// SubmitResponse acknowledges an asynchronous workflow submission.
type SubmitResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// WorkflowStatusResponse is a full workflow snapshot.
type WorkflowStatusResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Steps       []StepStatus      `json:"steps"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// StepStatus is the per-step view in a workflow snapshot.
type StepStatus struct {
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

// WorkflowListResponse is a paginated list of workflow summaries.
type WorkflowListResponse struct {
	Workflows []WorkflowSummary `json:"workflows"`
	Total     int               `json:"total"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

// WorkflowSummary is a brief overview of one workflow.
type WorkflowSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	StepCount   int        `json:"step_count"`
}

// StepResultResponse is the result of a single step.
type StepResultResponse struct {
	WorkflowID  string         `json:"workflow_id"`
	StepID      string         `json:"step_id"`
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// TemplateResponse acknowledges a template registration.
type TemplateResponse struct {
	ID    string `json:"id"`
	Steps int    `json:"steps"`
}

// TemplateListResponse lists registered template IDs.
type TemplateListResponse struct {
	Templates []string `json:"templates"`
	Total     int      `json:"total"`
}

// TemplatePlanResponse is the compiled execution plan of a template: steps
// grouped into parallel levels, the critical path bounding minimum runtime,
// and per-step wiring.
type TemplatePlanResponse struct {
	ID           string              `json:"id"`
	TotalSteps   int                 `json:"total_steps"`
	MaxParallel  int                 `json:"max_parallel"`
	Levels       [][]string          `json:"levels"`
	CriticalPath []string            `json:"critical_path"`
	Roots        []string            `json:"roots"`
	Steps        map[string]PlanStep `json:"steps"`
}

// PlanStep is the per-step view in a template plan.
type PlanStep struct {
	Worker       string   `json:"worker"`
	TaskType     string   `json:"task_type"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
	Level        int      `json:"level"`
}
