// Package template stores named, reusable workflow definitions and stamps out
// runnable instances from them.
package template

import (
	"fmt"
	"time"

	"github.com/flowmill/flowmill/pkg/dag"
	"github.com/google/uuid"
)

const (
	// DefaultRetryLimit is applied when a step definition omits retry_limit.
	DefaultRetryLimit = 3

	// DefaultTimeout is applied when a step definition omits timeout.
	DefaultTimeout = 300 * time.Second
)

// StepDefinition describes one step of a workflow shape.
type StepDefinition struct {
	// StepID is unique within the definition; instantiation prefixes it with
	// the generated workflow ID.
	StepID string `json:"step_id" yaml:"step_id" validate:"required"`

	// Worker names the registered worker that executes this step.
	Worker string `json:"worker" yaml:"worker" validate:"required"`

	// TaskType is the operation the worker should perform.
	TaskType string `json:"task_type" yaml:"task_type" validate:"required"`

	// Payload is the step's base input; workflow input is merged over it at
	// instantiation, with the workflow input winning on key collision.
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`

	// Dependencies lists step IDs that must complete before this step.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// RetryLimit is the maximum number of execution attempts (default 3).
	RetryLimit int `json:"retry_limit,omitempty" yaml:"retry_limit,omitempty" validate:"omitempty,min=1"`

	// Timeout bounds a single worker invocation (default 300s).
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Definition is a workflow shape without runtime state.
type Definition struct {
	Name        string            `json:"name" yaml:"name" validate:"required"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []StepDefinition  `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Instance is a concrete, runnable workflow produced from a definition:
// fresh workflow ID, namespaced step IDs, input data merged into payloads.
type Instance struct {
	WorkflowID  string
	Name        string
	Description string
	Steps       []*dag.Step
	Metadata    map[string]string
}

// Validate checks a definition for structural soundness: unique step IDs,
// resolvable dependency references, and an acyclic graph.
func (d *Definition) Validate() error {
	_, err := d.Graph()
	return err
}

// Graph builds the definition's validated dependency graph with the raw,
// unprefixed step IDs. Callers use it for plan compilation and diagnostics.
func (d *Definition) Graph() (*dag.Graph, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("template name cannot be empty")
	}
	if len(d.Steps) == 0 {
		return nil, fmt.Errorf("template %s: at least one step is required", d.Name)
	}

	g := dag.NewGraph()
	for i := range d.Steps {
		step := buildStep(&d.Steps[i], "", nil)
		if err := g.AddStep(step); err != nil {
			return nil, fmt.Errorf("template %s: %w", d.Name, err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("template %s: %w", d.Name, err)
	}
	return g, nil
}

// Plan compiles the definition into an execution plan: steps grouped into
// parallel levels plus the critical path.
func (d *Definition) Plan() (*dag.ExecutionPlan, error) {
	g, err := d.Graph()
	if err != nil {
		return nil, err
	}
	plan, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", d.Name, err)
	}
	return plan, nil
}

// Instantiate produces a runnable instance from the definition. Step IDs and
// dependency references are rewritten to "{workflow_id}_{step_id}" so the
// same definition can run concurrently many times without collision.
func (d *Definition) Instantiate(input map[string]any) (*Instance, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	workflowID := uuid.NewString()
	steps := make([]*dag.Step, 0, len(d.Steps))
	for i := range d.Steps {
		steps = append(steps, buildStep(&d.Steps[i], workflowID, input))
	}

	metadata := make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		metadata[k] = v
	}

	return &Instance{
		WorkflowID:  workflowID,
		Name:        d.Name,
		Description: d.Description,
		Steps:       steps,
		Metadata:    metadata,
	}, nil
}

// buildStep deep-copies a step definition into a dag.Step, applying defaults,
// namespacing (when workflowID is set), and input-data merge.
func buildStep(def *StepDefinition, workflowID string, input map[string]any) *dag.Step {
	payload := make(map[string]any, len(def.Payload)+len(input))
	for k, v := range def.Payload {
		payload[k] = v
	}
	// Caller-supplied input wins on key collision.
	for k, v := range input {
		payload[k] = v
	}

	retryLimit := def.RetryLimit
	if retryLimit <= 0 {
		retryLimit = DefaultRetryLimit
	}
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	deps := make([]string, len(def.Dependencies))
	for i, dep := range def.Dependencies {
		deps[i] = namespaced(workflowID, dep)
	}

	return &dag.Step{
		ID:         namespaced(workflowID, def.StepID),
		Worker:     def.Worker,
		TaskType:   def.TaskType,
		Payload:    payload,
		Deps:       deps,
		RetryLimit: retryLimit,
		Timeout:    timeout,
	}
}

func namespaced(workflowID, stepID string) string {
	if workflowID == "" {
		return stepID
	}
	return fmt.Sprintf("%s_%s", workflowID, stepID)
}

// FromDefinition builds a one-off instance directly from a caller-supplied
// definition, bypassing the store.
func FromDefinition(def *Definition, input map[string]any) (*Instance, error) {
	return def.Instantiate(input)
}
