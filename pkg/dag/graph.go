package dag

import (
	"fmt"
	"sort"
)

// Graph is a directed acyclic graph of workflow steps.
// Edges point from a step to the steps that depend on it.
type Graph struct {
	steps    map[string]*Step
	edges    map[string][]string // step -> dependents
	inDegree map[string]int

	dirty  bool     // structure changed since edges were last rebuilt
	sorted []string // cached topological order
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		steps:    make(map[string]*Step),
		edges:    make(map[string][]string),
		inDegree: make(map[string]int),
		dirty:    true,
	}
}

// AddStep adds a step to the graph. Steps may be added in any order;
// dependency references are checked in Validate.
func (g *Graph) AddStep(step *Step) error {
	if step == nil {
		return fmt.Errorf("step cannot be nil")
	}
	if err := step.Validate(); err != nil {
		return err
	}
	if _, exists := g.steps[step.ID]; exists {
		return &DuplicateStepError{ID: step.ID}
	}

	cloned := step.Clone()
	for _, depID := range cloned.Deps {
		if depID == cloned.ID {
			return &SelfDependencyError{ID: cloned.ID}
		}
	}

	g.steps[cloned.ID] = cloned
	g.dirty = true
	return nil
}

// GetStep retrieves a copy of a step by ID.
func (g *Graph) GetStep(id string) (*Step, bool) {
	step, ok := g.steps[id]
	if !ok {
		return nil, false
	}
	return step.Clone(), true
}

// HasStep reports whether a step exists in the graph.
func (g *Graph) HasStep(id string) bool {
	_, ok := g.steps[id]
	return ok
}

// Steps returns all steps, sorted by ID for deterministic ordering.
func (g *Graph) Steps() []*Step {
	steps := make([]*Step, 0, len(g.steps))
	for _, step := range g.steps {
		steps = append(steps, step.Clone())
	}
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].ID < steps[j].ID
	})
	return steps
}

// StepCount returns the number of steps in the graph.
func (g *Graph) StepCount() int {
	return len(g.steps)
}

// Dependencies returns the steps the given step depends on.
func (g *Graph) Dependencies(id string) ([]*Step, error) {
	step, exists := g.steps[id]
	if !exists {
		return nil, &StepNotFoundError{ID: id}
	}

	deps := make([]*Step, 0, len(step.Deps))
	for _, depID := range step.Deps {
		dep, ok := g.steps[depID]
		if !ok {
			return nil, &DependencyNotFoundError{StepID: id, DepID: depID}
		}
		deps = append(deps, dep.Clone())
	}
	return deps, nil
}

// Dependents returns the steps that depend on the given step.
func (g *Graph) Dependents(id string) ([]*Step, error) {
	if _, exists := g.steps[id]; !exists {
		return nil, &StepNotFoundError{ID: id}
	}

	g.rebuildEdges()

	ids := g.edges[id]
	dependents := make([]*Step, 0, len(ids))
	for _, depID := range ids {
		if step, ok := g.steps[depID]; ok {
			dependents = append(dependents, step.Clone())
		}
	}
	return dependents, nil
}

// Roots returns steps with no dependencies, sorted by ID.
func (g *Graph) Roots() []*Step {
	g.rebuildEdges()

	roots := make([]*Step, 0)
	for id, step := range g.steps {
		if g.inDegree[id] == 0 {
			roots = append(roots, step.Clone())
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].ID < roots[j].ID
	})
	return roots
}

// rebuildEdges recomputes the adjacency list and in-degrees from step
// dependencies. No-op when the structure has not changed.
func (g *Graph) rebuildEdges() {
	if !g.dirty {
		return
	}

	g.sorted = nil
	g.edges = make(map[string][]string, len(g.steps))
	g.inDegree = make(map[string]int, len(g.steps))

	for id := range g.steps {
		g.edges[id] = []string{}
		g.inDegree[id] = 0
	}

	for id, step := range g.steps {
		for _, depID := range step.Deps {
			// depID -> id: id depends on depID
			g.edges[depID] = append(g.edges[depID], id)
			g.inDegree[id]++
		}
	}

	g.dirty = false
}

// Validate checks that every dependency exists and that the graph is acyclic.
func (g *Graph) Validate() error {
	g.rebuildEdges()

	for id, step := range g.steps {
		for _, depID := range step.Deps {
			if _, exists := g.steps[depID]; !exists {
				return &DependencyNotFoundError{StepID: id, DepID: depID}
			}
		}
	}

	if cycle, hasCycle := g.DetectCycle(); hasCycle {
		return cycle
	}
	return nil
}
