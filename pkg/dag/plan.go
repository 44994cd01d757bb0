package dag

// ExecutionPlan is a compiled view of a validated graph: steps grouped into
// parallel levels plus the critical path that bounds minimum execution time.
type ExecutionPlan struct {
	// Levels contains step IDs grouped by depth; steps within a level can
	// execute concurrently.
	Levels [][]string `json:"levels"`

	// CriticalPath is the longest dependency chain in the graph.
	CriticalPath []string `json:"critical_path"`

	// TotalSteps is the number of steps in the plan.
	TotalSteps int `json:"total_steps"`

	// MaxParallel is the widest level in the plan.
	MaxParallel int `json:"max_parallel"`

	stepMap map[string]*Step
}

// Compile validates the graph and produces an ExecutionPlan.
func (g *Graph) Compile() (*ExecutionPlan, error) {
	if len(g.steps) == 0 {
		return &ExecutionPlan{
			Levels:       [][]string{},
			CriticalPath: []string{},
			stepMap:      make(map[string]*Step),
		}, nil
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	levels, err := g.Levels()
	if err != nil {
		return nil, err
	}

	maxParallel := 0
	for _, level := range levels {
		if len(level) > maxParallel {
			maxParallel = len(level)
		}
	}

	stepMap := make(map[string]*Step, len(g.steps))
	for id, step := range g.steps {
		stepMap[id] = step.Clone()
	}

	return &ExecutionPlan{
		Levels:       levels,
		CriticalPath: g.criticalPath(),
		TotalSteps:   len(g.steps),
		MaxParallel:  maxParallel,
		stepMap:      stepMap,
	}, nil
}

// criticalPath finds the longest path in the graph by dynamic programming
// over the topological order.
func (g *Graph) criticalPath() []string {
	order, err := g.TopologicalSort()
	if err != nil {
		return []string{}
	}

	dist := make(map[string]int, len(g.steps))
	prev := make(map[string]string, len(g.steps))
	for _, id := range order {
		dist[id] = 1
	}

	maxDist := 0
	maxNode := ""
	for _, id := range order {
		step := g.steps[id]
		for _, depID := range step.Deps {
			if dist[depID]+1 > dist[id] {
				dist[id] = dist[depID] + 1
				prev[id] = depID
			}
		}
		if dist[id] > maxDist {
			maxDist = dist[id]
			maxNode = id
		}
	}

	if maxNode == "" {
		return []string{}
	}

	path := []string{}
	for node := maxNode; node != ""; node = prev[node] {
		path = append([]string{node}, path...)
	}
	return path
}

// GetStep retrieves a step from the plan by ID.
func (p *ExecutionPlan) GetStep(id string) (*Step, bool) {
	step, ok := p.stepMap[id]
	if !ok {
		return nil, false
	}
	return step.Clone(), true
}

// LevelOf returns the level index of a step, or -1 if absent.
func (p *ExecutionPlan) LevelOf(stepID string) int {
	if p == nil {
		return -1
	}
	for i, level := range p.Levels {
		for _, id := range level {
			if id == stepID {
				return i
			}
		}
	}
	return -1
}

// CanRunInParallel reports whether two steps sit in the same level.
func (p *ExecutionPlan) CanRunInParallel(stepID1, stepID2 string) bool {
	l1 := p.LevelOf(stepID1)
	l2 := p.LevelOf(stepID2)
	return l1 == l2 && l1 >= 0
}
