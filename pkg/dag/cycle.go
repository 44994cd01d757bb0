package dag

// DetectCycle uses DFS with three-color marking to detect a cycle.
// Returns (nil, false) if no cycle exists, otherwise the cycle and true.
// O(V+E) time, O(V) space.
func (g *Graph) DetectCycle() (*CyclicDependencyError, bool) {
	if len(g.steps) == 0 {
		return nil, false
	}

	g.rebuildEdges()

	// 0 white: unvisited, 1 gray: on the current DFS path, 2 black: done.
	color := make(map[string]int, len(g.steps))

	for id := range g.steps {
		if color[id] == 0 {
			if cycle := g.dfsCycle(id, color, nil); cycle != nil {
				return &CyclicDependencyError{Path: cycle}, true
			}
		}
	}

	return nil, false
}

// dfsCycle walks dependents depth-first and returns the cycle path when a
// back edge to a gray node is found.
func (g *Graph) dfsCycle(node string, color map[string]int, path []string) []string {
	color[node] = 1
	path = append(path, node)

	for _, dependent := range g.edges[node] {
		switch color[dependent] {
		case 0:
			if cycle := g.dfsCycle(dependent, color, path); cycle != nil {
				return cycle
			}
		case 1:
			return closeCyclePath(path, dependent)
		}
	}

	color[node] = 2
	return nil
}

// closeCyclePath trims the DFS path to the cycle and repeats the entry node
// at the end so the loop is explicit in error output.
func closeCyclePath(path []string, cycleStart string) []string {
	startIdx := -1
	for i, node := range path {
		if node == cycleStart {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return []string{cycleStart, cycleStart}
	}

	cycle := make([]string, len(path)-startIdx+1)
	copy(cycle, path[startIdx:])
	cycle[len(cycle)-1] = cycleStart
	return cycle
}

// HasCycle reports whether the graph contains a cycle.
func (g *Graph) HasCycle() bool {
	_, hasCycle := g.DetectCycle()
	return hasCycle
}
