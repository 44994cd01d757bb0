package dag

import (
	"container/list"
	"sort"
)

// TopologicalSort returns a topological ordering of step IDs using Kahn's
// algorithm. Returns CyclicDependencyError if the graph contains a cycle.
// O(V+E) time, O(V) space.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.rebuildEdges()

	if !g.dirty && g.sorted != nil {
		sorted := make([]string, len(g.sorted))
		copy(sorted, g.sorted)
		return sorted, nil
	}

	if len(g.steps) == 0 {
		return []string{}, nil
	}

	// Work on a copy of the in-degrees.
	inDegree := make(map[string]int, len(g.inDegree))
	for id, degree := range g.inDegree {
		inDegree[id] = degree
	}

	queue := list.New()
	for id, degree := range inDegree {
		if degree == 0 {
			queue.PushBack(id)
		}
	}

	result := make([]string, 0, len(g.steps))
	for queue.Len() > 0 {
		elem := queue.Front()
		queue.Remove(elem)
		node := elem.Value.(string)

		result = append(result, node)

		for _, dependent := range g.edges[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue.PushBack(dependent)
			}
		}
	}

	// Unprocessed nodes mean at least one cycle.
	if len(result) != len(g.steps) {
		if cycle, hasCycle := g.DetectCycle(); hasCycle {
			return nil, cycle
		}
		return nil, &CyclicDependencyError{}
	}

	g.sorted = make([]string, len(result))
	copy(g.sorted, result)

	return result, nil
}

// Levels groups step IDs by depth in the graph. Steps in the same level have
// no dependency relationship and can run in parallel; level 0 holds the roots.
// IDs within a level are sorted for deterministic output.
func (g *Graph) Levels() ([][]string, error) {
	if len(g.steps) == 0 {
		return [][]string{}, nil
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(g.steps))
	maxDepth := 0
	for _, id := range order {
		step := g.steps[id]
		for _, depID := range step.Deps {
			if d, ok := depth[depID]; ok && d+1 > depth[id] {
				depth[id] = d + 1
			}
		}
		if depth[id] > maxDepth {
			maxDepth = depth[id]
		}
	}

	levels := make([][]string, maxDepth+1)
	for id, d := range depth {
		levels[d] = append(levels[d], id)
	}
	for _, level := range levels {
		sort.Strings(level)
	}
	return levels, nil
}
