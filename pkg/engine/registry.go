package engine

import (
	"sort"
	"sync"
)

// DefaultMaxRetained is the default number of terminal workflows kept in
// memory for status queries.
const DefaultMaxRetained = 100

// registry tracks in-flight workflows plus a bounded window of the most
// recently finished ones. The mutex guards registration and eviction only;
// step mutation is owned by the scheduler.
type registry struct {
	mu       sync.RWMutex
	active   map[string]*Workflow
	retained map[string]*Workflow
	order    []string // retained IDs, oldest first
	capacity int
}

func newRegistry(capacity int) *registry {
	if capacity <= 0 {
		capacity = DefaultMaxRetained
	}
	return &registry{
		active:   make(map[string]*Workflow),
		retained: make(map[string]*Workflow),
		capacity: capacity,
	}
}

func (r *registry) add(wf *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[wf.ID] = wf
}

// get returns a workflow by ID, active executions first.
func (r *registry) get(id string) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if wf, ok := r.active[id]; ok {
		return wf, true
	}
	wf, ok := r.retained[id]
	return wf, ok
}

// getActive returns a workflow only if it is still executing.
func (r *registry) getActive(id string) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.active[id]
	return wf, ok
}

// retire moves a finished workflow into the retention window, evicting the
// oldest entries beyond capacity.
func (r *registry) retire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wf, ok := r.active[id]
	if !ok {
		return
	}
	delete(r.active, id)

	r.retained[id] = wf
	r.order = append(r.order, id)
	for len(r.order) > r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.retained, oldest)
	}
}

// list returns all known workflows, active first, each group sorted by ID.
func (r *registry) list() []*Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]*Workflow, 0, len(r.active))
	for _, wf := range r.active {
		active = append(active, wf)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	retained := make([]*Workflow, 0, len(r.retained))
	for _, wf := range r.retained {
		retained = append(retained, wf)
	}
	sort.Slice(retained, func(i, j int) bool { return retained[i].ID < retained[j].ID })

	return append(active, retained...)
}

func (r *registry) activeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
