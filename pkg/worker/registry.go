package worker

import (
	"fmt"
	"sort"
	"sync"
)

// NotFoundError is returned when a step names a worker that was never
// registered. The scheduler turns it into a failed step outcome with zero
// invocation attempts.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("worker not found: %s", e.Name)
}

// DuplicateError is returned when a worker name is registered twice.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("worker already registered: %s", e.Name)
}

// Registry maps worker names to handles. It only records associations;
// resolution failures are reported to the caller, never fatal.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]Worker),
	}
}

// Register associates a worker's name with its handle.
func (r *Registry) Register(w Worker) error {
	if w == nil {
		return fmt.Errorf("worker cannot be nil")
	}
	if w.Name() == "" {
		return fmt.Errorf("worker name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[w.Name()]; exists {
		return &DuplicateError{Name: w.Name()}
	}
	r.workers[w.Name()] = w
	return nil
}

// Resolve returns the worker registered under the given name.
func (r *Registry) Resolve(name string) (Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return w, nil
}

// Names returns the registered worker names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
