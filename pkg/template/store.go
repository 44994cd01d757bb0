package template

import (
	"fmt"
	"sort"
	"sync"
)

// NotFoundError is returned when a template ID is not registered.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template not found: %s", e.ID)
}

// DuplicateError is returned when a template ID is registered twice.
type DuplicateError struct {
	ID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("template already registered: %s", e.ID)
}

// Store holds named workflow definitions.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*Definition
}

// NewStore creates an empty template store.
func NewStore() *Store {
	return &Store{
		templates: make(map[string]*Definition),
	}
}

// Register validates and stores a definition under the given ID.
// Cyclic or malformed definitions are rejected here, before any scheduling.
func (s *Store) Register(id string, def *Definition) error {
	if id == "" {
		return fmt.Errorf("template ID cannot be empty")
	}
	if def == nil {
		return fmt.Errorf("template definition cannot be nil")
	}
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[id]; exists {
		return &DuplicateError{ID: id}
	}
	s.templates[id] = def.clone()
	return nil
}

// Instantiate creates a runnable instance from a registered template,
// merging input into every step's payload.
func (s *Store) Instantiate(id string, input map[string]any) (*Instance, error) {
	s.mu.RLock()
	def, ok := s.templates[id]
	s.mu.RUnlock()

	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	inst, err := def.Instantiate(input)
	if err != nil {
		return nil, err
	}
	if inst.Metadata == nil {
		inst.Metadata = make(map[string]string)
	}
	inst.Metadata["template_id"] = id
	return inst, nil
}

// Get returns a copy of the registered definition.
func (s *Store) Get(id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.templates[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return def.clone(), nil
}

// IDs returns the registered template IDs, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// clone deep-copies the definition so store contents cannot be mutated by
// callers holding the original.
func (d *Definition) clone() *Definition {
	cloned := &Definition{
		Name:        d.Name,
		Description: d.Description,
		Steps:       make([]StepDefinition, len(d.Steps)),
	}
	for i, step := range d.Steps {
		copied := step
		if step.Payload != nil {
			copied.Payload = make(map[string]any, len(step.Payload))
			for k, v := range step.Payload {
				copied.Payload[k] = v
			}
		}
		if step.Dependencies != nil {
			copied.Dependencies = append([]string(nil), step.Dependencies...)
		}
		cloned.Steps[i] = copied
	}
	if d.Metadata != nil {
		cloned.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return cloned
}
