// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/flowmill/flowmill/pkg/storage"
)

// Storage implements storage.Storage using an in-memory map.
type Storage struct {
	mu        sync.RWMutex
	workflows map[string]*storage.WorkflowState
}

// New creates a new in-memory storage instance.
func New() *Storage {
	return &Storage{
		workflows: make(map[string]*storage.WorkflowState),
	}
}

// SaveWorkflow upserts a workflow snapshot.
func (m *Storage) SaveWorkflow(ctx context.Context, wf *storage.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workflows[wf.ID] = wf.Clone()
	return nil
}

// GetWorkflow retrieves a workflow snapshot by ID.
func (m *Storage) GetWorkflow(ctx context.Context, id string) (*storage.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, exists := m.workflows[id]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "workflow", ID: id}
	}
	return wf.Clone(), nil
}

// ListWorkflows lists snapshots with optional filtering and pagination.
func (m *Storage) ListWorkflows(ctx context.Context, filter *storage.WorkflowFilter) ([]*storage.WorkflowState, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []*storage.WorkflowState
	if filter != nil && len(filter.Status) > 0 {
		statusSet := make(map[string]bool, len(filter.Status))
		for _, s := range filter.Status {
			statusSet[s] = true
		}
		for _, wf := range m.workflows {
			if statusSet[wf.Status] {
				filtered = append(filtered, wf)
			}
		}
	} else {
		for _, wf := range m.workflows {
			filtered = append(filtered, wf)
		}
	}

	// Newest first, for stable pagination.
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)

	if filter != nil && filter.Limit > 0 {
		start := filter.Offset
		end := filter.Offset + filter.Limit
		if start > len(filtered) {
			start = len(filtered)
		}
		if end > len(filtered) {
			end = len(filtered)
		}
		filtered = filtered[start:end]
	}

	result := make([]*storage.WorkflowState, len(filtered))
	for i, wf := range filtered {
		result[i] = wf.Clone()
	}
	return result, total, nil
}

// DeleteWorkflow removes a workflow snapshot.
func (m *Storage) DeleteWorkflow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workflows[id]; !exists {
		return &storage.NotFoundError{EntityType: "workflow", ID: id}
	}
	delete(m.workflows, id)
	return nil
}

// Close is a no-op for the in-memory backend.
func (m *Storage) Close() error {
	return nil
}
