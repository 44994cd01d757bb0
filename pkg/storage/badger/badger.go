// Package badger provides a Badger-backed implementation of the storage
// interface, keeping workflow history across restarts on a single node.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/flowmill/flowmill/pkg/storage"
)

// Config holds configuration for the Badger backend.
type Config struct {
	Path             string
	SyncWrites       bool
	ValueLogFileSize int64
}

// Storage implements storage.Storage using Badger.
type Storage struct {
	db *badger.DB
}

// New opens a Badger database at the configured path.
func New(cfg *Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return &Storage{db: db}, nil
}

func workflowKey(id string) []byte {
	return []byte(fmt.Sprintf("workflow:%s", id))
}

func statusIndexKey(status, id string) []byte {
	return []byte(fmt.Sprintf("index:status:%s:%s", status, id))
}

func serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

func deserialize(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return nil
}

// SaveWorkflow upserts a workflow snapshot and maintains the status index.
func (b *Storage) SaveWorkflow(ctx context.Context, wf *storage.WorkflowState) error {
	data, err := serialize(wf)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		// Drop a stale status index entry if the status changed.
		if prev, err := getWorkflowInTxn(txn, wf.ID); err == nil && prev.Status != wf.Status {
			if err := txn.Delete(statusIndexKey(prev.Status, wf.ID)); err != nil {
				return err
			}
		}

		if err := txn.Set(workflowKey(wf.ID), data); err != nil {
			return err
		}
		return txn.Set(statusIndexKey(wf.Status, wf.ID), []byte{})
	})
}

// GetWorkflow retrieves a workflow snapshot by ID.
func (b *Storage) GetWorkflow(ctx context.Context, id string) (*storage.WorkflowState, error) {
	var wf *storage.WorkflowState
	err := b.db.View(func(txn *badger.Txn) error {
		got, err := getWorkflowInTxn(txn, id)
		if err != nil {
			return err
		}
		wf = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func getWorkflowInTxn(txn *badger.Txn, id string) (*storage.WorkflowState, error) {
	item, err := txn.Get(workflowKey(id))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, &storage.NotFoundError{EntityType: "workflow", ID: id}
		}
		return nil, err
	}

	var wf storage.WorkflowState
	if err := item.Value(func(val []byte) error {
		return deserialize(val, &wf)
	}); err != nil {
		return nil, err
	}
	return &wf, nil
}

// ListWorkflows lists snapshots with optional filtering and pagination.
func (b *Storage) ListWorkflows(ctx context.Context, filter *storage.WorkflowFilter) ([]*storage.WorkflowState, int, error) {
	var workflows []*storage.WorkflowState

	err := b.db.View(func(txn *badger.Txn) error {
		if filter != nil && len(filter.Status) > 0 {
			for _, status := range filter.Status {
				prefix := []byte(fmt.Sprintf("index:status:%s:", status))
				opts := badger.DefaultIteratorOptions
				opts.Prefix = prefix
				opts.PrefetchValues = false

				it := txn.NewIterator(opts)
				for it.Rewind(); it.Valid(); it.Next() {
					key := string(it.Item().Key())
					id := strings.TrimPrefix(key, string(prefix))
					wf, err := getWorkflowInTxn(txn, id)
					if err != nil {
						continue
					}
					workflows = append(workflows, wf)
				}
				it.Close()
			}
			return nil
		}

		prefix := []byte("workflow:")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var wf storage.WorkflowState
			if err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &wf)
			}); err != nil {
				continue
			}
			workflows = append(workflows, &wf)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := len(workflows)

	if filter != nil && filter.Limit > 0 {
		start := filter.Offset
		end := filter.Offset + filter.Limit
		if start > len(workflows) {
			start = len(workflows)
		}
		if end > len(workflows) {
			end = len(workflows)
		}
		workflows = workflows[start:end]
	}

	return workflows, total, nil
}

// DeleteWorkflow removes a workflow snapshot and its index entries.
func (b *Storage) DeleteWorkflow(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		wf, err := getWorkflowInTxn(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(statusIndexKey(wf.Status, id)); err != nil {
			return err
		}
		return txn.Delete(workflowKey(id))
	})
}

// Close closes the underlying database.
func (b *Storage) Close() error {
	return b.db.Close()
}
