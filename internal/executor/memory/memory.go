// Package memory executes Memory nodes: LoadMemory reads the
// workflow's memory blob, RecordMemory writes a new one under
// optimistic concurrency control.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
)

// Blob is one workflow's memory contents at a given version. Version
// starts at 0 for a workflow that has never recorded memory.
type Blob struct {
	Content json.RawMessage
	Version int
}

// Store is the narrow persistence surface Memory nodes need.
// internal/store's Postgres-backed MemoryRepository implements it; this
// package defines the interface at its point of use rather than
// depending on the whole store package.
type Store interface {
	Load(ctx context.Context, workflowID id.WorkflowID) (Blob, error)
	// CompareAndSwap writes content as the new blob only if the stored
	// version still equals expectedVersion, returning the new version
	// on success. A version mismatch returns ErrVersionConflict.
	CompareAndSwap(ctx context.Context, workflowID id.WorkflowID, content []byte, expectedVersion int) (int, error)
}

// ErrVersionConflict is returned by Store.CompareAndSwap when
// expectedVersion no longer matches the stored version.
var ErrVersionConflict = errors.New("memory: version conflict")

// Executor implements LoadMemory/RecordMemory node kinds.
type Executor struct {
	store Store
}

// New builds a memory Executor.
func New(store Store) *Executor {
	return &Executor{store: store}
}

// Execute implements executor.NodeExecutor.
func (e *Executor) Execute(ctx context.Context, workflowID id.WorkflowID, node graph.Node, inputs executor.Inputs) (executor.Output, error) {
	cfg := node.Config.Memory
	if cfg == nil {
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("memory node %s has no Memory config", node.ID)}
	}

	switch cfg.Kind {
	case graph.MemoryKindLoad:
		return e.executeLoad(ctx, workflowID)
	case graph.MemoryKindRecord:
		return e.executeRecord(ctx, workflowID, inputs)
	default:
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("node %s has unknown memory kind %q", node.ID, cfg.Kind)}
	}
}

func (e *Executor) executeLoad(ctx context.Context, workflowID id.WorkflowID) (executor.Output, error) {
	blob, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, &executor.ExecutionFailedError{Reason: fmt.Sprintf("load memory: %v", err)}
	}
	return blob, nil
}

// executeRecord writes content, retrying once on a CAS conflict by
// reloading the current version and failing if it still conflicts.
func (e *Executor) executeRecord(ctx context.Context, workflowID id.WorkflowID, inputs executor.Inputs) (executor.Output, error) {
	content, err := contentFromInputs(inputs)
	if err != nil {
		return nil, &executor.ConfigurationError{Reason: err.Error()}
	}

	current, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, &executor.ExecutionFailedError{Reason: fmt.Sprintf("load memory before record: %v", err)}
	}

	newVersion, err := e.store.CompareAndSwap(ctx, workflowID, content, current.Version)
	if err == nil {
		return Blob{Version: newVersion}, nil
	}
	if !errors.Is(err, ErrVersionConflict) {
		return nil, &executor.ExecutionFailedError{Reason: fmt.Sprintf("record memory: %v", err)}
	}

	// One retry: reload the now-current version and try once more.
	current, reloadErr := e.store.Load(ctx, workflowID)
	if reloadErr != nil {
		return nil, &executor.ExecutionFailedError{Reason: fmt.Sprintf("reload memory after CAS conflict: %v", reloadErr)}
	}
	newVersion, err = e.store.CompareAndSwap(ctx, workflowID, content, current.Version)
	if err != nil {
		return nil, &executor.ExecutionFailedError{Reason: "memory CAS conflict"}
	}
	return Blob{Version: newVersion}, nil
}

func contentFromInputs(inputs executor.Inputs) ([]byte, error) {
	raw, ok := inputs["content"]
	if !ok {
		return nil, fmt.Errorf("record_memory node call is missing content input")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal memory content: %w", err)
	}
	return data, nil
}
