package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/common/db"
	"github.com/lyzr/workflowengine/common/logger"
	"github.com/lyzr/workflowengine/internal/executor/memory"
	"github.com/lyzr/workflowengine/internal/id"
)

// MemoryRepository persists the workflow_memory table and implements
// internal/executor/memory.Store's load/CAS-write contract.
type MemoryRepository struct {
	db  *db.DB
	log *logger.Logger
}

// Load returns workflowID's current memory blob, or the zero-version
// empty blob if none has ever been recorded.
func (r *MemoryRepository) Load(ctx context.Context, workflowID id.WorkflowID) (memory.Blob, error) {
	const query = `SELECT content, version FROM workflow_memory WHERE workflow_id = $1`
	var (
		content []byte
		version int
	)
	err := r.db.QueryRow(ctx, query, workflowID).Scan(&content, &version)
	if isNoRows(err) {
		return memory.Blob{Content: json.RawMessage("null"), Version: 0}, nil
	}
	if err != nil {
		return memory.Blob{}, fmt.Errorf("load memory for workflow %s: %w", workflowID, err)
	}
	return memory.Blob{Content: json.RawMessage(content), Version: version}, nil
}

// CompareAndSwap writes content as workflowID's new memory blob only if
// the row's current version still equals expectedVersion, implementing
// optimistic concurrency with an UPSERT-then-check: for a workflow with
// no row yet, expectedVersion must be 0 and the row is created at
// version 1.
func (r *MemoryRepository) CompareAndSwap(ctx context.Context, workflowID id.WorkflowID, content []byte, expectedVersion int) (int, error) {
	now := time.Now()
	if expectedVersion == 0 {
		newVersion, err := r.insertIfAbsent(ctx, workflowID, content, now)
		if err != nil {
			return 0, err
		}
		if newVersion > 0 {
			return newVersion, nil
		}
		// A row already exists; fall through to the versioned update path
		// so a concurrent first-writer race still resolves as a conflict
		// rather than silently overwriting.
	}

	const query = `
		UPDATE workflow_memory
		SET content = $3, version = version + 1, updated_at = $4
		WHERE workflow_id = $1 AND version = $2
		RETURNING version
	`
	var newVersion int
	err := r.db.QueryRow(ctx, query, workflowID, expectedVersion, content, now).Scan(&newVersion)
	if isNoRows(err) {
		return 0, memory.ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("compare-and-swap memory for workflow %s: %w", workflowID, err)
	}
	return newVersion, nil
}

// insertIfAbsent creates workflow_memory's first row for workflowID at
// version 1, returning 0 (not an error) if a row already exists so the
// caller can fall back to the versioned UPDATE path.
func (r *MemoryRepository) insertIfAbsent(ctx context.Context, workflowID id.WorkflowID, content []byte, now time.Time) (int, error) {
	const query = `
		INSERT INTO workflow_memory (id, workflow_id, content, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (workflow_id) DO NOTHING
		RETURNING version
	`
	var version int
	err := r.db.QueryRow(ctx, query, workflowID, workflowID, content, now).Scan(&version)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("insert memory row for workflow %s: %w", workflowID, err)
	}
	return version, nil
}
