package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/common/db"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/runstate"
)

// NodeExecutionRecord is the node_executions row shape — a queryable
// per-node projection alongside the event log, used for run-detail UIs
// and audit rather than orchestration (the orchestrator's own view is
// runstate.RunState, rebuilt from events).
type NodeExecutionRecord struct {
	ID         id.NodeExecutionID
	RunID      id.WorkflowRunID
	NodeID     id.NodeID
	State      runstate.NodeStatus
	StartedAt  *time.Time
	FinishedAt *time.Time
	Input      json.RawMessage
	OutputKey  string
	Error      string
	DurationMS *int64
}

// NodeExecutionRepository persists the node_executions table.
type NodeExecutionRepository struct {
	db *db.DB
}

// Upsert writes rec's current state, inserting on first write for
// rec.ID and overwriting on every subsequent state
// transition (Running → Completed/Failed/Skipped).
func (r *NodeExecutionRepository) Upsert(ctx context.Context, rec *NodeExecutionRecord) error {
	input, err := marshalOrNull(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal node execution input: %w", err)
	}
	const query = `
		INSERT INTO node_executions (id, run_id, node_id, state, started_at, finished_at, input_data, output_key, error_message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state         = EXCLUDED.state,
			started_at    = COALESCE(node_executions.started_at, EXCLUDED.started_at),
			finished_at   = EXCLUDED.finished_at,
			output_key    = EXCLUDED.output_key,
			error_message = EXCLUDED.error_message,
			duration_ms   = EXCLUDED.duration_ms
	`
	_, err = r.db.Exec(ctx, query, rec.ID, rec.RunID, rec.NodeID, rec.State, rec.StartedAt, rec.FinishedAt,
		input, rec.OutputKey, rec.Error, rec.DurationMS)
	if err != nil {
		return fmt.Errorf("upsert node execution %s: %w", rec.ID, err)
	}
	return nil
}

// ListByRun returns every node execution recorded for runID.
func (r *NodeExecutionRepository) ListByRun(ctx context.Context, runID id.WorkflowRunID) ([]NodeExecutionRecord, error) {
	const query = `
		SELECT id, run_id, node_id, state, started_at, finished_at, input_data, output_key, error_message, duration_ms
		FROM node_executions WHERE run_id = $1
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list node executions for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []NodeExecutionRecord
	for rows.Next() {
		var rec NodeExecutionRecord
		var input []byte
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.NodeID, &rec.State, &rec.StartedAt, &rec.FinishedAt,
			&input, &rec.OutputKey, &rec.Error, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan node execution: %w", err)
		}
		rec.Input = input
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node executions: %w", err)
	}
	return out, nil
}
