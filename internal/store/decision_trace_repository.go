package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/common/db"
	"github.com/lyzr/workflowengine/internal/id"
)

// DecisionTraceRecord is one recorded reasoning step within a node's
// execution — e.g. one iteration of an AiLayer coordinate loop, kept
// for audit and debugging rather than consumed by the orchestrator.
type DecisionTraceRecord struct {
	ID              id.DecisionTraceID
	NodeExecutionID id.NodeExecutionID
	Sequence        int
	TraceType       string
	TraceData       json.RawMessage
	CreatedAt       time.Time
}

// DecisionTraceRepository persists the decision_traces table.
type DecisionTraceRepository struct {
	db *db.DB
}

// Append inserts one trace record. Sequence is caller-assigned and
// monotonic per node execution; this method never reorders or
// deduplicates.
func (r *DecisionTraceRepository) Append(ctx context.Context, rec *DecisionTraceRecord) error {
	if rec.ID == "" {
		rec.ID = id.NewDecisionTraceID()
	}
	const query = `
		INSERT INTO decision_traces (id, node_execution_id, sequence, trace_type, trace_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, rec.ID, rec.NodeExecutionID, rec.Sequence, rec.TraceType, []byte(rec.TraceData), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append decision trace for node execution %s: %w", rec.NodeExecutionID, err)
	}
	return nil
}

// ListByNodeExecution returns every trace recorded for nodeExecutionID,
// in sequence order.
func (r *DecisionTraceRepository) ListByNodeExecution(ctx context.Context, nodeExecutionID id.NodeExecutionID) ([]DecisionTraceRecord, error) {
	const query = `
		SELECT id, node_execution_id, sequence, trace_type, trace_data, created_at
		FROM decision_traces WHERE node_execution_id = $1
		ORDER BY sequence ASC
	`
	rows, err := r.db.Query(ctx, query, nodeExecutionID)
	if err != nil {
		return nil, fmt.Errorf("list decision traces for node execution %s: %w", nodeExecutionID, err)
	}
	defer rows.Close()

	var out []DecisionTraceRecord
	for rows.Next() {
		var rec DecisionTraceRecord
		var traceData []byte
		if err := rows.Scan(&rec.ID, &rec.NodeExecutionID, &rec.Sequence, &rec.TraceType, &traceData, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision trace: %w", err)
		}
		rec.TraceData = traceData
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision traces: %w", err)
	}
	return out, nil
}
