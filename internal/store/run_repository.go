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

// RunRecord is the workflow_runs row shape: the metadata-plane view of
// a run, separate from the event log that is its actual source of
// truth.
type RunRecord struct {
	ID         id.WorkflowRunID
	WorkflowID id.WorkflowID
	TriggerID  *id.TriggerID
	State      runstate.Status
	QueuedAt   time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Input      json.RawMessage
	Output     json.RawMessage
	Error      string
	DurationMS *int64
}

// RunRepository persists the workflow_runs table — a queryable
// projection of run history for listings and lookups; the event log
// remains authoritative for orchestrator recovery.
type RunRepository struct {
	db *db.DB
}

// Create inserts a new run row in the Queued state.
func (r *RunRepository) Create(ctx context.Context, run *RunRecord) error {
	input, err := marshalOrNull(run.Input)
	if err != nil {
		return fmt.Errorf("marshal run input: %w", err)
	}
	const query = `
		INSERT INTO workflow_runs (id, workflow_id, trigger_id, state, queued_at, input_data)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.Exec(ctx, query, run.ID, run.WorkflowID, run.TriggerID, run.State, run.QueuedAt, input)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateTerminal records a run's final state transition: state,
// finished_at, output or error, and computed duration. Runs are never
// mutated after this; reaching a terminal state is final.
func (r *RunRepository) UpdateTerminal(ctx context.Context, runID id.WorkflowRunID, state runstate.Status, finishedAt time.Time, output json.RawMessage, errMsg string) error {
	outputData, err := marshalOrNull(output)
	if err != nil {
		return fmt.Errorf("marshal run output: %w", err)
	}
	const query = `
		UPDATE workflow_runs
		SET state = $2, finished_at = $3, output_data = $4, error_message = $5,
		    duration_ms = EXTRACT(EPOCH FROM ($3 - started_at)) * 1000
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, runID, state, finishedAt, outputData, errMsg)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkStarted records the Running transition and started_at.
func (r *RunRepository) MarkStarted(ctx context.Context, runID id.WorkflowRunID, startedAt time.Time) error {
	const query = `UPDATE workflow_runs SET state = $2, started_at = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, runID, runstate.StatusRunning, startedAt)
	if err != nil {
		return fmt.Errorf("mark run %s started: %w", runID, err)
	}
	return nil
}

// Get fetches one run by ID.
func (r *RunRepository) Get(ctx context.Context, runID id.WorkflowRunID) (*RunRecord, error) {
	const query = `
		SELECT id, workflow_id, trigger_id, state, queued_at, started_at, finished_at,
		       input_data, output_data, error_message, duration_ms
		FROM workflow_runs WHERE id = $1
	`
	var run RunRecord
	var input, output []byte
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&run.ID, &run.WorkflowID, &run.TriggerID, &run.State, &run.QueuedAt, &run.StartedAt, &run.FinishedAt,
		&input, &output, &run.Error, &run.DurationMS,
	)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, mapNoRows(err))
	}
	run.Input = input
	run.Output = output
	return &run, nil
}

// ListByWorkflow returns a workflow's runs, most recent first.
func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID id.WorkflowID, limit int) ([]RunRecord, error) {
	const query = `
		SELECT id, workflow_id, trigger_id, state, queued_at, started_at, finished_at,
		       input_data, output_data, error_message, duration_ms
		FROM workflow_runs WHERE workflow_id = $1
		ORDER BY queued_at DESC LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for workflow %s: %w", workflowID, err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var input, output []byte
		if err := rows.Scan(&run.ID, &run.WorkflowID, &run.TriggerID, &run.State, &run.QueuedAt, &run.StartedAt,
			&run.FinishedAt, &input, &output, &run.Error, &run.DurationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Input = input
		run.Output = output
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func marshalOrNull(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}
