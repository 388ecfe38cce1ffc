package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/common/db"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/scheduler"
	"github.com/lyzr/workflowengine/internal/workflow"
)

// TriggerRepository persists the triggers table and satisfies
// internal/scheduler.TriggerStore for the schedule-kind subset.
type TriggerRepository struct {
	db *db.DB
}

// ApplySyncPlan writes a workflow.SyncPlan computed by
// workflow.SyncTriggers: upserts first, then deletes, inside one
// transaction so a partial sync never leaves triggers half-applied.
func (r *TriggerRepository) ApplySyncPlan(ctx context.Context, plan workflow.SyncPlan) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin trigger sync transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range plan.Upsert {
		configData, err := json.Marshal(rec.Config)
		if err != nil {
			return fmt.Errorf("marshal trigger config for %s: %w", rec.ID, err)
		}
		const upsert = `
			INSERT INTO triggers (id, workflow_id, node_id, trigger_type, config_data, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (workflow_id, node_id) DO UPDATE SET
				trigger_type = EXCLUDED.trigger_type,
				config_data  = EXCLUDED.config_data,
				active       = EXCLUDED.active,
				updated_at   = EXCLUDED.updated_at
		`
		_, err = tx.Exec(ctx, upsert, rec.ID, rec.WorkflowID, rec.NodeID, rec.Kind, configData, rec.Active, rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert trigger %s: %w", rec.ID, err)
		}
	}

	for _, triggerID := range plan.Delete {
		if _, err := tx.Exec(ctx, `DELETE FROM triggers WHERE id = $1`, triggerID); err != nil {
			return fmt.Errorf("delete trigger %s: %w", triggerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit trigger sync transaction: %w", err)
	}
	return nil
}

// ListByWorkflow returns every trigger record for workflowID, for
// reconciling the next SyncPlan.
func (r *TriggerRepository) ListByWorkflow(ctx context.Context, workflowID id.WorkflowID) ([]workflow.TriggerRecord, error) {
	const query = `
		SELECT id, workflow_id, node_id, trigger_type, config_data, active, created_at, updated_at
		FROM triggers WHERE workflow_id = $1
	`
	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list triggers for workflow %s: %w", workflowID, err)
	}
	defer rows.Close()
	return scanTriggerRows(rows)
}

// ListActiveSchedules implements internal/scheduler.TriggerStore: every
// active trigger whose kind is Schedule, decoded into the scheduler's
// own narrower TriggerRecord shape.
func (r *TriggerRepository) ListActiveSchedules(ctx context.Context) ([]scheduler.TriggerRecord, error) {
	const query = `
		SELECT id, workflow_id, node_id, config_data, active
		FROM triggers WHERE active = true AND trigger_type = $1
	`
	rows, err := r.db.Query(ctx, query, string(graph.TriggerKindSchedule))
	if err != nil {
		return nil, fmt.Errorf("list active schedule triggers: %w", err)
	}
	defer rows.Close()

	var out []scheduler.TriggerRecord
	for rows.Next() {
		var (
			rec        scheduler.TriggerRecord
			configJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.NodeID, &configJSON, &rec.Active); err != nil {
			return nil, fmt.Errorf("scan schedule trigger: %w", err)
		}
		var cfg graph.TriggerConfig
		if err := json.Unmarshal(configJSON, &cfg); err != nil {
			return nil, fmt.Errorf("decode schedule trigger config for %s: %w", rec.ID, err)
		}
		rec.CronExpr = cfg.CronExpression
		rec.Timezone = cfg.Timezone
		rec.Missed = scheduler.MissedExecutionBehavior(cfg.MissedBehavior)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule triggers: %w", err)
	}

	lastFires, err := r.lastFires(ctx)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if t, ok := lastFires[out[i].ID]; ok {
			out[i].LastFire = &t
		}
	}
	return out, nil
}

func (r *TriggerRepository) lastFires(ctx context.Context) (map[id.TriggerID]time.Time, error) {
	rows, err := r.db.Query(ctx, `SELECT id, last_fire FROM triggers WHERE last_fire IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("load trigger last_fire: %w", err)
	}
	defer rows.Close()

	fires := make(map[id.TriggerID]time.Time)
	for rows.Next() {
		var triggerID id.TriggerID
		var lastFire time.Time
		if err := rows.Scan(&triggerID, &lastFire); err != nil {
			return nil, fmt.Errorf("scan trigger last_fire: %w", err)
		}
		fires[triggerID] = lastFire
	}
	return fires, rows.Err()
}

// RecordFire implements internal/scheduler.TriggerStore.
func (r *TriggerRepository) RecordFire(ctx context.Context, triggerID id.TriggerID, firedAt time.Time) error {
	const query = `UPDATE triggers SET last_fire = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, triggerID, firedAt)
	if err != nil {
		return fmt.Errorf("record fire for trigger %s: %w", triggerID, err)
	}
	return nil
}

type scannableRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTriggerRows(rows scannableRows) ([]workflow.TriggerRecord, error) {
	var out []workflow.TriggerRecord
	for rows.Next() {
		var (
			rec        workflow.TriggerRecord
			configJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.NodeID, &rec.Kind, &configJSON, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		if err := json.Unmarshal(configJSON, &rec.Config); err != nil {
			return nil, fmt.Errorf("decode trigger config for %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triggers: %w", err)
	}
	return out, nil
}
