// Package store is the Postgres-backed persistent metadata store
// consumed by the engine: workflows, triggers, workflow memory, runs,
// node executions, and decision traces, across six tables. Each
// repository wraps *common/db.DB the way
// cmd/orchestrator/repository/*.go does — raw SQL, pgx's native
// Query/QueryRow/Exec, fmt.Errorf-wrapped failures — adapted from
// run/tag/artifact persistence to this engine's own tables.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/lyzr/workflowengine/common/db"
	"github.com/lyzr/workflowengine/common/logger"
)

// ErrNotFound is returned by single-row lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// Store groups every repository behind one handle for convenient
// wiring; callers needing only one concern can depend on that
// repository's own narrower interface instead (see
// internal/scheduler.TriggerStore, internal/executor/memory.Store).
type Store struct {
	Workflows      *WorkflowRepository
	Triggers       *TriggerRepository
	Memory         *MemoryRepository
	Runs           *RunRepository
	NodeExecutions *NodeExecutionRepository
	DecisionTraces *DecisionTraceRepository
}

// New builds a Store backed by database.
func New(database *db.DB, log *logger.Logger) *Store {
	return &Store{
		Workflows:      &WorkflowRepository{db: database},
		Triggers:       &TriggerRepository{db: database},
		Memory:         &MemoryRepository{db: database, log: log},
		Runs:           &RunRepository{db: database},
		NodeExecutions: &NodeExecutionRepository{db: database},
		DecisionTraces: &DecisionTraceRepository{db: database},
	}
}

// isNoRows reports whether err is pgx's row-not-found sentinel;
// mapNoRows translates that sentinel into ErrNotFound so callers never
// need to import pgx themselves.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func mapNoRows(err error) error {
	if isNoRows(err) {
		return ErrNotFound
	}
	return err
}

// Schema is the DDL the repositories in this package assume. Migrations
// are applied out-of-band (e.g. via a migrate binary reading this
// constant); the engine itself never creates tables at runtime.
const Schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	enabled     BOOLEAN NOT NULL DEFAULT true,
	tags        JSONB NOT NULL DEFAULT '[]',
	graph_data  JSONB NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS triggers (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	node_id     TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	config_data JSONB NOT NULL,
	active      BOOLEAN NOT NULL DEFAULT true,
	last_fire   TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (workflow_id, node_id)
);

CREATE TABLE IF NOT EXISTS workflow_memory (
	id          TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL UNIQUE REFERENCES workflows(id) ON DELETE CASCADE,
	content     BYTEA NOT NULL,
	version     INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_runs (
	id           TEXT PRIMARY KEY,
	workflow_id  TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
	trigger_id   TEXT,
	state        TEXT NOT NULL,
	queued_at    TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ,
	input_data   JSONB,
	output_data  JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms  BIGINT
);

CREATE TABLE IF NOT EXISTS node_executions (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
	node_id      TEXT NOT NULL,
	state        TEXT NOT NULL,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ,
	input_data   JSONB,
	output_key   TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	duration_ms  BIGINT
);

CREATE TABLE IF NOT EXISTS decision_traces (
	id                TEXT PRIMARY KEY,
	node_execution_id TEXT NOT NULL REFERENCES node_executions(id) ON DELETE CASCADE,
	sequence          INTEGER NOT NULL,
	trace_type        TEXT NOT NULL,
	trace_data        JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);
`

// MigrateSchema applies Schema against database. Intended for tests and
// local bootstrap; production migrations are expected to run through a
// dedicated migration tool instead.
func MigrateSchema(ctx context.Context, database *db.DB) error {
	_, err := database.Exec(ctx, Schema)
	return err
}
