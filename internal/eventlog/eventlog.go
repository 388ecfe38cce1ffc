// Package eventlog is the durable, append-only record of run progress.
// It is the system's single source of truth: run state is always
// reconstructed by replaying a run's events, never read from a mutable
// cache.
package eventlog

import (
	"context"

	"github.com/lyzr/workflowengine/internal/event"
	"github.com/lyzr/workflowengine/internal/id"
)

// Log appends and replays ExecutionEvents for workflow runs.
type Log interface {
	// Publish appends ev to runID's event stream and returns the
	// envelope assigned to it.
	Publish(ctx context.Context, runID id.WorkflowRunID, ev event.ExecutionEvent) (event.Envelope, error)

	// LoadEvents returns every event published for runID, oldest first.
	// Run-state reconstruction folds this slice.
	LoadEvents(ctx context.Context, runID id.WorkflowRunID) ([]event.Envelope, error)
}
