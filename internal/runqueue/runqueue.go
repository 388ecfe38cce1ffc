// Package runqueue carries "start this run" requests from the
// processes that decide a workflow should run (cmd/apiserver's manual
// trigger endpoint, internal/scheduler's poll loop) to cmd/engine's
// pool of orchestrators, which is the only thing allowed to construct
// an orchestrator.Orchestrator for a given run, enforcing a
// single-orchestrator-per-run contract: an engine process, not the
// API process, owns run lifecycles.
package runqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lyzr/workflowengine/internal/id"
)

// Request asks the engine to start workflowID. TriggerID is nil for a
// manual trigger with no corresponding trigger record.
type Request struct {
	WorkflowID id.WorkflowID   `json:"workflow_id"`
	TriggerID  *id.TriggerID   `json:"trigger_id,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	FiredAt    time.Time       `json:"fired_at"`
}

// Delivery pairs a Request with the handle a consumer needs to Ack it.
type Delivery struct {
	Request    Request
	DeliveryID string
}

// Queue publishes run-start Requests and hands them to the engine's
// run-starter loop with redelivery on missed acknowledgement — the
// same at-least-once contract as internal/workqueue, but for run
// starts rather than node work items.
type Queue interface {
	Publish(ctx context.Context, req Request) error
	Consume(ctx context.Context, consumerID string, count int64, block time.Duration) ([]Delivery, error)
	Ack(ctx context.Context, deliveryID string) error
}
