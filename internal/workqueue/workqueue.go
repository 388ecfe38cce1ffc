// Package workqueue is the durable, at-least-once work queue that
// hands ready nodes to the stateless worker pool. A worker that dies
// mid-execution leaves its item unacknowledged; redelivery after the
// visibility timeout is how the system recovers without a crash
// detector.
package workqueue

import (
	"context"
	"time"

	"github.com/lyzr/workflowengine/internal/id"
)

// WorkItem is one node ready to execute within one run. WorkflowID lets
// a worker route to the right cached workflow definition without a
// lookup keyed only on RunID. Inputs is the port_name→output_key
// binding the orchestrator resolved from the node's predecessors
// before enqueueing; the worker dereferences each key against the
// object store rather than recomputing the binding itself.
type WorkItem struct {
	RunID      id.WorkflowRunID  `json:"run_id"`
	WorkflowID id.WorkflowID     `json:"workflow_id"`
	NodeID     id.NodeID         `json:"node_id"`
	Inputs     map[string]string `json:"inputs,omitempty"`
	Attempt    int               `json:"attempt"`

	// InputLists binds a port to an ordered list of object-store keys
	// rather than one. The only current producer is a FanIn node's
	// "item" port, bound to every spawned fan-out copy's terminal
	// output in element order.
	InputLists map[string][]string `json:"input_lists,omitempty"`
}

// Delivery pairs a WorkItem with the handle a consumer needs to Ack it.
type Delivery struct {
	Item       WorkItem
	DeliveryID string
}

// Queue publishes WorkItems and hands them to consumers with
// redelivery on missed acknowledgement.
type Queue interface {
	// Publish enqueues item for execution.
	Publish(ctx context.Context, item WorkItem) error

	// Consume blocks up to block for at least one item, claiming it
	// under consumerID so a crashed consumer's claim expires and the
	// item becomes redeliverable. Returns an empty slice on timeout.
	Consume(ctx context.Context, consumerID string, count int64, block time.Duration) ([]Delivery, error)

	// Ack confirms successful processing of a delivery, removing it
	// from the pending-redelivery set.
	Ack(ctx context.Context, deliveryID string) error
}
