// Package event defines the ExecutionEvent tagged variants that make up
// a run's authoritative event-sourced history.
package event

import (
	"encoding/json"
	"time"

	"github.com/lyzr/workflowengine/internal/id"
)

// Type discriminates the ExecutionEvent variants.
type Type string

const (
	TypeRunQueued     Type = "run_queued"
	TypeRunStarted    Type = "run_started"
	TypeNodeStarted   Type = "node_started"
	TypeNodeCompleted Type = "node_completed"
	TypeNodeFailed    Type = "node_failed"
	TypeNodeSkipped   Type = "node_skipped"
	TypeRunCompleted  Type = "run_completed"
	TypeRunFailed     Type = "run_failed"
	TypeRunCancelled  Type = "run_cancelled"
)

// ExecutionEvent is the canonical record of run progress. Every variant
// carries RunID and Timestamp; the rest of the fields are populated
// according to Type.
type ExecutionEvent struct {
	Type      Type             `json:"type"`
	RunID     id.WorkflowRunID `json:"run_id"`
	Timestamp time.Time        `json:"timestamp"`

	// run_queued
	WorkflowID id.WorkflowID  `json:"workflow_id,omitempty"`
	TriggerID  *id.TriggerID  `json:"trigger_id,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`

	// node_started / node_completed / node_failed / node_skipped
	NodeID    id.NodeID       `json:"node_id,omitempty"`
	OutputKey string          `json:"output_key,omitempty"`
	Error     string          `json:"error,omitempty"`
	Reason    string          `json:"reason,omitempty"`

	// node_completed, FanOut nodes only: the object-store key of each
	// exploded array element, in order, so the orchestrator can spawn
	// one synthetic subgraph copy per element on replay without
	// re-reading the node's combined output.
	FanOutElementKeys []string `json:"fan_out_element_keys,omitempty"`

	// node_completed, Branch nodes only: the output port the branch's
	// conditions matched (empty if none did), so the fold can gate
	// routing without reading the node's output back out of the object
	// store.
	MatchedOutputPort string `json:"matched_output_port,omitempty"`

	// run_completed
	Output json.RawMessage `json:"output,omitempty"`
}

// RunQueued builds a run_queued event.
func RunQueued(runID id.WorkflowRunID, workflowID id.WorkflowID, triggerID *id.TriggerID, input json.RawMessage, ts time.Time) ExecutionEvent {
	return ExecutionEvent{Type: TypeRunQueued, RunID: runID, WorkflowID: workflowID, TriggerID: triggerID, Input: input, Timestamp: ts}
}

// RunStarted builds a run_started event.
func RunStarted(runID id.WorkflowRunID, ts time.Time) ExecutionEvent {
	return ExecutionEvent{Type: TypeRunStarted, RunID: runID, Timestamp: ts}
}

// NodeStarted builds a node_started event.
func NodeStarted(runID id.WorkflowRunID, nodeID id.NodeID, input json.RawMessage, ts time.Time) ExecutionEvent {
	return ExecutionEvent{Type: TypeNodeStarted, RunID: runID, NodeID: nodeID, Input: input, Timestamp: ts}
}

// NodeCompleted builds a node_completed event.
func NodeCompleted(runID id.WorkflowRunID, nodeID id.NodeID, outputKey string, ts time.Time) ExecutionEvent {
	return ExecutionEvent{Type: TypeNodeCompleted, RunID: runID, NodeID: nodeID, OutputKey: outputKey, Timestamp: ts}
}

// NodeFailed builds a node_failed event.
func NodeFailed(runID id.WorkflowRunID, nodeID id.NodeID, errMsg string, ts time.Time) ExecutionEvent {
	return ExecutionEvent{Type: TypeNodeFailed, RunID: runID, NodeID: nodeID, Error: errMsg, Timestamp: ts}
}

// NodeSkipped builds a node_skipped event.
func NodeSkipped(runID id.WorkflowRunID, nodeID id.NodeID, reason string, ts time.Time) ExecutionEvent {
	return ExecutionEvent{Type: TypeNodeSkipped, RunID: runID, NodeID: nodeID, Reason: reason, Timestamp: ts}
}

// RunCompleted builds a run_completed event.
func RunCompleted(runID id.WorkflowRunID, output json.RawMessage, ts time.Time) ExecutionEvent {
	return ExecutionEvent{Type: TypeRunCompleted, RunID: runID, Output: output, Timestamp: ts}
}

// RunFailed builds a run_failed event.
func RunFailed(runID id.WorkflowRunID, errMsg string, ts time.Time) ExecutionEvent {
	return ExecutionEvent{Type: TypeRunFailed, RunID: runID, Error: errMsg, Timestamp: ts}
}

// RunCancelled builds a run_cancelled event.
func RunCancelled(runID id.WorkflowRunID, reason string, ts time.Time) ExecutionEvent {
	return ExecutionEvent{Type: TypeRunCancelled, RunID: runID, Reason: reason, Timestamp: ts}
}

// IsTerminal reports whether t ends a run.
func (t Type) IsTerminal() bool {
	return t == TypeRunCompleted || t == TypeRunFailed || t == TypeRunCancelled
}

// Envelope wraps an ExecutionEvent with a durable, sortable ID.
type Envelope struct {
	ID        string          `json:"id"`
	Payload   ExecutionEvent  `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope wraps ev with a fresh sortable envelope ID.
func NewEnvelope(ev ExecutionEvent) Envelope {
	return Envelope{ID: id.NewEventID(), Payload: ev, Timestamp: ev.Timestamp}
}
