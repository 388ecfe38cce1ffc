// Package runstate reconstructs a run's current state by folding its
// event log against a workflow graph. The fold is the only source of
// truth for "what has this run done so far" — nothing about a run is
// read from a mutable cache that could diverge from the log.
package runstate

import (
	"errors"
	"time"

	"github.com/lyzr/workflowengine/internal/event"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/remainingwork"
)

// Status is a run's overall lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// NodeStatus is one node's lifecycle state within a run.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// NodeExecution is the latest known state of one node's execution
// within a run.
type NodeExecution struct {
	NodeID     id.NodeID
	Status     NodeStatus
	Input      []byte
	OutputKey  string // set once Status == NodeStatusCompleted
	Error      string // set once Status == NodeStatusFailed
	StartedAt  time.Time
	FinishedAt time.Time

	// FanOutElementKeys is set on a completed FanOut node: the
	// object-store key of each exploded array element, in order.
	FanOutElementKeys []string
}

// RunState is the full reconstructed state of one run at a point in
// its event log.
type RunState struct {
	RunID      id.WorkflowRunID
	WorkflowID id.WorkflowID
	Status     Status
	Nodes      map[id.NodeID]*NodeExecution
	Error      string
	Output     []byte
	StartedAt  time.Time
	FinishedAt time.Time

	// RemainingWork is the dynamic scheduling projection the
	// orchestrator consults for ready_nodes/is_complete; it is folded
	// alongside the rest of the state so a crash-recovered
	// orchestrator sees exactly the scheduling state it would have had
	// in memory before the crash.
	RemainingWork *remainingwork.Graph

	// PendingSkips holds the node IDs a Branch node's completion just
	// cascaded out of the run, if the most recently applied event was
	// such a completion — nil otherwise. The orchestrator reads this
	// right after folding a node_completed event to know which
	// unreached arms still need their own node_skipped event recorded.
	PendingSkips []id.NodeID
}

// ErrMissingRunQueued is returned when the first event in a log is not
// RunQueued.
var ErrMissingRunQueued = errors.New("runstate: first event must be RunQueued")

// ErrDuplicateRunQueued is returned when a second RunQueued appears in
// one run's log.
var ErrDuplicateRunQueued = errors.New("runstate: duplicate RunQueued event")

// Fold replays envelopes in order against workflowGraph and returns the
// resulting RunState. Envelopes must already be sorted oldest-first
// (eventlog.Log.LoadEvents guarantees this).
func Fold(workflowGraph *graph.Graph, envelopes []event.Envelope) (RunState, error) {
	state := RunState{Nodes: make(map[id.NodeID]*NodeExecution)}

	if len(envelopes) == 0 {
		return state, nil
	}
	if envelopes[0].Payload.Type != event.TypeRunQueued {
		return state, ErrMissingRunQueued
	}

	state.RemainingWork = remainingwork.FromWorkflowGraph(workflowGraph)
	for _, n := range workflowGraph.Nodes() {
		state.Nodes[n.ID] = &NodeExecution{NodeID: n.ID, Status: NodeStatusPending}
	}

	seenRunQueued := false
	for _, env := range envelopes {
		if env.Payload.Type == event.TypeRunQueued {
			if seenRunQueued {
				return state, ErrDuplicateRunQueued
			}
			seenRunQueued = true
		}
		apply(workflowGraph, &state, env.Payload)
	}
	return state, nil
}

func apply(workflowGraph *graph.Graph, state *RunState, ev event.ExecutionEvent) {
	state.RunID = ev.RunID
	state.PendingSkips = nil

	switch ev.Type {
	case event.TypeRunQueued:
		state.WorkflowID = ev.WorkflowID
		state.Status = StatusQueued
		state.StartedAt = ev.Timestamp

	case event.TypeRunStarted:
		state.Status = StatusRunning

	case event.TypeNodeStarted:
		n := state.nodeOrNew(ev.NodeID)
		n.Status = NodeStatusRunning
		n.Input = ev.Input
		n.StartedAt = ev.Timestamp
		state.RemainingWork.MarkExecuting(ev.NodeID)

	case event.TypeNodeCompleted:
		n := state.nodeOrNew(ev.NodeID)
		n.Status = NodeStatusCompleted
		n.OutputKey = ev.OutputKey
		n.FinishedAt = ev.Timestamp
		n.FanOutElementKeys = ev.FanOutElementKeys
		if len(ev.FanOutElementKeys) > 0 {
			expandFanOut(workflowGraph, state, ev.NodeID, ev.FanOutElementKeys)
		}
		if isBranchNode(workflowGraph, ev.NodeID) {
			skipped := state.RemainingWork.MarkBranchCompleted(ev.NodeID, ev.MatchedOutputPort)
			for _, skippedID := range skipped {
				s := state.nodeOrNew(skippedID)
				s.Status = NodeStatusSkipped
				s.FinishedAt = ev.Timestamp
			}
			state.PendingSkips = skipped
		} else {
			state.RemainingWork.MarkCompleted(ev.NodeID)
		}

	case event.TypeNodeFailed:
		n := state.nodeOrNew(ev.NodeID)
		n.Status = NodeStatusFailed
		n.Error = ev.Error
		n.FinishedAt = ev.Timestamp
		state.RemainingWork.MarkFailed(ev.NodeID)

	case event.TypeNodeSkipped:
		n := state.nodeOrNew(ev.NodeID)
		n.Status = NodeStatusSkipped
		n.FinishedAt = ev.Timestamp
		state.RemainingWork.MarkSkipped(ev.NodeID)

	case event.TypeRunCompleted:
		state.Status = StatusCompleted
		state.Output = ev.Output
		state.FinishedAt = ev.Timestamp

	case event.TypeRunFailed:
		state.Status = StatusFailed
		state.Error = ev.Error
		state.FinishedAt = ev.Timestamp

	case event.TypeRunCancelled:
		state.Status = StatusCancelled
		state.Error = ev.Reason
		state.FinishedAt = ev.Timestamp
	}
}

func isBranchNode(workflowGraph *graph.Graph, nodeID id.NodeID) bool {
	n, ok := workflowGraph.Node(nodeID)
	return ok && n.Config.Category == graph.CategoryControlFlow &&
		n.Config.ControlFlow != nil && n.Config.ControlFlow.Kind == graph.ControlFlowKindBranch
}

func (s *RunState) nodeOrNew(nodeID id.NodeID) *NodeExecution {
	n, ok := s.Nodes[nodeID]
	if !ok {
		n = &NodeExecution{NodeID: nodeID}
		s.Nodes[nodeID] = n
	}
	return n
}

// HasFailures reports whether any node in the run has failed.
func (s RunState) HasFailures() bool {
	if s.RemainingWork == nil {
		return false
	}
	return s.RemainingWork.HasFailures()
}

// IsTerminal reports whether the run has reached a final status.
func (s RunState) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
