package runstate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lyzr/workflowengine/internal/event"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/portschema"
	"github.com/stretchr/testify/require"
)

func envelope(ev event.ExecutionEvent) event.Envelope {
	return event.Envelope{ID: id.NewEventID(), Payload: ev, Timestamp: ev.Timestamp}
}

func singleNodeGraph(nodeID id.NodeID) *graph.Graph {
	g := graph.New()
	g.AddNode(graph.Node{
		ID:      nodeID,
		Name:    string(nodeID),
		Config:  graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Outputs: []graph.Port{{Name: "output", Schema: portschema.Any()}},
	})
	return g
}

func twoNodeGraph(a, b id.NodeID) *graph.Graph {
	g := graph.New()
	g.AddNode(graph.Node{
		ID:      a,
		Name:    string(a),
		Config:  graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Outputs: []graph.Port{{Name: "output", Schema: portschema.Any()}},
	})
	g.AddNode(graph.Node{
		ID:     b,
		Name:   string(b),
		Config: graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Inputs: []graph.Port{{Name: "input", Schema: portschema.Any()}},
	})
	_ = g.AddEdge(a, b, graph.Edge{SourcePort: "output", TargetPort: "input"})
	return g
}

func TestFold_HappyPathSingleNode(t *testing.T) {
	runID := id.NewWorkflowRunID()
	workflowID := id.NewWorkflowID()
	t0 := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	envs := []event.Envelope{
		envelope(event.RunQueued(runID, workflowID, nil, nil, t0)),
		envelope(event.RunStarted(runID, t0.Add(time.Second))),
		envelope(event.NodeStarted(runID, "fetch", nil, t0.Add(2*time.Second))),
		envelope(event.NodeCompleted(runID, "fetch", "sha256:abc", t0.Add(3*time.Second))),
		envelope(event.RunCompleted(runID, json.RawMessage(`{"fetch":"sha256:abc"}`), t0.Add(4*time.Second))),
	}

	state, err := Fold(singleNodeGraph("fetch"), envs)
	require.NoError(t, err)
	require.Equal(t, runID, state.RunID)
	require.Equal(t, workflowID, state.WorkflowID)
	require.Equal(t, StatusCompleted, state.Status)
	require.True(t, state.IsTerminal())
	require.True(t, state.RemainingWork.IsComplete())

	node := state.Nodes["fetch"]
	require.NotNil(t, node)
	require.Equal(t, NodeStatusCompleted, node.Status)
	require.Equal(t, "sha256:abc", node.OutputKey)
}

func TestFold_NodeFailureDoesNotImplyRunFailure(t *testing.T) {
	runID := id.NewWorkflowRunID()
	t0 := time.Now().UTC()

	envs := []event.Envelope{
		envelope(event.RunQueued(runID, id.NewWorkflowID(), nil, nil, t0)),
		envelope(event.RunStarted(runID, t0)),
		envelope(event.NodeStarted(runID, "risky", nil, t0)),
		envelope(event.NodeFailed(runID, "risky", "timeout", t0)),
	}

	state, err := Fold(singleNodeGraph("risky"), envs)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, state.Status)
	require.False(t, state.IsTerminal())
	require.Equal(t, NodeStatusFailed, state.Nodes["risky"].Status)
	require.Equal(t, "timeout", state.Nodes["risky"].Error)
	require.True(t, state.HasFailures())
	require.True(t, state.RemainingWork.IsComplete(), "a permanently blocked run reads as complete since nothing remains runnable")
}

func TestFold_FailureBlocksDownstreamNode(t *testing.T) {
	runID := id.NewWorkflowRunID()
	t0 := time.Now().UTC()

	envs := []event.Envelope{
		envelope(event.RunQueued(runID, id.NewWorkflowID(), nil, nil, t0)),
		envelope(event.RunStarted(runID, t0)),
		envelope(event.NodeStarted(runID, "a", nil, t0)),
		envelope(event.NodeFailed(runID, "a", "boom", t0)),
	}

	state, err := Fold(twoNodeGraph("a", "b"), envs)
	require.NoError(t, err)
	require.Contains(t, state.RemainingWork.BlockedNodes(), id.NodeID("b"))
	require.Empty(t, state.RemainingWork.ReadyNodes())
}

func TestFold_RunFailedSetsErrorAndTerminal(t *testing.T) {
	runID := id.NewWorkflowRunID()
	t0 := time.Now().UTC()

	envs := []event.Envelope{
		envelope(event.RunQueued(runID, id.NewWorkflowID(), nil, nil, t0)),
		envelope(event.RunStarted(runID, t0)),
		envelope(event.RunFailed(runID, "node risky exceeded max retries", t0)),
	}

	state, err := Fold(singleNodeGraph("risky"), envs)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, state.Status)
	require.True(t, state.IsTerminal())
	require.Equal(t, "node risky exceeded max retries", state.Error)
}

func TestFold_EmptyLogProducesZeroValueState(t *testing.T) {
	state, err := Fold(singleNodeGraph("fetch"), nil)
	require.NoError(t, err)
	require.Empty(t, state.Status)
	require.False(t, state.IsTerminal())
	require.Nil(t, state.RemainingWork)
}

func TestFold_MissingRunQueuedIsError(t *testing.T) {
	runID := id.NewWorkflowRunID()
	t0 := time.Now().UTC()

	envs := []event.Envelope{envelope(event.RunStarted(runID, t0))}

	_, err := Fold(singleNodeGraph("fetch"), envs)
	require.ErrorIs(t, err, ErrMissingRunQueued)
}

func TestFold_DuplicateRunQueuedIsError(t *testing.T) {
	runID := id.NewWorkflowRunID()
	workflowID := id.NewWorkflowID()
	t0 := time.Now().UTC()

	envs := []event.Envelope{
		envelope(event.RunQueued(runID, workflowID, nil, nil, t0)),
		envelope(event.RunQueued(runID, workflowID, nil, nil, t0)),
	}

	_, err := Fold(singleNodeGraph("fetch"), envs)
	require.ErrorIs(t, err, ErrDuplicateRunQueued)
}

func fanOutGraph() *graph.Graph {
	g := graph.New()
	g.AddNode(graph.Node{
		ID:   "fo",
		Name: "fo",
		Config: graph.NodeConfig{Category: graph.CategoryControlFlow, ControlFlow: &graph.ControlFlowConfig{
			Kind: graph.ControlFlowKindFanOut, FanOutArrayPort: "items",
		}},
		Inputs:  []graph.Port{{Name: "items", Schema: portschema.Array(portschema.Any()), Required: true}},
		Outputs: []graph.Port{{Name: "item", Schema: portschema.Any()}},
	})
	g.AddNode(graph.Node{
		ID:      "mid",
		Name:    "mid",
		Config:  graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Inputs:  []graph.Port{{Name: "input", Schema: portschema.Any(), Required: true}},
		Outputs: []graph.Port{{Name: "output", Schema: portschema.Any()}},
	})
	g.AddNode(graph.Node{
		ID:   "fi",
		Name: "fi",
		Config: graph.NodeConfig{Category: graph.CategoryControlFlow, ControlFlow: &graph.ControlFlowConfig{
			Kind: graph.ControlFlowKindFanIn, FanOutNode: "fo",
		}},
		Inputs:  []graph.Port{{Name: "item", Schema: portschema.Any(), Required: true}},
		Outputs: []graph.Port{{Name: "items", Schema: portschema.Array(portschema.Any())}},
	})
	_ = g.AddEdge("fo", "mid", graph.Edge{SourcePort: "item", TargetPort: "input"})
	_ = g.AddEdge("mid", "fi", graph.Edge{SourcePort: "output", TargetPort: "item"})
	return g
}

func TestFold_FanOutCompletionSpawnsSyntheticCopiesAndBlocksFanIn(t *testing.T) {
	runID := id.NewWorkflowRunID()
	t0 := time.Now().UTC()

	fanOutCompleted := event.NodeCompleted(runID, "fo", "sha256:fo", t0)
	fanOutCompleted.FanOutElementKeys = []string{"sha256:e0", "sha256:e1"}

	envs := []event.Envelope{
		envelope(event.RunQueued(runID, id.NewWorkflowID(), nil, nil, t0)),
		envelope(event.RunStarted(runID, t0)),
		envelope(event.NodeStarted(runID, "fo", nil, t0)),
		envelope(fanOutCompleted),
	}

	state, err := Fold(fanOutGraph(), envs)
	require.NoError(t, err)
	require.Equal(t, []string{"sha256:e0", "sha256:e1"}, state.Nodes["fo"].FanOutElementKeys)

	ready := state.RemainingWork.ReadyNodes()
	require.ElementsMatch(t, []id.NodeID{"mid#0", "mid#1"}, ready, "fi must stay blocked until both synthetic copies complete")
}

func TestFold_SkippedNodeRecordsStatus(t *testing.T) {
	runID := id.NewWorkflowRunID()
	t0 := time.Now().UTC()

	envs := []event.Envelope{
		envelope(event.RunQueued(runID, id.NewWorkflowID(), nil, nil, t0)),
		envelope(event.RunStarted(runID, t0)),
		envelope(event.NodeSkipped(runID, "branch_b", "condition evaluated false", t0)),
	}

	state, err := Fold(singleNodeGraph("branch_b"), envs)
	require.NoError(t, err)
	node := state.Nodes["branch_b"]
	require.Equal(t, NodeStatusSkipped, node.Status)
}
