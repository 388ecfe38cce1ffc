package orchestrator

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lyzr/workflowengine/internal/event"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/portschema"
	"github.com/lyzr/workflowengine/internal/workqueue"
	"github.com/stretchr/testify/require"
)

// memoryLog is an in-memory event log for tests; eventlog.RedisLog is
// covered by its own integration tests against a real Redis instance.
type memoryLog struct {
	mu     sync.Mutex
	events map[id.WorkflowRunID][]event.Envelope
}

func newMemoryLog() *memoryLog {
	return &memoryLog{events: make(map[id.WorkflowRunID][]event.Envelope)}
}

func (l *memoryLog) Publish(_ context.Context, runID id.WorkflowRunID, ev event.ExecutionEvent) (event.Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	env := event.NewEnvelope(ev)
	l.events[runID] = append(l.events[runID], env)
	return env, nil
}

func (l *memoryLog) LoadEvents(_ context.Context, runID id.WorkflowRunID) ([]event.Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Envelope, len(l.events[runID]))
	copy(out, l.events[runID])
	return out, nil
}

// memoryQueue is an in-memory work queue for tests.
type memoryQueue struct {
	mu    sync.Mutex
	items []workqueue.WorkItem
}

func newMemoryQueue() *memoryQueue { return &memoryQueue{} }

func (q *memoryQueue) Publish(_ context.Context, item workqueue.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *memoryQueue) Consume(_ context.Context, _ string, _ int64, _ time.Duration) ([]workqueue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]workqueue.Delivery, len(q.items))
	for i, it := range q.items {
		out[i] = workqueue.Delivery{Item: it}
	}
	q.items = nil
	return out, nil
}

func (q *memoryQueue) Ack(_ context.Context, _ string) error { return nil }

func (q *memoryQueue) drain() []workqueue.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]workqueue.WorkItem, len(q.items))
	copy(out, q.items)
	q.items = nil
	return out
}

type testLogger struct{}

func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Debug(string, ...interface{}) {}

func diamondGraph() *graph.Graph {
	g := graph.New()
	g.AddNode(graph.Node{
		ID:      "a",
		Name:    "a",
		Config:  graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Outputs: []graph.Port{{Name: "output", Schema: portschema.Any()}},
	})
	g.AddNode(graph.Node{
		ID:      "b",
		Name:    "b",
		Config:  graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Inputs:  []graph.Port{{Name: "input", Schema: portschema.Any()}},
		Outputs: []graph.Port{{Name: "output", Schema: portschema.Any()}},
	})
	g.AddNode(graph.Node{
		ID:      "c",
		Name:    "c",
		Config:  graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Inputs:  []graph.Port{{Name: "input", Schema: portschema.Any()}},
		Outputs: []graph.Port{{Name: "output", Schema: portschema.Any()}},
	})
	g.AddNode(graph.Node{
		ID:     "d",
		Name:   "d",
		Config: graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Inputs: []graph.Port{{Name: "input", Schema: portschema.Any()}},
	})
	mustEdge := func(src, tgt id.NodeID) {
		err := g.AddEdge(src, tgt, graph.Edge{SourcePort: "output", TargetPort: "input"})
		if err != nil {
			panic(err)
		}
	}
	mustEdge("a", "b")
	mustEdge("a", "c")
	mustEdge("b", "d")
	mustEdge("c", "d")
	return g
}

func linearGraph() *graph.Graph {
	g := graph.New()
	g.AddNode(graph.Node{
		ID:      "a",
		Name:    "a",
		Config:  graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Outputs: []graph.Port{{Name: "output", Schema: portschema.Any()}},
	})
	g.AddNode(graph.Node{
		ID:     "b",
		Name:   "b",
		Config: graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Inputs: []graph.Port{{Name: "input", Schema: portschema.Any()}},
	})
	err := g.AddEdge("a", "b", graph.Edge{SourcePort: "output", TargetPort: "input"})
	if err != nil {
		panic(err)
	}
	return g
}

// fanOutGraph builds fo -(item)-> mid -(output/item)-> fi, the minimal
// shape whose fan-out resolution spawns synthetic copies of "mid"
// (one per fo's array element).
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
	mustEdge := func(src, tgt id.NodeID, srcPort, tgtPort string) {
		if err := g.AddEdge(src, tgt, graph.Edge{SourcePort: srcPort, TargetPort: tgtPort}); err != nil {
			panic(err)
		}
	}
	mustEdge("fo", "mid", "item", "input")
	mustEdge("mid", "fi", "output", "item")
	return g
}

func TestOrchestrator_HandleResult_FanOutSpawnsSyntheticCopiesAndFanInAggregates(t *testing.T) {
	o, _, queue := newTestOrchestrator(fanOutGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	require.Equal(t, []string{"fo"}, nodeIDsOf(queue.drain()))

	require.NoError(t, o.HandleResult(ctx, Result{
		NodeID: "fo", Completed: true, OutputKey: "sha256:fo",
		FanOutElementKeys: []string{"sha256:e0", "sha256:e1"},
	}))

	midItems := queue.drain()
	require.Equal(t, []string{"mid#0", "mid#1"}, nodeIDsOf(midItems))
	for _, item := range midItems {
		if item.NodeID == "mid#0" {
			require.Equal(t, "sha256:e0", item.Inputs["input"])
		} else {
			require.Equal(t, "sha256:e1", item.Inputs["input"])
		}
	}

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "mid#0", Completed: true, OutputKey: "sha256:out0"}))
	require.Empty(t, queue.drain(), "fi must wait for mid#1 too")

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "mid#1", Completed: true, OutputKey: "sha256:out1"}))
	fiItems := queue.drain()
	require.Equal(t, []string{"fi"}, nodeIDsOf(fiItems))
	require.Equal(t, []string{"sha256:out0", "sha256:out1"}, fiItems[0].InputLists["item"])

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "fi", Completed: true, OutputKey: "sha256:fi-out"}))
	require.Equal(t, "completed", string(o.State().Status))

	var output map[string]string
	require.NoError(t, json.Unmarshal(o.State().Output, &output))
	require.Equal(t, "sha256:fi-out", output["fi"])
}

// branchGraph builds a Branch node "route" with two arms, "approved"
// and "rejected", each feeding its own otherwise-unreachable terminal
// node.
func branchGraph() *graph.Graph {
	g := graph.New()
	g.AddNode(graph.Node{
		ID:   "route",
		Name: "route",
		Config: graph.NodeConfig{Category: graph.CategoryControlFlow, ControlFlow: &graph.ControlFlowConfig{
			Kind: graph.ControlFlowKindBranch,
			Conditions: []graph.BranchCondition{
				{OutputPort: "approved", Expression: `inputs.score > 0.8`},
				{OutputPort: "rejected", Expression: `inputs.score <= 0.8`},
			},
		}},
		Inputs:  []graph.Port{{Name: "input", Schema: portschema.Any(), Required: true}},
		Outputs: []graph.Port{{Name: "approved", Schema: portschema.Any()}, {Name: "rejected", Schema: portschema.Any()}},
	})
	g.AddNode(graph.Node{
		ID:     "approved_node",
		Name:   "approved_node",
		Config: graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Inputs: []graph.Port{{Name: "input", Schema: portschema.Any(), Required: true}},
	})
	g.AddNode(graph.Node{
		ID:     "rejected_node",
		Name:   "rejected_node",
		Config: graph.NodeConfig{Category: graph.CategoryTransform, Transform: &graph.TransformConfig{}},
		Inputs: []graph.Port{{Name: "input", Schema: portschema.Any(), Required: true}},
	})
	mustEdge := func(src, tgt id.NodeID, srcPort string) {
		if err := g.AddEdge(src, tgt, graph.Edge{SourcePort: srcPort, TargetPort: "input"}); err != nil {
			panic(err)
		}
	}
	mustEdge("route", "approved_node", "approved")
	mustEdge("route", "rejected_node", "rejected")
	return g
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func newTestOrchestrator(g *graph.Graph) (*Orchestrator, *memoryLog, *memoryQueue) {
	log := newMemoryLog()
	queue := newMemoryQueue()
	o := New(id.NewWorkflowID(), Options{
		Graph:  g,
		Log:    log,
		Queue:  queue,
		Logger: testLogger{},
		Clock:  fixedClock(time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)),
	})
	return o, log, queue
}

func nodeIDsOf(items []workqueue.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it.NodeID)
	}
	sort.Strings(out)
	return out
}

func TestOrchestrator_InitializeAndStart_SchedulesEntryNodes(t *testing.T) {
	o, _, queue := newTestOrchestrator(linearGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NotEmpty(t, o.RunID())

	require.NoError(t, o.Start(ctx))
	require.Equal(t, []string{"a"}, nodeIDsOf(queue.drain()))
	require.Equal(t, "running", string(o.State().Status))
}

func TestOrchestrator_HandleResult_SchedulesSuccessor(t *testing.T) {
	o, _, queue := newTestOrchestrator(linearGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	queue.drain()

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "a", Completed: true, OutputKey: "sha256:abc"}))
	require.Equal(t, []string{"b"}, nodeIDsOf(queue.drain()))
	require.Equal(t, "sha256:abc", o.State().Nodes["a"].OutputKey)
}

func TestOrchestrator_HandleResult_CompletesRunWithFinalOutput(t *testing.T) {
	o, _, queue := newTestOrchestrator(linearGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	queue.drain()

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "a", Completed: true, OutputKey: "sha256:aaa"}))
	queue.drain()
	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "b", Completed: true, OutputKey: "sha256:bbb"}))

	require.Equal(t, "completed", string(o.State().Status))
	require.True(t, o.State().IsTerminal())

	var output map[string]string
	require.NoError(t, json.Unmarshal(o.State().Output, &output))
	require.Equal(t, "sha256:bbb", output["b"])
}

func TestOrchestrator_HandleResult_FailureBlocksDownstreamAndFinalizesFailed(t *testing.T) {
	o, _, queue := newTestOrchestrator(linearGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	queue.drain()

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "a", Completed: false, Error: "boom"}))

	require.Empty(t, queue.drain(), "failed node's successor must never be scheduled")
	require.Equal(t, "failed", string(o.State().Status))
	require.True(t, o.State().IsTerminal())
}

func TestOrchestrator_HandleResult_DiamondWaitsForBothBranches(t *testing.T) {
	o, _, queue := newTestOrchestrator(diamondGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	require.Equal(t, []string{"a"}, nodeIDsOf(queue.drain()))

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "a", Completed: true, OutputKey: "sha256:a"}))
	require.Equal(t, []string{"b", "c"}, nodeIDsOf(queue.drain()))

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "b", Completed: true, OutputKey: "sha256:b"}))
	require.Empty(t, queue.drain(), "d must wait for c too")

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "c", Completed: true, OutputKey: "sha256:c"}))
	require.Equal(t, []string{"d"}, nodeIDsOf(queue.drain()))
}

func TestOrchestrator_HandleResult_DuplicateResultIsIgnored(t *testing.T) {
	o, _, queue := newTestOrchestrator(linearGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	queue.drain()

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "a", Completed: true, OutputKey: "sha256:a"}))
	queue.drain()

	// a is no longer Running; a second result for it must be a no-op.
	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "a", Completed: true, OutputKey: "sha256:a-dup"}))
	require.Equal(t, "sha256:a", o.State().Nodes["a"].OutputKey)
}

func TestOrchestrator_Initialize_ResumesFromEventLog(t *testing.T) {
	g := linearGraph()
	log := newMemoryLog()
	queue := newMemoryQueue()
	workflowID := id.NewWorkflowID()

	first := New(workflowID, Options{Graph: g, Log: log, Queue: queue, Logger: testLogger{}, Clock: fixedClock(time.Now())})
	ctx := context.Background()
	require.NoError(t, first.Initialize(ctx, "", nil, nil))
	require.NoError(t, first.Start(ctx))
	queue.drain()
	require.NoError(t, first.HandleResult(ctx, Result{NodeID: "a", Completed: true, OutputKey: "sha256:a"}))
	queue.drain()
	runID := first.RunID()

	resumed := New(workflowID, Options{Graph: g, Log: log, Queue: queue, Logger: testLogger{}, Clock: fixedClock(time.Now())})
	require.NoError(t, resumed.Initialize(ctx, runID, nil, nil))
	require.Equal(t, runID, resumed.RunID())
	require.Equal(t, "sha256:a", resumed.State().Nodes["a"].OutputKey)
	require.Equal(t, []id.NodeID{"b"}, resumed.State().RemainingWork.ReadyNodes())
}

func TestOrchestrator_Cancel_StopsFurtherScheduling(t *testing.T) {
	o, _, queue := newTestOrchestrator(linearGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	queue.drain()

	require.NoError(t, o.Cancel(ctx, "user requested cancellation"))
	require.Equal(t, "cancelled", string(o.State().Status))

	require.NoError(t, o.scheduleReady(ctx))
	require.Empty(t, queue.drain())
}

func TestOrchestrator_HandleResult_LateResultAfterCancelDoesNotReopenRun(t *testing.T) {
	o, _, queue := newTestOrchestrator(linearGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	queue.drain()

	require.NoError(t, o.Cancel(ctx, "user requested cancellation"))
	require.Equal(t, "cancelled", string(o.State().Status))

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "a", Completed: true, OutputKey: "sha256:a"}))
	require.Equal(t, "cancelled", string(o.State().Status), "a result racing the cancellation must not reopen or re-finalize the run")
	require.Empty(t, queue.drain(), "the cancelled run must not schedule b even though a's late result unblocked it")
}

func TestOrchestrator_HandleResult_BranchOnlySchedulesMatchedArm(t *testing.T) {
	o, _, queue := newTestOrchestrator(branchGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	require.Equal(t, []string{"route"}, nodeIDsOf(queue.drain()))

	require.NoError(t, o.HandleResult(ctx, Result{
		NodeID: "route", Completed: true, OutputKey: "sha256:route", MatchedOutputPort: "approved",
	}))

	scheduled := nodeIDsOf(queue.drain())
	require.Equal(t, []string{"approved_node"}, scheduled, "only the matched arm is ever scheduled")

	rejected := o.State().Nodes["rejected_node"]
	require.NotNil(t, rejected)
	require.Equal(t, "skipped", string(rejected.Status), "the unreached arm's node must be recorded skipped, not left pending")
}

func TestOrchestrator_HandleResult_BranchSkippedArmDoesNotBlockCompletion(t *testing.T) {
	o, _, queue := newTestOrchestrator(branchGraph())
	ctx := context.Background()

	require.NoError(t, o.Initialize(ctx, "", nil, nil))
	require.NoError(t, o.Start(ctx))
	queue.drain()

	require.NoError(t, o.HandleResult(ctx, Result{
		NodeID: "route", Completed: true, OutputKey: "sha256:route", MatchedOutputPort: "rejected",
	}))
	scheduled := nodeIDsOf(queue.drain())
	require.Equal(t, []string{"rejected_node"}, scheduled)

	require.NoError(t, o.HandleResult(ctx, Result{NodeID: "rejected_node", Completed: true, OutputKey: "sha256:rejected-out"}))
	require.Equal(t, "completed", string(o.State().Status), "the skipped approved_node must never block the run from finalizing")

	var output map[string]string
	require.NoError(t, json.Unmarshal(o.State().Output, &output))
	require.Equal(t, "sha256:rejected-out", output["rejected_node"])
	_, hasApproved := output["approved_node"]
	require.False(t, hasApproved, "a skipped terminal node contributes no output")
}
