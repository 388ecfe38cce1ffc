// Package orchestrator drives one workflow run from Queued to a
// terminal state: scheduling ready nodes onto the work queue, folding
// worker results back into the event log, and deciding when the run is
// finished.
//
// One Orchestrator instance owns one run. Its state is never the
// source of truth — every method durably appends to the event log
// before it changes anything else, so a crashed orchestrator can be
// replaced by replaying the same run's events into a fresh instance.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/internal/event"
	"github.com/lyzr/workflowengine/internal/eventlog"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/runstate"
	"github.com/lyzr/workflowengine/internal/workqueue"
)

// Logger is the minimal structured-logging surface the orchestrator
// needs, satisfied by *common/logger.Logger.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Clock returns the current time; tests supply a fixed clock so event
// timestamps are reproducible.
type Clock func() time.Time

// Orchestrator owns one run's scheduling loop.
type Orchestrator struct {
	graph  *graph.Graph
	log    eventlog.Log
	queue  workqueue.Queue
	clock  Clock
	logger Logger

	runID      id.WorkflowRunID
	workflowID id.WorkflowID
	state      runstate.RunState
}

// Options configures a new Orchestrator.
type Options struct {
	Graph  *graph.Graph
	Log    eventlog.Log
	Queue  workqueue.Queue
	Logger Logger
	Clock  Clock // defaults to time.Now
}

// New constructs an Orchestrator for workflowID. Call Initialize before
// Start.
func New(workflowID id.WorkflowID, opts Options) *Orchestrator {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Orchestrator{
		graph:      opts.Graph,
		log:        opts.Log,
		queue:      opts.Queue,
		clock:      clock,
		logger:     opts.Logger,
		workflowID: workflowID,
	}
}

// Initialize either resumes runID by replaying its event log, or — if
// runID is empty — starts a brand new run: generates a run_id,
// publishes RunQueued, and builds the initial state from that one
// event.
func (o *Orchestrator) Initialize(ctx context.Context, runID id.WorkflowRunID, input json.RawMessage, triggerID *id.TriggerID) error {
	if runID != "" {
		return o.resume(ctx, runID)
	}

	o.runID = id.NewWorkflowRunID()
	ev := event.RunQueued(o.runID, o.workflowID, triggerID, input, o.clock())
	if _, err := o.log.Publish(ctx, o.runID, ev); err != nil {
		return fmt.Errorf("publish RunQueued: %w", err)
	}

	state, err := runstate.Fold(o.graph, []event.Envelope{{ID: string(o.runID), Payload: ev, Timestamp: ev.Timestamp}})
	if err != nil {
		return fmt.Errorf("fold initial state: %w", err)
	}
	o.state = state
	return nil
}

func (o *Orchestrator) resume(ctx context.Context, runID id.WorkflowRunID) error {
	envelopes, err := o.log.LoadEvents(ctx, runID)
	if err != nil {
		return fmt.Errorf("load events for run %s: %w", runID, err)
	}
	state, err := runstate.Fold(o.graph, envelopes)
	if err != nil {
		return fmt.Errorf("replay run %s: %w", runID, err)
	}
	o.runID = runID
	o.workflowID = state.WorkflowID
	o.state = state
	return nil
}

// State returns the orchestrator's current view of the run.
func (o *Orchestrator) State() runstate.RunState { return o.state }

// RunID returns the run this orchestrator owns.
func (o *Orchestrator) RunID() id.WorkflowRunID { return o.runID }

// Start transitions a Queued run to Running and schedules its entry
// nodes. A no-op if the run is not Queued (e.g. a resumed run already
// past this point).
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.state.Status != runstate.StatusQueued {
		return nil
	}

	ev := event.RunStarted(o.runID, o.clock())
	if err := o.appendAndFold(ctx, ev); err != nil {
		return fmt.Errorf("publish RunStarted: %w", err)
	}
	return o.scheduleReady(ctx)
}

// scheduleReady enqueues a WorkItem for every currently-ready node,
// durably recording NodeStarted before publishing each work item so a
// crash between the two still shows the node as executing on replay.
func (o *Orchestrator) scheduleReady(ctx context.Context) error {
	if o.state.RemainingWork == nil {
		return nil
	}
	if o.state.Status == runstate.StatusCancelled {
		return nil
	}

	for _, nodeID := range o.state.RemainingWork.ReadyNodes() {
		inputBindings := o.collectInputs(nodeID)
		inputLists := o.collectInputLists(nodeID)
		encodedInputs, err := json.Marshal(inputBindings)
		if err != nil {
			return fmt.Errorf("encode inputs for node %s: %w", nodeID, err)
		}

		startedEv := event.NodeStarted(o.runID, nodeID, encodedInputs, o.clock())
		if err := o.appendAndFold(ctx, startedEv); err != nil {
			return fmt.Errorf("publish NodeStarted for %s: %w", nodeID, err)
		}

		item := workqueue.WorkItem{
			RunID: o.runID, WorkflowID: o.workflowID, NodeID: nodeID,
			Inputs: inputBindings, InputLists: inputLists, Attempt: 1,
		}
		if err := o.queue.Publish(ctx, item); err != nil {
			return fmt.Errorf("enqueue work item for %s: %w", nodeID, err)
		}
	}
	return nil
}

// collectInputs builds target_port_name -> output_key by looking up
// each predecessor's recorded output in NodeExecution. A synthetic
// fan-out node (nodeID of the form "<node_id>#<index>") resolves its
// predecessors against the base node's static edges instead: an edge
// from the originating FanOut node is bound to that element's key
// directly, and an edge from another subgraph node is redirected to
// that node's same-index synthetic copy.
func (o *Orchestrator) collectInputs(nodeID id.NodeID) map[string]string {
	inputs := make(map[string]string)

	base, index, synthetic := id.SplitSynthetic(nodeID)
	lookup := nodeID
	if synthetic {
		lookup = base
	}

	for _, pred := range o.graph.Predecessors(lookup) {
		if synthetic && isFanOut(pred.Node) {
			source := o.state.Nodes[pred.Node.ID]
			if source == nil || index >= len(source.FanOutElementKeys) {
				continue
			}
			inputs[pred.Edge.TargetPort] = source.FanOutElementKeys[index]
			continue
		}

		sourceID := pred.Node.ID
		if synthetic {
			sourceID = id.SyntheticNodeID(pred.Node.ID, index)
		}
		source := o.state.Nodes[sourceID]
		if source == nil || source.Status != runstate.NodeStatusCompleted {
			continue
		}
		inputs[pred.Edge.TargetPort] = source.OutputKey
	}
	return inputs
}

// collectInputLists builds the ordered multi-value bindings a FanIn
// node needs: for each static predecessor edge (a subgraph terminal
// node, which never itself executes), every spawned copy's output key
// in element order. Returns nil for any node that isn't a ready FanIn.
func (o *Orchestrator) collectInputLists(nodeID id.NodeID) map[string][]string {
	node, ok := o.graph.Node(nodeID)
	if !ok || !isFanIn(node) {
		return nil
	}

	fanOutID := id.NodeID(node.Config.ControlFlow.FanOutNode)
	fanOutExec := o.state.Nodes[fanOutID]
	if fanOutExec == nil || len(fanOutExec.FanOutElementKeys) == 0 {
		return nil
	}
	n := len(fanOutExec.FanOutElementKeys)

	lists := make(map[string][]string)
	for _, pred := range o.graph.Predecessors(nodeID) {
		keys := make([]string, 0, n)
		complete := true
		for i := 0; i < n; i++ {
			source := o.state.Nodes[id.SyntheticNodeID(pred.Node.ID, i)]
			if source == nil || source.Status != runstate.NodeStatusCompleted {
				complete = false
				break
			}
			keys = append(keys, source.OutputKey)
		}
		if complete {
			lists[pred.Edge.TargetPort] = keys
		}
	}
	return lists
}

func isFanOut(n graph.Node) bool {
	return n.Config.Category == graph.CategoryControlFlow &&
		n.Config.ControlFlow != nil && n.Config.ControlFlow.Kind == graph.ControlFlowKindFanOut
}

func isFanIn(n graph.Node) bool {
	return n.Config.Category == graph.CategoryControlFlow &&
		n.Config.ControlFlow != nil && n.Config.ControlFlow.Kind == graph.ControlFlowKindFanIn
}

// Result is what a worker reports back for one node.
type Result struct {
	NodeID    id.NodeID
	Completed bool
	OutputKey string // set when Completed
	Error     string // set when !Completed

	// FanOutElementKeys is set when NodeID is a FanOut node that
	// completed successfully: the object-store key of each exploded
	// array element, in order.
	FanOutElementKeys []string

	// MatchedOutputPort is set when NodeID is a Branch node that
	// completed successfully: the output port whose condition matched,
	// or "" if none did.
	MatchedOutputPort string
}

// HandleResult folds a worker's result into the event log and either
// schedules newly-unblocked nodes or finalizes the run.
//
// A result for a node that is not currently Running is a duplicate
// delivery (at-least-once redelivery, or a replay race) and is logged
// and ignored.
func (o *Orchestrator) HandleResult(ctx context.Context, result Result) error {
	node := o.state.Nodes[result.NodeID]
	if node == nil || node.Status != runstate.NodeStatusRunning {
		o.logger.Warn("ignoring result for node not in Running state",
			"run_id", o.runID, "node_id", result.NodeID)
		return nil
	}

	var ev event.ExecutionEvent
	if result.Completed {
		ev = event.NodeCompleted(o.runID, result.NodeID, result.OutputKey, o.clock())
		ev.FanOutElementKeys = result.FanOutElementKeys
		ev.MatchedOutputPort = result.MatchedOutputPort
	} else {
		ev = event.NodeFailed(o.runID, result.NodeID, result.Error, o.clock())
	}
	if err := o.appendAndFold(ctx, ev); err != nil {
		return fmt.Errorf("publish result for %s: %w", result.NodeID, err)
	}

	// A run already terminal (e.g. Cancelled while this node was still
	// in flight) must stay terminal: a result that arrives after the
	// terminal event was published must not schedule more work or
	// publish a second terminal event.
	if o.state.IsTerminal() {
		return nil
	}

	// A completed Branch node cascades node_skipped for every arm its
	// matched condition didn't take; record each one durably before
	// scheduling, so a crash-resumed replay sees the same skip decision
	// rather than recomputing whether it still applies.
	for _, skippedID := range o.state.PendingSkips {
		skipEv := event.NodeSkipped(o.runID, skippedID, fmt.Sprintf("unreached branch arm from %s", result.NodeID), o.clock())
		if err := o.appendAndFold(ctx, skipEv); err != nil {
			return fmt.Errorf("publish skip for %s: %w", skippedID, err)
		}
		if o.state.IsTerminal() {
			return nil
		}
	}

	if o.state.RemainingWork.IsComplete() {
		return o.finalize(ctx)
	}
	return o.scheduleReady(ctx)
}

// finalize publishes the run's terminal event and transitions state.
func (o *Orchestrator) finalize(ctx context.Context) error {
	if o.state.HasFailures() {
		ev := event.RunFailed(o.runID, "workflow failed due to node failures", o.clock())
		return o.appendAndFold(ctx, ev)
	}
	ev := event.RunCompleted(o.runID, o.collectFinalOutput(), o.clock())
	return o.appendAndFold(ctx, ev)
}

// collectFinalOutput gathers every terminal node's output_key, keyed
// by node name, into the run's published output.
func (o *Orchestrator) collectFinalOutput() json.RawMessage {
	output := make(map[string]string)
	for _, n := range o.graph.TerminalNodes() {
		exec := o.state.Nodes[n.ID]
		if exec != nil && exec.Status == runstate.NodeStatusCompleted {
			output[n.Name] = exec.OutputKey
		}
	}
	if len(output) == 0 {
		return nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil
	}
	return data
}

// Cancel publishes RunCancelled. Already-in-flight work items may
// still complete and their results are recorded via HandleResult, but
// scheduleReady becomes a no-op once cancellation is recorded.
func (o *Orchestrator) Cancel(ctx context.Context, reason string) error {
	if o.state.IsTerminal() {
		return nil
	}
	ev := event.RunCancelled(o.runID, reason, o.clock())
	return o.appendAndFold(ctx, ev)
}

// appendAndFold durably publishes ev then re-derives the in-memory
// state by applying it, keeping the orchestrator's view consistent
// with what a fresh replay would produce.
func (o *Orchestrator) appendAndFold(ctx context.Context, ev event.ExecutionEvent) error {
	env, err := o.log.Publish(ctx, o.runID, ev)
	if err != nil {
		return err
	}
	envelopes, err := o.log.LoadEvents(ctx, o.runID)
	if err != nil {
		return err
	}
	state, err := runstate.Fold(o.graph, envelopes)
	if err != nil {
		return err
	}
	o.state = state
	_ = env
	return nil
}
