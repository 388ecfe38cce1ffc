// Package worker implements the stateless work-item consumer pool:
// pull one WorkItem, resolve its inputs from the object store, dispatch
// to a node executor, store the output, and report the result — acking
// only once the result is durably published.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/objectstore"
	"github.com/lyzr/workflowengine/internal/workqueue"
)

// Logger is the minimal structured-logging surface a Worker needs,
// satisfied by *common/logger.Logger.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// GraphLoader loads the workflow graph a work item belongs to. Workers
// cache the result per workflow ID so repeated work items for the same
// workflow don't re-fetch its definition.
type GraphLoader interface {
	Load(ctx context.Context, workflowID id.WorkflowID) (*graph.Graph, error)
}

// ResultPublisher delivers a node's outcome back to the orchestrator
// instance that owns runID. One correct production wiring keys this by
// run ID to an in-process map of live Orchestrators; tests use a
// recording fake.
type ResultPublisher interface {
	PublishResult(ctx context.Context, runID id.WorkflowRunID, nodeID id.NodeID, completed bool, outputKey string, execErr string, fanOutElementKeys []string, matchedOutputPort string) error
}

// Worker pulls work items from one shared queue and executes them
// against a Dispatcher. Workers are interchangeable; none hold run- or
// workflow-specific state across calls beyond the graph cache.
type Worker struct {
	id         string
	queue      workqueue.Queue
	store      objectstore.Store
	graphs     GraphLoader
	dispatcher *executor.Dispatcher
	results    ResultPublisher
	logger     Logger

	graphCache map[id.WorkflowID]*graph.Graph
}

// Options configures a new Worker.
type Options struct {
	ID         string
	Queue      workqueue.Queue
	Store      objectstore.Store
	Graphs     GraphLoader
	Dispatcher *executor.Dispatcher
	Results    ResultPublisher
	Logger     Logger
}

// New builds a Worker.
func New(opts Options) *Worker {
	return &Worker{
		id:         opts.ID,
		queue:      opts.Queue,
		store:      opts.Store,
		graphs:     opts.Graphs,
		dispatcher: opts.Dispatcher,
		results:    opts.Results,
		logger:     opts.Logger,
		graphCache: make(map[id.WorkflowID]*graph.Graph),
	}
}

// PullOnce pulls up to one batch of work items and processes each to
// completion, blocking up to block for at least one item. Callers
// typically call this in a loop until ctx is cancelled.
func (w *Worker) PullOnce(ctx context.Context, block time.Duration) error {
	deliveries, err := w.queue.Consume(ctx, w.id, 1, block)
	if err != nil {
		return fmt.Errorf("consume work items: %w", err)
	}
	for _, d := range deliveries {
		w.process(ctx, d)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, delivery workqueue.Delivery) {
	item := delivery.Item

	workflowGraph, err := w.loadGraph(ctx, item.WorkflowID)
	if err != nil {
		w.fail(ctx, delivery, fmt.Sprintf("load workflow graph: %v", err))
		return
	}

	// A synthetic fan-out node ID ("<node_id>#<index>") has no entry of
	// its own in the static graph; it executes the base node's
	// definition but reports its result under the full synthetic ID, so
	// the event log and remaining-work graph see each copy as an
	// independent node.
	lookupID := item.NodeID
	if base, _, ok := id.SplitSynthetic(item.NodeID); ok {
		lookupID = base
	}

	node, ok := workflowGraph.Node(lookupID)
	if !ok {
		w.fail(ctx, delivery, fmt.Sprintf("node %s not found in workflow %s", lookupID, item.WorkflowID))
		return
	}

	inputs, err := w.resolveInputs(ctx, item.Inputs, item.InputLists)
	if err != nil {
		w.fail(ctx, delivery, fmt.Sprintf("resolve inputs: %v", err))
		return
	}

	output, err := w.dispatcher.Execute(ctx, item.WorkflowID, node, inputs)
	if err != nil {
		w.fail(ctx, delivery, err.Error())
		return
	}

	outputKey, err := w.storeOutput(ctx, output)
	if err != nil {
		w.fail(ctx, delivery, fmt.Sprintf("store output: %v", err))
		return
	}

	var elementKeys []string
	if isFanOutNode(node) {
		items, ok := output.([]interface{})
		if !ok {
			w.fail(ctx, delivery, fmt.Sprintf("fan_out node %s output was not an array", item.NodeID))
			return
		}
		elementKeys, err = w.storeEach(ctx, items)
		if err != nil {
			w.fail(ctx, delivery, fmt.Sprintf("store fan-out elements: %v", err))
			return
		}
	}

	var matchedOutputPort string
	if isBranchNode(node) {
		matchedOutputPort, err = branchMatchedPort(output)
		if err != nil {
			w.fail(ctx, delivery, fmt.Sprintf("branch node %s: %v", item.NodeID, err))
			return
		}
	}

	if err := w.results.PublishResult(ctx, item.RunID, item.NodeID, true, outputKey, "", elementKeys, matchedOutputPort); err != nil {
		w.logger.Error("failed to publish result, not acking; item will be redelivered",
			"run_id", item.RunID, "node_id", item.NodeID, "error", err)
		return
	}
	w.ack(ctx, delivery)
}

// fail publishes a failure result and acks only once that publish
// succeeds — the same durability-before-ack ordering as the success
// path, so a crash between execution and publish still leads to
// redelivery rather than a silently dropped failure.
func (w *Worker) fail(ctx context.Context, delivery workqueue.Delivery, reason string) {
	item := delivery.Item
	w.logger.Warn("work item failed", "run_id", item.RunID, "node_id", item.NodeID, "reason", reason)

	if err := w.results.PublishResult(ctx, item.RunID, item.NodeID, false, "", reason, nil, ""); err != nil {
		w.logger.Error("failed to publish failure result, not acking; item will be redelivered",
			"run_id", item.RunID, "node_id", item.NodeID, "error", err)
		return
	}
	w.ack(ctx, delivery)
}

func isFanOutNode(n graph.Node) bool {
	return n.Config.Category == graph.CategoryControlFlow &&
		n.Config.ControlFlow != nil && n.Config.ControlFlow.Kind == graph.ControlFlowKindFanOut
}

func isBranchNode(n graph.Node) bool {
	return n.Config.Category == graph.CategoryControlFlow &&
		n.Config.ControlFlow != nil && n.Config.ControlFlow.Kind == graph.ControlFlowKindBranch
}

// branchMatchedPort extracts the output_port a Branch executor's
// result carries; empty means no condition matched.
func branchMatchedPort(output executor.Output) (string, error) {
	m, ok := output.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("branch output was not an object")
	}
	port, ok := m["output_port"]
	if !ok {
		return "", nil
	}
	s, ok := port.(string)
	if !ok {
		return "", fmt.Errorf("output_port was not a string")
	}
	return s, nil
}

func (w *Worker) ack(ctx context.Context, delivery workqueue.Delivery) {
	if err := w.queue.Ack(ctx, delivery.DeliveryID); err != nil {
		w.logger.Error("failed to ack delivered work item", "delivery_id", delivery.DeliveryID, "error", err)
	}
}

// loadGraph serves workflowID's graph from the worker's local cache,
// populating it on first use.
func (w *Worker) loadGraph(ctx context.Context, workflowID id.WorkflowID) (*graph.Graph, error) {
	if g, ok := w.graphCache[workflowID]; ok {
		return g, nil
	}
	g, err := w.graphs.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	w.graphCache[workflowID] = g
	return g, nil
}

// resolveInputs dereferences every port_name→output_key binding the
// orchestrator attached to the work item, fetching and JSON-decoding
// each one from the object store. listBindings carries FanIn's
// multi-valued ports: each is resolved into an ordered array of
// decoded values.
func (w *Worker) resolveInputs(ctx context.Context, bindings map[string]string, listBindings map[string][]string) (executor.Inputs, error) {
	inputs := make(executor.Inputs, len(bindings)+len(listBindings))
	for port, outputKey := range bindings {
		value, err := w.getDecoded(ctx, outputKey)
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", port, err)
		}
		inputs[port] = value
	}
	for port, outputKeys := range listBindings {
		values := make([]interface{}, 0, len(outputKeys))
		for _, outputKey := range outputKeys {
			value, err := w.getDecoded(ctx, outputKey)
			if err != nil {
				return nil, fmt.Errorf("port %s: %w", port, err)
			}
			values = append(values, value)
		}
		inputs[port] = values
	}
	return inputs, nil
}

func (w *Worker) getDecoded(ctx context.Context, outputKey string) (interface{}, error) {
	data, err := w.store.Get(ctx, outputKey)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", outputKey, err)
	}
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode object %s: %w", outputKey, err)
	}
	return value, nil
}

// storeOutput marshals output to JSON and writes it to the object
// store, returning its content-addressed key.
func (w *Worker) storeOutput(ctx context.Context, output executor.Output) (string, error) {
	data, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}
	return w.store.Put(ctx, data)
}

// storeEach writes each FanOut element individually, returning their
// keys in element order.
func (w *Worker) storeEach(ctx context.Context, items []interface{}) ([]string, error) {
	keys := make([]string, len(items))
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("marshal element %d: %w", i, err)
		}
		key, err := w.store.Put(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("store element %d: %w", i, err)
		}
		keys[i] = key
	}
	return keys, nil
}
