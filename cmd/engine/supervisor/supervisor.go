// Package supervisor owns cmd/engine's pool of live orchestrators: the
// map from run ID to the in-process orchestrator.Orchestrator driving
// it. It is the only thing in the system that constructs an
// Orchestrator, enforcing a single-orchestrator-per-run contract, and
// it is the bridge between the two async entry points a run can
// arrive through — internal/runqueue deliveries (a fresh run to start)
// and internal/worker results (a node finishing) — and internal/store's
// queryable run/node-execution projections.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lyzr/workflowengine/internal/eventlog"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/orchestrator"
	"github.com/lyzr/workflowengine/internal/runqueue"
	"github.com/lyzr/workflowengine/internal/runstate"
	"github.com/lyzr/workflowengine/internal/store"
	"github.com/lyzr/workflowengine/internal/workqueue"
)

// Logger is the minimal structured-logging surface the supervisor
// needs, satisfied by *common/logger.Logger.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// GraphLoader loads a workflow's current graph definition. Satisfied
// by a thin wrapper over internal/store.WorkflowRepository.Get; kept as
// its own interface (rather than depending on *store.Store directly
// for this one call) because internal/worker needs the identical
// shape, and cmd/engine wires one implementation to both.
type GraphLoader interface {
	Load(ctx context.Context, workflowID id.WorkflowID) (*graph.Graph, error)
}

// Clock returns the current time; tests supply a fixed clock.
type Clock func() time.Time

// Supervisor holds every run this engine process currently has an
// Orchestrator for, and is the bridge that keeps internal/store's
// workflow_runs/node_executions tables in sync with the event log's
// authoritative state after every transition.
type Supervisor struct {
	mu    sync.Mutex
	live  map[id.WorkflowRunID]*orchestrator.Orchestrator
	nexID map[id.WorkflowRunID]map[id.NodeID]id.NodeExecutionID

	graphs GraphLoader
	log    eventlog.Log
	queue  workqueue.Queue
	store  *store.Store
	logger Logger
	clock  Clock
}

// Options configures a new Supervisor.
type Options struct {
	Graphs GraphLoader
	Log    eventlog.Log
	Queue  workqueue.Queue
	Store  *store.Store
	Logger Logger
	Clock  Clock // defaults to time.Now
}

// New builds a Supervisor.
func New(opts Options) *Supervisor {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Supervisor{
		live:   make(map[id.WorkflowRunID]*orchestrator.Orchestrator),
		nexID:  make(map[id.WorkflowRunID]map[id.NodeID]id.NodeExecutionID),
		graphs: opts.Graphs,
		log:    opts.Log,
		queue:  opts.Queue,
		store:  opts.Store,
		logger: opts.Logger,
		clock:  clock,
	}
}

// HandleRunRequest starts a brand new run for a runqueue.Request — the
// single entry point both cmd/apiserver's manual trigger and
// internal/scheduler's cron fires ultimately drive, via internal/runqueue.
func (s *Supervisor) HandleRunRequest(ctx context.Context, req runqueue.Request) error {
	runID, err := s.startRun(ctx, req.WorkflowID, req.TriggerID, req.Input)
	if err != nil {
		s.logger.Error("failed to start run", "workflow_id", req.WorkflowID, "error", err)
		return err
	}
	s.logger.Info("started run", "workflow_id", req.WorkflowID, "run_id", runID)
	return nil
}

// StartRun implements internal/scheduler.RunStarter.
func (s *Supervisor) StartRun(ctx context.Context, workflowID id.WorkflowID, triggerID id.TriggerID, firedAt time.Time) error {
	_, err := s.startRun(ctx, workflowID, &triggerID, nil)
	return err
}

func (s *Supervisor) startRun(ctx context.Context, workflowID id.WorkflowID, triggerID *id.TriggerID, input json.RawMessage) (id.WorkflowRunID, error) {
	g, err := s.graphs.Load(ctx, workflowID)
	if err != nil {
		return "", fmt.Errorf("load graph for workflow %s: %w", workflowID, err)
	}

	orch := orchestrator.New(workflowID, orchestrator.Options{
		Graph:  g,
		Log:    s.log,
		Queue:  s.queue,
		Logger: s.logger,
		Clock:  orchestrator.Clock(s.clock),
	})

	if err := orch.Initialize(ctx, "", input, triggerID); err != nil {
		return "", fmt.Errorf("initialize run: %w", err)
	}
	runID := orch.RunID()

	now := s.clock()
	if err := s.store.Runs.Create(ctx, &store.RunRecord{
		ID:         runID,
		WorkflowID: workflowID,
		TriggerID:  triggerID,
		State:      runstate.StatusQueued,
		QueuedAt:   now,
		Input:      input,
	}); err != nil {
		return "", fmt.Errorf("record queued run %s: %w", runID, err)
	}

	s.register(runID, orch)

	if err := orch.Start(ctx); err != nil {
		return runID, fmt.Errorf("start run %s: %w", runID, err)
	}
	if err := s.store.Runs.MarkStarted(ctx, runID, now); err != nil {
		s.logger.Error("failed to record run started", "run_id", runID, "error", err)
	}
	s.afterTransition(ctx, runID)
	return runID, nil
}

// PublishResult implements internal/worker.ResultPublisher. A run
// missing from the live map means this engine process never started
// it (or restarted since) — the orchestrator is rebuilt by replaying
// its event log, since any orchestrator instance may resume any run.
func (s *Supervisor) PublishResult(ctx context.Context, runID id.WorkflowRunID, nodeID id.NodeID, completed bool, outputKey string, execErr string, fanOutElementKeys []string, matchedOutputPort string) error {
	orch, err := s.orchestratorFor(ctx, runID)
	if err != nil {
		return fmt.Errorf("resolve orchestrator for run %s: %w", runID, err)
	}

	if err := orch.HandleResult(ctx, orchestrator.Result{
		NodeID:            nodeID,
		Completed:         completed,
		OutputKey:         outputKey,
		Error:             execErr,
		FanOutElementKeys: fanOutElementKeys,
		MatchedOutputPort: matchedOutputPort,
	}); err != nil {
		return fmt.Errorf("handle result for run %s node %s: %w", runID, nodeID, err)
	}
	s.afterTransition(ctx, runID)
	return nil
}

// orchestratorFor returns the live orchestrator for runID, resuming it
// from the event log if this process doesn't already have one.
func (s *Supervisor) orchestratorFor(ctx context.Context, runID id.WorkflowRunID) (*orchestrator.Orchestrator, error) {
	s.mu.Lock()
	orch, ok := s.live[runID]
	s.mu.Unlock()
	if ok {
		return orch, nil
	}

	run, err := s.store.Runs.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("look up run %s: %w", runID, err)
	}
	g, err := s.graphs.Load(ctx, run.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load graph for workflow %s: %w", run.WorkflowID, err)
	}
	orch = orchestrator.New(run.WorkflowID, orchestrator.Options{Graph: g, Log: s.log, Queue: s.queue, Logger: s.logger, Clock: orchestrator.Clock(s.clock)})
	if err := orch.Initialize(ctx, runID, nil, nil); err != nil {
		return nil, fmt.Errorf("resume run %s: %w", runID, err)
	}

	if err := s.seedNodeExecutionIDs(ctx, runID); err != nil {
		s.logger.Warn("failed to seed node execution IDs for resumed run", "run_id", runID, "error", err)
	}
	s.register(runID, orch)
	return orch, nil
}

// seedNodeExecutionIDs repopulates the run's node_execution ID table
// from what's already persisted, so a resumed orchestrator's first
// Upsert for an in-flight node updates its existing row instead of
// inserting a duplicate.
func (s *Supervisor) seedNodeExecutionIDs(ctx context.Context, runID id.WorkflowRunID) error {
	existing, err := s.store.NodeExecutions.ListByRun(ctx, runID)
	if err != nil {
		return err
	}
	ids := make(map[id.NodeID]id.NodeExecutionID, len(existing))
	for _, rec := range existing {
		ids[rec.NodeID] = rec.ID
	}
	s.mu.Lock()
	s.nexID[runID] = ids
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) register(runID id.WorkflowRunID, orch *orchestrator.Orchestrator) {
	s.mu.Lock()
	s.live[runID] = orch
	if s.nexID[runID] == nil {
		s.nexID[runID] = make(map[id.NodeID]id.NodeExecutionID)
	}
	s.mu.Unlock()
}

func (s *Supervisor) evict(runID id.WorkflowRunID) {
	s.mu.Lock()
	delete(s.live, runID)
	delete(s.nexID, runID)
	s.mu.Unlock()
}

// afterTransition syncs internal/store's queryable node_executions and
// workflow_runs rows with the orchestrator's current folded state, and
// evicts the run from the live map once it reaches a terminal status.
// The event log stays authoritative throughout; this is purely the
// read-side projection kept alongside it.
func (s *Supervisor) afterTransition(ctx context.Context, runID id.WorkflowRunID) {
	s.mu.Lock()
	orch, ok := s.live[runID]
	s.mu.Unlock()
	if !ok {
		return
	}
	state := orch.State()

	for nodeID, exec := range state.Nodes {
		if exec.Status == runstate.NodeStatusPending {
			continue
		}
		rec := &store.NodeExecutionRecord{
			ID:        s.nodeExecutionID(runID, nodeID),
			RunID:     runID,
			NodeID:    nodeID,
			State:     exec.Status,
			Input:     exec.Input,
			OutputKey: exec.OutputKey,
			Error:     exec.Error,
		}
		if !exec.StartedAt.IsZero() {
			startedAt := exec.StartedAt
			rec.StartedAt = &startedAt
		}
		if !exec.FinishedAt.IsZero() {
			finishedAt := exec.FinishedAt
			rec.FinishedAt = &finishedAt
			if rec.StartedAt != nil {
				ms := finishedAt.Sub(*rec.StartedAt).Milliseconds()
				rec.DurationMS = &ms
			}
		}
		if err := s.store.NodeExecutions.Upsert(ctx, rec); err != nil {
			s.logger.Error("failed to persist node execution", "run_id", runID, "node_id", nodeID, "error", err)
		}
	}

	if state.IsTerminal() {
		finishedAt := state.FinishedAt
		if finishedAt.IsZero() {
			finishedAt = s.clock()
		}
		if err := s.store.Runs.UpdateTerminal(ctx, runID, state.Status, finishedAt, state.Output, state.Error); err != nil {
			s.logger.Error("failed to record run terminal state", "run_id", runID, "error", err)
		}
		s.evict(runID)
	}
}

func (s *Supervisor) nodeExecutionID(runID id.WorkflowRunID, nodeID id.NodeID) id.NodeExecutionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.nexID[runID]
	if !ok {
		ids = make(map[id.NodeID]id.NodeExecutionID)
		s.nexID[runID] = ids
	}
	nexID, ok := ids[nodeID]
	if !ok {
		nexID = id.NewNodeExecutionID()
		ids[nodeID] = nexID
	}
	return nexID
}
