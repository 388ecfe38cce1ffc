package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/common/ratelimit"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/runqueue"
	"github.com/lyzr/workflowengine/internal/store"
)

// RunService lists run history from internal/store and hands manual
// trigger requests off to the engine via internal/runqueue — this
// process never constructs an orchestrator itself; the
// single-orchestrator-per-run contract lives in cmd/engine.
type RunService struct {
	store   *store.Store
	runs    runqueue.Queue
	limiter *ratelimit.RateLimiter
}

// NewRunService builds a RunService. limiter may be nil, which disables
// the per-tier manual-trigger throttle (used in tests).
func NewRunService(s *store.Store, runs runqueue.Queue, limiter *ratelimit.RateLimiter) *RunService {
	return &RunService{store: s, runs: runs, limiter: limiter}
}

// RateLimitedError is returned by Trigger when the caller's tiered rate
// limit for this workflow's complexity has been exceeded.
type RateLimitedError struct {
	Tier              ratelimit.WorkflowTier
	RetryAfterSeconds int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s tier, retry after %ds", e.Tier, e.RetryAfterSeconds)
}

// Trigger hands a manual run-start request to the engine. The run row
// itself is created by the engine once it picks the request up and
// calls orchestrator.Initialize, not here — this call only durably
// records the intent to start a run. Manual triggers are throttled by
// workflow complexity tier (spec §6), keyed on caller, so a handful of
// heavy AI-layer workflows can't starve cheap transform-only ones of
// their own quota.
func (s *RunService) Trigger(ctx context.Context, workflowID id.WorkflowID, caller string, input json.RawMessage) error {
	wf, err := s.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("get workflow %s: %w", workflowID, err)
	}

	if s.limiter != nil {
		profile := ratelimit.InspectWorkflow(wf.Graph)
		result, err := s.limiter.CheckTieredLimit(ctx, caller, profile.Tier)
		if err != nil {
			return fmt.Errorf("check tiered rate limit: %w", err)
		}
		if !result.Allowed {
			return &RateLimitedError{Tier: profile.Tier, RetryAfterSeconds: result.RetryAfterSeconds}
		}
	}

	return s.runs.Publish(ctx, runqueue.Request{
		WorkflowID: workflowID,
		Input:      input,
		FiredAt:    time.Now().UTC(),
	})
}

// Get fetches one run by ID.
func (s *RunService) Get(ctx context.Context, runID id.WorkflowRunID) (*store.RunRecord, error) {
	return s.store.Runs.Get(ctx, runID)
}

// List returns a workflow's recent runs, most recent first.
func (s *RunService) List(ctx context.Context, workflowID id.WorkflowID, limit int) ([]store.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.Runs.ListByWorkflow(ctx, workflowID, limit)
}

// NodeExecutions returns every node execution recorded for a run, for
// run-detail views.
func (s *RunService) NodeExecutions(ctx context.Context, runID id.WorkflowRunID) ([]store.NodeExecutionRecord, error) {
	return s.store.NodeExecutions.ListByRun(ctx, runID)
}
