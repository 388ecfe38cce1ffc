// Package service holds the business logic cmd/apiserver's handlers
// call into, kept separate from both the routing layer (handlers) and
// the persistence layer (internal/store), mirroring how
// cmd/orchestrator/service is laid out elsewhere in this codebase.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/store"
	"github.com/lyzr/workflowengine/internal/workflow"
)

// Logger is the minimal structured-logging surface this package needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// CreateWorkflowRequest is the JSON body for creating a workflow.
type CreateWorkflowRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Tags        []string     `json:"tags"`
	Graph       *graph.Graph `json:"graph"`
	Memory      struct {
		Enabled bool `json:"enabled"`
	} `json:"memory"`
}

// WorkflowService orchestrates workflow CRUD against internal/store,
// re-syncing trigger records every time a workflow's graph changes.
type WorkflowService struct {
	store  *store.Store
	logger Logger
}

// NewWorkflowService builds a WorkflowService.
func NewWorkflowService(s *store.Store, logger Logger) *WorkflowService {
	return &WorkflowService{store: s, logger: logger}
}

// Create validates req, persists a new workflow, and syncs its
// trigger records from scratch (no prior triggers to diff against).
func (s *WorkflowService) Create(ctx context.Context, req CreateWorkflowRequest) (*workflow.Workflow, error) {
	if req.Graph == nil {
		return nil, fmt.Errorf("graph is required")
	}
	now := time.Now().UTC()
	w := &workflow.Workflow{
		ID: id.NewWorkflowID(),
		Metadata: workflow.Metadata{
			Name: req.Name, Description: req.Description, Version: 1, Enabled: true,
			Tags: req.Tags, CreatedAt: now, UpdatedAt: now,
		},
		Graph:  req.Graph,
		Memory: workflow.MemoryConfig{Enabled: req.Memory.Enabled},
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}
	if err := s.store.Workflows.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	if err := s.syncTriggers(ctx, w, nil); err != nil {
		return nil, err
	}
	return w, nil
}

// Update overwrites workflowID's graph and metadata fields, re-syncing
// triggers against the workflow's previously-stored trigger records.
func (s *WorkflowService) Update(ctx context.Context, workflowID id.WorkflowID, req CreateWorkflowRequest) (*workflow.Workflow, error) {
	existing, err := s.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", workflowID, err)
	}

	existingTriggers, err := s.store.Triggers.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list triggers for workflow %s: %w", workflowID, err)
	}

	priorGraph := existing.Graph

	existing.Metadata.Name = req.Name
	existing.Metadata.Description = req.Description
	existing.Metadata.Tags = req.Tags
	existing.Metadata.Version++
	existing.Metadata.UpdatedAt = time.Now().UTC()
	if req.Graph != nil {
		existing.Graph = req.Graph
	}
	existing.Memory.Enabled = req.Memory.Enabled

	if err := existing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}

	if req.Graph != nil {
		s.logger.Info("workflow graph changed", "workflow_id", workflowID,
			"version", existing.Metadata.Version, "diff", string(workflow.DiffGraph(priorGraph, existing.Graph)))
	}
	if err := s.store.Workflows.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	if err := s.syncTriggers(ctx, existing, existingTriggers); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *WorkflowService) syncTriggers(ctx context.Context, w *workflow.Workflow, existing []workflow.TriggerRecord) error {
	plan := workflow.SyncTriggers(w.ID, w.Graph, existing, time.Now().UTC())
	if len(plan.Upsert) == 0 && len(plan.Delete) == 0 {
		return nil
	}
	if err := s.store.Triggers.ApplySyncPlan(ctx, plan); err != nil {
		return fmt.Errorf("sync triggers for workflow %s: %w", w.ID, err)
	}
	return nil
}

// Get fetches one workflow by ID.
func (s *WorkflowService) Get(ctx context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	return s.store.Workflows.Get(ctx, workflowID)
}

// List returns every workflow's summary projection.
func (s *WorkflowService) List(ctx context.Context) ([]workflow.Summary, error) {
	return s.store.Workflows.ListSummaries(ctx)
}

// SetEnabled toggles whether a workflow's triggers are allowed to fire.
func (s *WorkflowService) SetEnabled(ctx context.Context, workflowID id.WorkflowID, enabled bool) error {
	return s.store.Workflows.SetEnabled(ctx, workflowID, enabled)
}

// Delete removes a workflow; the schema's ON DELETE CASCADE FKs take
// care of its triggers, memory, and run history rows, but active runs
// must already have been cancelled by the engine before this is called.
func (s *WorkflowService) Delete(ctx context.Context, workflowID id.WorkflowID) error {
	return s.store.Workflows.Delete(ctx, workflowID)
}

// Triggers lists a workflow's denormalized trigger records.
func (s *WorkflowService) Triggers(ctx context.Context, workflowID id.WorkflowID) ([]workflow.TriggerRecord, error) {
	return s.store.Triggers.ListByWorkflow(ctx, workflowID)
}
