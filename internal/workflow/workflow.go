// Package workflow holds the top-level Workflow aggregate — metadata,
// graph, and memory configuration — plus a trigger-record
// denormalization: trigger-category nodes in the graph are projected
// into a separate collection so the scheduler can scan schedules
// without loading every workflow's full graph.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
)

// Metadata is a workflow's descriptive, independently-editable fields.
type Metadata struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
	Enabled     bool      `json:"enabled"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MemoryConfig controls whether a workflow carries a persistent memory
// blob at all; a workflow with no Memory nodes need not allocate one.
type MemoryConfig struct {
	Enabled bool `json:"enabled"`
}

// Workflow is the full definition: metadata, graph, and memory config.
type Workflow struct {
	ID       id.WorkflowID `json:"id"`
	Metadata Metadata      `json:"metadata"`
	Graph    *graph.Graph  `json:"graph"`
	Memory   MemoryConfig  `json:"memory"`
}

// Summary is the lightweight projection used for listings, sparing
// callers the cost of deserializing every workflow's full graph.
type Summary struct {
	ID        id.WorkflowID `json:"id"`
	Name      string        `json:"name"`
	Enabled   bool          `json:"enabled"`
	NodeCount int           `json:"node_count"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ToSummary projects w into its listing representation.
func (w *Workflow) ToSummary() Summary {
	nodeCount := 0
	if w.Graph != nil {
		nodeCount = len(w.Graph.Nodes())
	}
	return Summary{
		ID:        w.ID,
		Name:      w.Metadata.Name,
		Enabled:   w.Metadata.Enabled,
		NodeCount: nodeCount,
		UpdatedAt: w.Metadata.UpdatedAt,
	}
}

// Validate checks the workflow's graph invariants and every
// schedule-trigger node's cron expression. It does not touch storage;
// callers run this at create/update time and reject the write on
// error, since the engine never starts a run for an invalid workflow.
func (w *Workflow) Validate() error {
	if w.Metadata.Name == "" {
		return fmt.Errorf("workflow name must not be empty")
	}
	if w.Graph == nil {
		return fmt.Errorf("workflow %s has no graph", w.ID)
	}
	if err := w.Graph.Validate(); err != nil {
		return fmt.Errorf("graph validation: %w", err)
	}
	for _, n := range w.Graph.Nodes() {
		if n.Config.Category != graph.CategoryTrigger || n.Config.Trigger == nil {
			continue
		}
		if n.Config.Trigger.Kind != graph.TriggerKindSchedule {
			continue
		}
		if err := validateCronExpr(n.Config.Trigger.CronExpression); err != nil {
			return fmt.Errorf("trigger node %s: %w", n.ID, err)
		}
	}
	return nil
}

// validateCronExprFunc is a package-level hook so this package doesn't
// import internal/scheduler for a single validation call (that would
// create a cycle once internal/store wires both together); set by
// cmd wiring in production, and defaults to a permissive no-op check
// callers can override via SetCronValidator.
var validateCronExprFunc = func(expr string) error {
	if expr == "" {
		return fmt.Errorf("cron expression must not be empty")
	}
	return nil
}

// SetCronValidator overrides the cron-expression check Validate applies
// to schedule triggers. cmd wiring calls this once at startup with
// scheduler.ValidateCronExpr so workflow validation rejects malformed
// expressions with the same parser the scheduler itself uses.
func SetCronValidator(f func(expr string) error) {
	validateCronExprFunc = f
}

func validateCronExpr(expr string) error { return validateCronExprFunc(expr) }

// TriggerRecord is the denormalized projection of one trigger-category
// node, independent of its owning workflow's full graph.
type TriggerRecord struct {
	ID         id.TriggerID     `json:"id"`
	WorkflowID id.WorkflowID    `json:"workflow_id"`
	NodeID     id.NodeID        `json:"node_id"`
	Kind       graph.TriggerKind `json:"kind"`
	Config     graph.TriggerConfig `json:"config"`
	Active     bool             `json:"active"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// SyncPlan is the set of trigger-record writes needed to bring storage
// in line with a workflow's current graph.
type SyncPlan struct {
	Upsert []TriggerRecord
	Delete []id.TriggerID
}

// SyncTriggers diffs existing trigger records for workflowID against
// its current graph's trigger-category nodes: removed trigger nodes are
// deleted, new or changed ones are upserted.
func SyncTriggers(workflowID id.WorkflowID, g *graph.Graph, existing []TriggerRecord, now time.Time) SyncPlan {
	existingByNode := make(map[id.NodeID]TriggerRecord, len(existing))
	for _, rec := range existing {
		existingByNode[rec.NodeID] = rec
	}

	var plan SyncPlan
	seen := make(map[id.NodeID]bool, len(existing))

	for _, n := range g.Nodes() {
		if n.Config.Category != graph.CategoryTrigger || n.Config.Trigger == nil {
			continue
		}
		seen[n.ID] = true

		prior, existed := existingByNode[n.ID]
		rec := TriggerRecord{
			WorkflowID: workflowID,
			NodeID:     n.ID,
			Kind:       n.Config.Trigger.Kind,
			Config:     *n.Config.Trigger,
			Active:     true,
			UpdatedAt:  now,
		}
		if existed {
			if rec.Kind == prior.Kind && configEqual(rec.Config, prior.Config) && prior.Active {
				continue // unchanged, nothing to write
			}
			rec.ID = prior.ID
			rec.CreatedAt = prior.CreatedAt
		} else {
			rec.ID = id.NewTriggerID()
			rec.CreatedAt = now
		}
		plan.Upsert = append(plan.Upsert, rec)
	}

	for _, rec := range existing {
		if !seen[rec.NodeID] {
			plan.Delete = append(plan.Delete, rec.ID)
		}
	}
	return plan
}

// DiffGraph returns a JSON merge patch (RFC 7396) describing how to turn
// oldGraph into newGraph, for the update-audit log entry a workflow
// update writes alongside its new version number. Two nil graphs, or an
// encode failure on either side, yield an empty patch rather than an
// error — graph diffing is an audit aid, not something an update should
// fail over.
func DiffGraph(oldGraph, newGraph *graph.Graph) json.RawMessage {
	oldJSON, err := json.Marshal(oldGraph)
	if err != nil {
		return json.RawMessage("{}")
	}
	newJSON, err := json.Marshal(newGraph)
	if err != nil {
		return json.RawMessage("{}")
	}
	patch, err := jsonpatch.CreateMergePatch(oldJSON, newJSON)
	if err != nil {
		return json.RawMessage("{}")
	}
	return json.RawMessage(patch)
}

func configEqual(a, b graph.TriggerConfig) bool {
	return a.Kind == b.Kind &&
		a.CronExpression == b.CronExpression &&
		a.Timezone == b.Timezone &&
		a.MissedBehavior == b.MissedBehavior &&
		a.WebhookPath == b.WebhookPath &&
		a.EventType == b.EventType
}
