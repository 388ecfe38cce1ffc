package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyzr/workflowengine/common/db"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/lyzr/workflowengine/internal/workflow"
)

// WorkflowRepository persists the workflows table.
type WorkflowRepository struct {
	db *db.DB
}

// Create inserts a new workflow.
func (r *WorkflowRepository) Create(ctx context.Context, w *workflow.Workflow) error {
	graphData, err := json.Marshal(w.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	tags, err := json.Marshal(w.Metadata.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	const query = `
		INSERT INTO workflows (id, name, description, enabled, tags, graph_data, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		w.ID, w.Metadata.Name, w.Metadata.Description, w.Metadata.Enabled, tags, graphData,
		w.Metadata.Version, w.Metadata.CreatedAt, w.Metadata.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create workflow %s: %w", w.ID, err)
	}
	return nil
}

// Update overwrites an existing workflow's mutable fields, writing the
// caller-supplied version and updated_at as given.
func (r *WorkflowRepository) Update(ctx context.Context, w *workflow.Workflow) error {
	graphData, err := json.Marshal(w.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	tags, err := json.Marshal(w.Metadata.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	const query = `
		UPDATE workflows
		SET name = $2, description = $3, enabled = $4, tags = $5, graph_data = $6,
		    version = $7, updated_at = $8
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		w.ID, w.Metadata.Name, w.Metadata.Description, w.Metadata.Enabled, tags, graphData,
		w.Metadata.Version, w.Metadata.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update workflow %s: %w", w.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEnabled toggles a workflow's enabled flag without touching its graph.
func (r *WorkflowRepository) SetEnabled(ctx context.Context, workflowID id.WorkflowID, enabled bool) error {
	const query = `UPDATE workflows SET enabled = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, workflowID, enabled)
	if err != nil {
		return fmt.Errorf("set workflow %s enabled=%v: %w", workflowID, enabled, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a workflow. Cascading deletes (triggers, memory, runs)
// are enforced by the schema's ON DELETE CASCADE foreign keys; the
// engine is responsible for cancelling any still-active runs before
// calling this.
func (r *WorkflowRepository) Delete(ctx context.Context, workflowID id.WorkflowID) error {
	const query = `DELETE FROM workflows WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, workflowID)
	if err != nil {
		return fmt.Errorf("delete workflow %s: %w", workflowID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches a workflow by ID, decoding its stored graph.
func (r *WorkflowRepository) Get(ctx context.Context, workflowID id.WorkflowID) (*workflow.Workflow, error) {
	const query = `
		SELECT id, name, description, enabled, tags, graph_data, version, created_at, updated_at
		FROM workflows WHERE id = $1
	`
	var (
		w         workflow.Workflow
		tagsJSON  []byte
		graphJSON []byte
	)
	w.Graph = graph.New()
	err := r.db.QueryRow(ctx, query, workflowID).Scan(
		&w.ID, &w.Metadata.Name, &w.Metadata.Description, &w.Metadata.Enabled,
		&tagsJSON, &graphJSON, &w.Metadata.Version, &w.Metadata.CreatedAt, &w.Metadata.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get workflow %s: %w", workflowID, mapNoRows(err))
	}
	if err := json.Unmarshal(tagsJSON, &w.Metadata.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for workflow %s: %w", workflowID, err)
	}
	if err := json.Unmarshal(graphJSON, w.Graph); err != nil {
		return nil, fmt.Errorf("decode graph for workflow %s: %w", workflowID, err)
	}
	return &w, nil
}

// ListSummaries returns every workflow's listing projection, most
// recently updated first; it never decodes graph_data.
func (r *WorkflowRepository) ListSummaries(ctx context.Context) ([]workflow.Summary, error) {
	const query = `
		SELECT id, name, enabled, updated_at,
		       jsonb_array_length(graph_data -> 'nodes')
		FROM workflows ORDER BY updated_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflow summaries: %w", err)
	}
	defer rows.Close()

	var summaries []workflow.Summary
	for rows.Next() {
		var s workflow.Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.Enabled, &s.UpdatedAt, &s.NodeCount); err != nil {
			return nil, fmt.Errorf("scan workflow summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow summaries: %w", err)
	}
	return summaries, nil
}
