// Package transform is the placeholder executor for Transform nodes.
// The expression language itself is out of scope for now; every
// Transform node fails UnsupportedNodeType until an evaluator is
// wired in. google/cel-go (already used by internal/executor/controlflow
// for Branch) is the natural future evaluator here, since the two node
// kinds share an "evaluate an expression over inputs" shape — not
// implemented yet.
package transform

import (
	"context"

	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
)

// Executor always fails; see package doc.
type Executor struct{}

// New builds a transform Executor.
func New() *Executor { return &Executor{} }

// Execute implements executor.NodeExecutor.
func (e *Executor) Execute(_ context.Context, _ id.WorkflowID, node graph.Node, _ executor.Inputs) (executor.Output, error) {
	return nil, &executor.UnsupportedNodeTypeError{Category: node.Config.Category}
}
