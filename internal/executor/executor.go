// Package executor dispatches one node's execution to a concrete
// strategy based on its category. The dispatcher itself
// holds no state beyond the sub-executors it was built with; node
// definitions and resolved inputs are passed in on every call so a
// worker can reuse one Dispatcher across every work item it pulls.
package executor

import (
	"context"
	"fmt"

	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
)

// Inputs is the decoded value for every input port the worker resolved
// from the object store before dispatch.
type Inputs map[string]interface{}

// Output is whatever an executor produces; the worker marshals it to
// JSON and stores it in the object store under a new content-addressed
// key.
type Output interface{}

// ExternalServiceError wraps a failure from a backend outside the
// engine's control (an LLM provider, an integration connector).
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %q failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ExecutionFailedError is a node-local failure that isn't attributable
// to an external service (e.g. a memory CAS conflict after retry).
type ExecutionFailedError struct {
	Reason string
}

func (e *ExecutionFailedError) Error() string { return e.Reason }

// UnsupportedNodeTypeError is returned for categories or sub-kinds with
// no executor yet (currently: Transform).
type UnsupportedNodeTypeError struct {
	Category graph.Category
}

func (e *UnsupportedNodeTypeError) Error() string {
	return fmt.Sprintf("unsupported node type: %s", e.Category)
}

// ConfigurationError is returned when the node graph itself is
// malformed in a way that should have been caught at validation time —
// the canonical example is a Trigger node reaching execution.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return e.Reason }

// NodeExecutor executes one node category. Implementations live in
// this package's sub-packages (ai, integration, transform, controlflow,
// memory, output) and are wired together by Dispatcher. workflowID is
// the owning workflow of the run driving this execution — ambient
// context a node never declares as a port, but that Memory nodes need
// to address their store.
type NodeExecutor interface {
	Execute(ctx context.Context, workflowID id.WorkflowID, node graph.Node, inputs Inputs) (Output, error)
}

// Dispatcher routes a node to the NodeExecutor registered for its
// Category.
type Dispatcher struct {
	aiLayer     NodeExecutor
	integration NodeExecutor
	transform   NodeExecutor
	controlFlow NodeExecutor
	memory      NodeExecutor
	output      NodeExecutor
}

// Executors groups one NodeExecutor per category for NewDispatcher. A
// nil field means that category has no executor wired in; dispatching
// to it returns ConfigurationError.
type Executors struct {
	AiLayer     NodeExecutor
	Integration NodeExecutor
	Transform   NodeExecutor
	ControlFlow NodeExecutor
	Memory      NodeExecutor
	Output      NodeExecutor
}

// NewDispatcher builds a Dispatcher from one executor per category.
func NewDispatcher(e Executors) *Dispatcher {
	return &Dispatcher{
		aiLayer:     e.AiLayer,
		integration: e.Integration,
		transform:   e.Transform,
		controlFlow: e.ControlFlow,
		memory:      e.Memory,
		output:      e.Output,
	}
}

// Execute dispatches node to the executor registered for its category.
// A Trigger node reaching here is a configuration bug, not a runtime
// failure mode the caller should retry.
func (d *Dispatcher) Execute(ctx context.Context, workflowID id.WorkflowID, node graph.Node, inputs Inputs) (Output, error) {
	var (
		executor NodeExecutor
	)
	switch node.Config.Category {
	case graph.CategoryTrigger:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("trigger node %s dispatched as a work item", node.ID)}
	case graph.CategoryAiLayer:
		executor = d.aiLayer
	case graph.CategoryIntegration:
		executor = d.integration
	case graph.CategoryTransform:
		executor = d.transform
	case graph.CategoryControlFlow:
		executor = d.controlFlow
	case graph.CategoryMemory:
		executor = d.memory
	case graph.CategoryOutput:
		executor = d.output
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("node %s has unknown category %q", node.ID, node.Config.Category)}
	}

	if executor == nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("no executor registered for category %q", node.Config.Category)}
	}
	return executor.Execute(ctx, workflowID, node, inputs)
}
