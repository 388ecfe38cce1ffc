// Package controlflow executes the structural routing node kinds:
// Branch, FanOut, FanIn, Parallel, Join.
package controlflow

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
)

// Executor dispatches ControlFlow nodes by their Kind. It caches
// compiled CEL programs across calls since the same Branch node is
// re-evaluated on every run.
type Executor struct {
	programs map[string]cel.Program
}

// New builds a controlflow Executor.
func New() *Executor {
	return &Executor{programs: make(map[string]cel.Program)}
}

// Execute implements executor.NodeExecutor.
func (e *Executor) Execute(ctx context.Context, _ id.WorkflowID, node graph.Node, inputs executor.Inputs) (executor.Output, error) {
	cfg := node.Config.ControlFlow
	if cfg == nil {
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("control_flow node %s has no ControlFlow config", node.ID)}
	}

	switch cfg.Kind {
	case graph.ControlFlowKindBranch:
		return e.executeBranch(cfg, inputs)
	case graph.ControlFlowKindFanOut:
		return e.executeFanOut(node, cfg, inputs)
	case graph.ControlFlowKindFanIn:
		return e.executeFanIn(inputs)
	case graph.ControlFlowKindParallel, graph.ControlFlowKindJoin:
		return map[string]interface{}(inputs), nil
	default:
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("node %s has unknown control_flow kind %q", node.ID, cfg.Kind)}
	}
}

// executeBranch evaluates each condition in order and returns the
// first matching output port's name; a workflow with no matching
// condition produces no route (the orchestrator then records a
// node_skipped for every downstream node left unreachable by the ports
// not taken — routing itself is a graph concern, not this executor's).
func (e *Executor) executeBranch(cfg *graph.ControlFlowConfig, inputs executor.Inputs) (executor.Output, error) {
	for _, cond := range cfg.Conditions {
		prg, err := e.compile(cond.Expression)
		if err != nil {
			return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("compile branch condition %q: %v", cond.Expression, err)}
		}

		out, _, err := prg.Eval(map[string]interface{}{"inputs": map[string]interface{}(inputs)})
		if err != nil {
			return nil, &executor.ExecutionFailedError{Reason: fmt.Sprintf("evaluate branch condition %q: %v", cond.Expression, err)}
		}

		matched, ok := out.Value().(bool)
		if !ok {
			return nil, &executor.ExecutionFailedError{Reason: fmt.Sprintf("branch condition %q did not evaluate to a boolean", cond.Expression)}
		}
		if matched {
			return map[string]interface{}{"output_port": cond.OutputPort}, nil
		}
	}
	return map[string]interface{}{"output_port": ""}, nil
}

func (e *Executor) compile(expr string) (cel.Program, error) {
	if prg, ok := e.programs[expr]; ok {
		return prg, nil
	}

	env, err := cel.NewEnv(cel.Variable("inputs", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile CEL expression: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build CEL program: %w", err)
	}

	e.programs[expr] = prg
	return prg, nil
}

// executeFanOut hands back the array it was asked to explode unchanged.
// Exploding the array into one subgraph execution per element is the
// orchestrator's job (it spawns the synthetic remaining-work subgraph
// between this node and its FanIn counterpart) — this executor's role
// is limited to validating the configured port actually holds an array.
func (e *Executor) executeFanOut(node graph.Node, cfg *graph.ControlFlowConfig, inputs executor.Inputs) (executor.Output, error) {
	value, ok := inputs[cfg.FanOutArrayPort]
	if !ok {
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("fan_out node %s has no input bound to port %q", node.ID, cfg.FanOutArrayPort)}
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil, &executor.ExecutionFailedError{Reason: fmt.Sprintf("fan_out node %s port %q is not an array", node.ID, cfg.FanOutArrayPort)}
	}
	return items, nil
}

// executeFanIn aggregates whatever its single "item" input carries — in
// practice an array, not one element, since the orchestrator assembles
// it from every spawned fan-out copy's terminal output in element order
// before dispatching the FanIn node, via WorkItem.InputLists rather
// than a single edge binding.
func (e *Executor) executeFanIn(inputs executor.Inputs) (executor.Output, error) {
	items, ok := inputs["item"]
	if !ok {
		return []interface{}{}, nil
	}
	return items, nil
}
