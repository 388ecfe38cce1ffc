// Package output executes Output nodes: side-effecting terminal steps
// that notify, log, or respond to an originating HTTP call.
package output

import (
	"context"
	"fmt"

	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
)

// Logger is the structured-logging surface the "log" output kind
// writes through, satisfied by *common/logger.Logger.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
}

// Notifier is the injected sink for the "notify" output kind (opaque —
// no concrete channel ships with the engine).
type Notifier interface {
	Notify(ctx context.Context, payload map[string]interface{}) error
}

// Responder is the injected sink for the "http_response" output kind:
// it completes the HTTP call that originated the run, if any.
type Responder interface {
	Respond(ctx context.Context, runID string, payload map[string]interface{}) error
}

// Executor dispatches Output nodes by their Kind.
type Executor struct {
	logger    Logger
	notifier  Notifier
	responder Responder
}

// New builds an output Executor. Any of notifier/responder may be nil
// if that output kind is never used by the wired workflows; dispatching
// to a nil sink returns ConfigurationError.
func New(logger Logger, notifier Notifier, responder Responder) *Executor {
	return &Executor{logger: logger, notifier: notifier, responder: responder}
}

// Execute implements executor.NodeExecutor.
func (e *Executor) Execute(ctx context.Context, _ id.WorkflowID, node graph.Node, inputs executor.Inputs) (executor.Output, error) {
	cfg := node.Config.Output
	if cfg == nil {
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("output node %s has no Output config", node.ID)}
	}

	payload := map[string]interface{}(inputs)

	switch cfg.Kind {
	case graph.OutputKindLog:
		e.logger.Info("output node log", "node_id", node.ID, "payload", payload)
		return map[string]interface{}{"acknowledged": true}, nil

	case graph.OutputKindNotify:
		if e.notifier == nil {
			return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("output node %s is kind notify but no Notifier is wired", node.ID)}
		}
		if err := e.notifier.Notify(ctx, payload); err != nil {
			return nil, &executor.ExternalServiceError{Service: "notify", Err: err}
		}
		return map[string]interface{}{"acknowledged": true}, nil

	case graph.OutputKindHTTPResponse:
		if e.responder == nil {
			return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("output node %s is kind http_response but no Responder is wired", node.ID)}
		}
		runID, _ := payload["run_id"].(string)
		if err := e.responder.Respond(ctx, runID, payload); err != nil {
			return nil, &executor.ExternalServiceError{Service: "http_response", Err: err}
		}
		return map[string]interface{}{"acknowledged": true}, nil

	default:
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("node %s has unknown output kind %q", node.ID, cfg.Kind)}
	}
}
