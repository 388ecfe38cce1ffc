// Package integration executes Integration nodes: resolve the
// configured account's credentials and call the named connector
// operation with inputs merged into the node's static parameters.
package integration

import (
	"context"
	"fmt"

	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"golang.org/x/time/rate"
)

// Account is an opaque credential bundle; the engine never inspects its
// contents, only passes it to the matching Connector.
type Account struct {
	ID          id.IntegrationAccountID
	Credentials map[string]string
}

// AccountResolver looks up the account a node's integration_type/operation
// call should run as. Credential storage and rotation are opaque to the
// engine.
type AccountResolver interface {
	Resolve(ctx context.Context, integrationType string) (Account, error)
}

// Connector performs one integration operation. Implementations are
// registered per integration_type string; none ship with the engine
// itself beyond test fakes.
type Connector interface {
	Call(ctx context.Context, account Account, operation string, params map[string]interface{}) (interface{}, error)
}

// Executor dispatches Integration nodes to the Connector registered for
// their integration_type.
type Executor struct {
	accounts   AccountResolver
	connectors map[string]Connector
	limiter    *rate.Limiter
}

// New builds an Executor. connectors maps integration_type to the
// Connector that serves it.
func New(accounts AccountResolver, connectors map[string]Connector) *Executor {
	return &Executor{accounts: accounts, connectors: connectors}
}

// NewRateLimited builds an Executor that throttles every connector call
// to at most limit requests/second across all integration types, with
// bursts up to burst. Third-party APIs rarely carve out a separate
// quota per integration_type on our end, so one shared limiter models
// the outbound egress budget more honestly than per-type ones would.
func NewRateLimited(accounts AccountResolver, connectors map[string]Connector, limit rate.Limit, burst int) *Executor {
	return &Executor{accounts: accounts, connectors: connectors, limiter: rate.NewLimiter(limit, burst)}
}

// Execute implements executor.NodeExecutor.
func (e *Executor) Execute(ctx context.Context, _ id.WorkflowID, node graph.Node, inputs executor.Inputs) (executor.Output, error) {
	cfg := node.Config.Integration
	if cfg == nil {
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("integration node %s has no Integration config", node.ID)}
	}

	connector, ok := e.connectors[cfg.IntegrationType]
	if !ok {
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("no connector registered for integration type %q", cfg.IntegrationType)}
	}

	account, err := e.accounts.Resolve(ctx, cfg.IntegrationType)
	if err != nil {
		return nil, &executor.ExternalServiceError{Service: cfg.IntegrationType, Err: err}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &executor.ExternalServiceError{Service: cfg.IntegrationType, Err: err}
		}
	}

	params := mergeParams(cfg.Parameters, inputs)
	out, err := connector.Call(ctx, account, cfg.Operation, params)
	if err != nil {
		return nil, &executor.ExternalServiceError{Service: cfg.IntegrationType, Err: err}
	}
	return out, nil
}

// mergeParams layers resolved inputs over the node's static parameters,
// so a workflow author can hardcode some fields while wiring others
// from upstream nodes.
func mergeParams(static map[string]interface{}, inputs executor.Inputs) map[string]interface{} {
	merged := make(map[string]interface{}, len(static)+len(inputs))
	for k, v := range static {
		merged[k] = v
	}
	for k, v := range inputs {
		merged[k] = v
	}
	return merged
}
