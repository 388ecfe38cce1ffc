// Package ai executes AiLayer nodes: render a prompt from the node's
// template and resolved inputs, call an injected LLM backend, and, for a
// node that declares an output schema, check that the response is
// well-formed JSON. The response is not checked against the schema's
// structure.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/lyzr/workflowengine/internal/executor"
	"github.com/lyzr/workflowengine/internal/graph"
	"github.com/lyzr/workflowengine/internal/id"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// Request is the rendered, backend-agnostic LLM call.
type Request struct {
	SystemPrompt string
	Prompt       string
	Model        string
	// OutputSchema, when non-nil, asks the backend to constrain its
	// response to this JSON schema document.
	OutputSchema []byte
}

// Response is what a Backend returns for one Request.
type Response struct {
	// Content is the raw text or JSON document the model produced.
	Content json.RawMessage
}

// Backend is the injected LLM client. Concrete wire protocols (OpenAI,
// Anthropic, ...) are out of scope; production wiring supplies a real
// implementation, tests use FakeBackend.
type Backend interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Executor renders AiLayer node prompts and dispatches them to a Backend.
type Executor struct {
	backend Backend
	limiter *rate.Limiter
}

// New builds an Executor backed by backend, with no outbound call rate
// limiting.
func New(backend Backend) *Executor {
	return &Executor{backend: backend}
}

// NewRateLimited builds an Executor that throttles calls to backend to
// at most limit requests/second, with bursts up to burst — every live
// model provider enforces its own quota, and a fan-out-heavy workflow
// can otherwise blow through it in a single scheduling tick.
func NewRateLimited(backend Backend, limit rate.Limit, burst int) *Executor {
	return &Executor{backend: backend, limiter: rate.NewLimiter(limit, burst)}
}

// Execute implements executor.NodeExecutor.
func (e *Executor) Execute(ctx context.Context, _ id.WorkflowID, node graph.Node, inputs executor.Inputs) (executor.Output, error) {
	cfg := node.Config.AiLayer
	if cfg == nil {
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("ai_layer node %s has no AiLayer config", node.ID)}
	}

	prompt, err := renderTemplate(cfg.PromptTemplate, inputs)
	if err != nil {
		return nil, &executor.ConfigurationError{Reason: fmt.Sprintf("render prompt template for %s: %v", node.ID, err)}
	}

	req := Request{
		SystemPrompt: cfg.SystemPrompt,
		Prompt:       prompt,
		Model:        cfg.Model,
	}
	if cfg.OutputSchema != nil {
		req.OutputSchema = cfg.OutputSchema.Document
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &executor.ExternalServiceError{Service: "llm", Err: err}
		}
	}

	resp, err := e.backend.Complete(ctx, req)
	if err != nil {
		return nil, &executor.ExternalServiceError{Service: "llm", Err: err}
	}

	if cfg.OutputSchema != nil {
		if !gjson.ValidBytes(resp.Content) {
			return nil, &executor.ExternalServiceError{Service: "llm", Err: fmt.Errorf("response is not valid JSON for schema-constrained node %s", node.ID)}
		}
	}

	var out interface{}
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		// Not every AiLayer kind demands JSON back (e.g. plain
		// summarize/generate); fall back to the raw text.
		return string(resp.Content), nil
	}
	return out, nil
}

// renderTemplate renders tmpl as a Go text/template against inputs,
// so node authors reference resolved ports as {{.port_name}}. The
// worker (internal/worker) decodes each port's whole stored value
// before dispatch, so every port here is already the plain decoded
// value; no field-path extraction is applied at either layer.
func renderTemplate(tmpl string, inputs executor.Inputs) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]interface{}(inputs)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
