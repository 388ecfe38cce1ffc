// Package adapters supplies the concrete, HTTP-based implementations
// cmd/engine wires into internal/executor's opaque backend interfaces
// (ai.Backend, integration.AccountResolver/Connector,
// output.Notifier/Responder). None of those interfaces ship a
// production implementation in internal/executor itself — their doc
// comments say as much — so this package is that implementation for
// the one binary that actually runs workflows end to end, grounded on
// common/clients.HTTPClient's context-aware net/http wrapper rather
// than a new HTTP dependency.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lyzr/workflowengine/common/clients"
	"github.com/lyzr/workflowengine/internal/executor/ai"
)

// HTTPAIBackend calls a single configured completion endpoint for
// every AiLayer node, regardless of the node's declared Model — the
// endpoint is expected to route by the model field in the request body
// itself. This mirrors how the rest of the engine treats model
// providers as opaque: one wire shape, provider-specific routing left
// to whatever sits behind the URL.
type HTTPAIBackend struct {
	http     *clients.HTTPClient
	endpoint string
}

// NewHTTPAIBackend builds a Backend that POSTs to endpoint.
func NewHTTPAIBackend(endpoint string, logger clients.Logger) *HTTPAIBackend {
	httpClient := &http.Client{Timeout: 60 * time.Second}
	return &HTTPAIBackend{http: clients.NewHTTPClient(httpClient, logger), endpoint: endpoint}
}

type completionRequest struct {
	SystemPrompt string          `json:"system_prompt,omitempty"`
	Prompt       string          `json:"prompt"`
	Model        string          `json:"model,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

type completionResponse struct {
	Content json.RawMessage `json:"content"`
}

// Complete implements ai.Backend.
func (b *HTTPAIBackend) Complete(ctx context.Context, req ai.Request) (ai.Response, error) {
	body, err := json.Marshal(completionRequest{
		SystemPrompt: req.SystemPrompt,
		Prompt:       req.Prompt,
		Model:        req.Model,
		OutputSchema: req.OutputSchema,
	})
	if err != nil {
		return ai.Response{}, fmt.Errorf("marshal completion request: %w", err)
	}

	resp, err := b.http.DoRequest(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return ai.Response{}, fmt.Errorf("call completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ai.Response{}, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ai.Response{}, fmt.Errorf("completion endpoint returned status %d: %s", resp.StatusCode, respBody)
	}

	var out completionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		// The endpoint returned a bare value rather than the
		// {"content": ...} envelope; treat the whole body as content.
		return ai.Response{Content: respBody}, nil
	}
	return ai.Response{Content: out.Content}, nil
}
