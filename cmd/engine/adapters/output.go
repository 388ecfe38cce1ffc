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
)

// WebhookNotifier implements output.Notifier by POSTing the node's
// payload to a single configured webhook URL. A deployment that routes
// notifications to more than one destination wraps or replaces this
// with its own Notifier; output.Executor only needs the interface.
type WebhookNotifier struct {
	http *clients.HTTPClient
	url  string
}

// NewWebhookNotifier builds a Notifier posting to url.
func NewWebhookNotifier(url string, logger clients.Logger) *WebhookNotifier {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &WebhookNotifier{http: clients.NewHTTPClient(httpClient, logger), url: url}
}

// Notify implements output.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}
	resp, err := n.http.DoRequest(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notify webhook returned status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// HTTPResponder implements output.Responder by POSTing the run's
// payload to baseURL/<run_id> — the shape a caller waiting on a
// webhook-style callback for its triggered run expects. The
// http_response output kind doesn't mandate a transport, so this is
// the one concrete choice cmd/engine makes; a deployment fronting runs
// with long-polling or SSE swaps this for its own Responder.
type HTTPResponder struct {
	http    *clients.HTTPClient
	baseURL string
}

// NewHTTPResponder builds a Responder posting to baseURL/<run_id>.
func NewHTTPResponder(baseURL string, logger clients.Logger) *HTTPResponder {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &HTTPResponder{http: clients.NewHTTPClient(httpClient, logger), baseURL: baseURL}
}

// Respond implements output.Responder.
func (r *HTTPResponder) Respond(ctx context.Context, runID string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal response payload: %w", err)
	}
	url := fmt.Sprintf("%s/%s", r.baseURL, runID)
	resp, err := r.http.DoRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post run response: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("response callback returned status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
