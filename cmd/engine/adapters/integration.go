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
	"github.com/lyzr/workflowengine/internal/executor/integration"
)

// HTTPConnector serves every registered integration_type from one base
// URL, POSTing to baseURL/<operation> with the resolved account and
// merged call parameters. A deployment that needs per-type routing
// registers one HTTPConnector per base URL in the connectors map
// internal/executor/integration.New takes — this type itself stays
// generic.
type HTTPConnector struct {
	http    *clients.HTTPClient
	baseURL string
}

// NewHTTPConnector builds a Connector that calls operations at baseURL.
func NewHTTPConnector(baseURL string, logger clients.Logger) *HTTPConnector {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &HTTPConnector{http: clients.NewHTTPClient(httpClient, logger), baseURL: baseURL}
}

type connectorCallRequest struct {
	AccountID   string                 `json:"account_id"`
	Credentials map[string]string      `json:"credentials"`
	Operation   string                 `json:"operation"`
	Params      map[string]interface{} `json:"params"`
}

// Call implements integration.Connector.
func (c *HTTPConnector) Call(ctx context.Context, account integration.Account, operation string, params map[string]interface{}) (interface{}, error) {
	body, err := json.Marshal(connectorCallRequest{
		AccountID:   string(account.ID),
		Credentials: account.Credentials,
		Operation:   operation,
		Params:      params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal connector call: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, operation)
	resp, err := c.http.DoRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read connector response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("connector operation %q returned status %d: %s", operation, resp.StatusCode, respBody)
	}

	var out interface{}
	if len(respBody) == 0 {
		return map[string]interface{}{"acknowledged": true}, nil
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode connector response: %w", err)
	}
	return out, nil
}

// StaticAccountResolver resolves integration accounts from a
// fixed table loaded once at startup. Credential rotation and
// per-tenant account selection are explicitly out of scope for the
// engine (internal/executor/integration's own doc comment); a
// deployment that needs either swaps this resolver for one backed by
// its own secrets store without touching the executor.
type StaticAccountResolver struct {
	accounts map[string]integration.Account
}

// NewStaticAccountResolver builds a resolver from integration_type ->
// Account.
func NewStaticAccountResolver(accounts map[string]integration.Account) *StaticAccountResolver {
	return &StaticAccountResolver{accounts: accounts}
}

// ErrNoAccount is returned when no account is configured for the
// requested integration type.
type ErrNoAccount struct {
	IntegrationType string
}

func (e *ErrNoAccount) Error() string {
	return fmt.Sprintf("no account configured for integration type %q", e.IntegrationType)
}

// Resolve implements integration.AccountResolver.
func (r *StaticAccountResolver) Resolve(_ context.Context, integrationType string) (integration.Account, error) {
	account, ok := r.accounts[integrationType]
	if !ok {
		return integration.Account{}, &ErrNoAccount{IntegrationType: integrationType}
	}
	return account, nil
}
