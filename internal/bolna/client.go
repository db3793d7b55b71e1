// Package bolna is a typed read-only client for the Bolna voice-agent API.
//
// The client is a pure I/O boundary: it issues authenticated requests and
// returns the upstream payload unmodified. Execution records come back as
// open maps because Bolna's execution schema varies across API versions;
// narrowing happens in the sync normalizer, field by field, never here.
// No retries and no caching; retry policy belongs to the caller.
package bolna

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when Bolna reports 404 for a requested resource.
var ErrNotFound = errors.New("bolna: not found")

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Bolna API (e.g. "https://api.bolna.ai").
	BaseURL string

	// BearerToken authenticates every request.
	BearerToken string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client
}

// Client is an HTTP client for the Bolna API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL     string
	bearerToken string
	client      *http.Client
}

// New creates a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("bolna: BaseURL is required")
	}
	if cfg.BearerToken == "" {
		return nil, fmt.Errorf("bolna: BearerToken is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		bearerToken: cfg.BearerToken,
		client:      httpClient,
	}, nil
}

// AgentSummary is one entry from GET /agent/all. Bolna returns more fields
// than these; unknown ones are dropped here because agent listing is only
// used for verification, never persisted.
type AgentSummary struct {
	ID          string `json:"id"`
	AgentName   string `json:"agent_name"`
	AgentStatus string `json:"agent_status"`
}

// AgentDetail is the response from GET /v2/agent/{id}.
type AgentDetail struct {
	ID          string `json:"id"`
	AgentName   string `json:"agent_name"`
	AgentStatus string `json:"agent_status"`
	CreatedAt   string `json:"created_at"`
}

// ExecutionPage is one page from GET /v2/agent/{id}/executions.
// Data entries are raw, unnormalized execution records.
type ExecutionPage struct {
	Data       []map[string]any `json:"data"`
	PageNumber int              `json:"page_number"`
	Total      int              `json:"total"`
	HasMore    bool             `json:"has_more"`
}

// ListAgents returns all agents visible to the bearer token.
func (c *Client) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	var agents []AgentSummary
	if err := c.get(ctx, "/agent/all", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// GetAgent returns the detail record for a single agent.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*AgentDetail, error) {
	var detail AgentDetail
	if err := c.get(ctx, "/v2/agent/"+url.PathEscape(agentID), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListExecutions returns one page of execution records for an agent.
// Pages are 1-based; the caller drives pagination via HasMore.
func (c *Client) ListExecutions(ctx context.Context, agentID string, pageNumber, pageSize int) (*ExecutionPage, error) {
	params := url.Values{}
	params.Set("page_number", strconv.Itoa(pageNumber))
	params.Set("page_size", strconv.Itoa(pageSize))

	var page ExecutionPage
	if err := c.get(ctx, "/v2/agent/"+url.PathEscape(agentID)+"/executions", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetExecution returns the full raw detail record for a single execution.
func (c *Client) GetExecution(ctx context.Context, agentID, executionID string) (map[string]any, error) {
	var detail map[string]any
	path := "/agent/" + url.PathEscape(agentID) + "/execution/" + url.PathEscape(executionID)
	if err := c.get(ctx, path, nil, &detail); err != nil {
		return nil, err
	}
	return detail, nil
}

// get issues an authenticated GET and decodes the JSON response into target.
func (c *Client) get(ctx context.Context, path string, params url.Values, target any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("bolna: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bolna: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("bolna: %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bolna: %s: status %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("bolna: decode %s response: %w", path, err)
	}
	return nil
}
