package bolna

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(Config{BearerToken: "tok"})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "https://api.bolna.ai"})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "https://api.bolna.ai/", BearerToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.bolna.ai", c.baseURL)
}

func TestListAgents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent/all", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "ag-1", "agent_name": "support", "agent_status": "active"},
			{"id": "ag-2", "agent_name": "sales", "agent_status": "paused"},
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, BearerToken: "secret"})
	require.NoError(t, err)

	agents, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "ag-1", agents[0].ID)
	assert.Equal(t, "sales", agents[1].AgentName)
}

func TestGetAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/agent/ag-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "ag-1", "agent_name": "support", "agent_status": "active",
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, BearerToken: "secret"})
	require.NoError(t, err)

	detail, err := c.GetAgent(context.Background(), "ag-1")
	require.NoError(t, err)
	assert.Equal(t, "support", detail.AgentName)
}

func TestGetAgentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"agent not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, BearerToken: "secret"})
	require.NoError(t, err)

	_, err = c.GetAgent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListExecutions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/agent/ag-1/executions", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page_number"))
		assert.Equal(t, "50", r.URL.Query().Get("page_size"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "ex-51", "status": "completed"},
				{"id": "ex-52", "status": "failed"},
			},
			"page_number": 2,
			"total":       120,
			"has_more":    true,
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, BearerToken: "secret"})
	require.NoError(t, err)

	page, err := c.ListExecutions(context.Background(), "ag-1", 2, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, page.PageNumber)
	assert.Equal(t, 120, page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "ex-51", page.Data[0]["id"])
}

func TestGetExecution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agent/ag-1/execution/ex-9", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "ex-9",
			"status":     "completed",
			"total_cost": 250,
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, BearerToken: "secret"})
	require.NoError(t, err)

	raw, err := c.GetExecution(context.Background(), "ag-1", "ex-9")
	require.NoError(t, err)
	assert.Equal(t, "completed", raw["status"])
	assert.Equal(t, float64(250), raw["total_cost"])
}

func TestServerErrorIncludesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, BearerToken: "secret"})
	require.NoError(t, err)

	_, err = c.ListAgents(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
	assert.NotErrorIs(t, err, ErrNotFound)
}
