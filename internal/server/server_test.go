package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callscope/callscope/internal/auth"
	"github.com/callscope/callscope/internal/bolna"
	"github.com/callscope/callscope/internal/model"
	"github.com/callscope/callscope/internal/server"
	syncsvc "github.com/callscope/callscope/internal/service/sync"
	"github.com/callscope/callscope/internal/storage"
	"github.com/callscope/callscope/internal/testutil"
)

var (
	testDB      *storage.DB
	testHandler http.Handler
)

// fakeBolna serves a fixed execution history for any known agent and
// verifies agent existence for registration.
type fakeBolna struct {
	knownAgents map[string]bool
	executions  map[string][]map[string]any
	listErr     map[string]error
}

func (f *fakeBolna) GetAgent(_ context.Context, agentID string) (*bolna.AgentDetail, error) {
	if !f.knownAgents[agentID] {
		return nil, fmt.Errorf("bolna: /v2/agent/%s: %w", agentID, bolna.ErrNotFound)
	}
	return &bolna.AgentDetail{ID: agentID, AgentName: "fake", AgentStatus: "active"}, nil
}

func (f *fakeBolna) ListExecutions(_ context.Context, agentID string, pageNumber, pageSize int) (*bolna.ExecutionPage, error) {
	if err := f.listErr[agentID]; err != nil {
		return nil, err
	}
	all := f.executions[agentID]
	start := (pageNumber - 1) * pageSize
	if start >= len(all) {
		return &bolna.ExecutionPage{PageNumber: pageNumber, Total: len(all)}, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return &bolna.ExecutionPage{
		Data:       all[start:end],
		PageNumber: pageNumber,
		Total:      len(all),
		HasMore:    end < len(all),
	}, nil
}

func (f *fakeBolna) GetExecution(_ context.Context, agentID, executionID string) (map[string]any, error) {
	for _, raw := range f.executions[agentID] {
		if raw["id"] == executionID {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("bolna: execution %s: %w", executionID, bolna.ErrNotFound)
}

var fake = &fakeBolna{
	knownAgents: map[string]bool{"bolna-real-agent": true, "bolna-solo-agent": true},
	executions: map[string][]map[string]any{
		"bolna-real-agent": {
			{"id": "bex-1", "status": "completed", "conversation_duration": float64(60), "total_cost": float64(100),
				"created_at": "2025-08-01T09:00:00Z", "updated_at": "2025-08-01T09:01:00Z"},
			{"id": "bex-2", "status": "completed", "conversation_duration": float64(30), "total_cost": float64(50)},
			{"id": "bex-3", "status": "failed"},
		},
	},
}

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	ctx := context.Background()
	logger := testutil.TestLogger()

	var err error
	testDB, err = tc.NewTestDB(ctx, logger)
	if err != nil {
		tc.Terminate()
		panic(err)
	}

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	if err != nil {
		tc.Terminate()
		panic(err)
	}

	// Small page size so the three-record history spans two pages.
	syncService := syncsvc.NewService(fake, testDB, 2, logger)

	srv := server.New(server.ServerConfig{
		DB:                  testDB,
		JWTMgr:              jwtMgr,
		SyncSvc:             syncService,
		Verifier:            fake,
		Logger:              logger,
		Port:                0,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})
	testHandler = srv.Handler()

	code := m.Run()
	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	testHandler.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Data
}

func registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	rec := doJSON(t, http.MethodPost, "/auth/register", "", model.RegisterRequest{
		Name:     "Dashboard User",
		Email:    email,
		Password: "Sufficiently1Strong",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[model.AuthResponse](t, rec).Token
}

func TestHealthOpen(t *testing.T) {
	rec := doJSON(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	health := decodeData[model.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Postgres)
}

func TestAuthFlow(t *testing.T) {
	token := registerAndLogin(t, "flow@example.com")

	// Duplicate registration conflicts.
	rec := doJSON(t, http.MethodPost, "/auth/register", "", model.RegisterRequest{
		Name: "Again", Email: "flow@example.com", Password: "Sufficiently1Strong",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Login with correct credentials.
	rec = doJSON(t, http.MethodPost, "/auth/login", "", model.LoginRequest{
		Email: "flow@example.com", Password: "Sufficiently1Strong",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Login with wrong password.
	rec = doJSON(t, http.MethodPost, "/auth/login", "", model.LoginRequest{
		Email: "flow@example.com", Password: "WrongPassword123",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// /auth/me returns the profile without the password hash.
	rec = doJSON(t, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	me := decodeData[model.Client](t, rec)
	assert.Equal(t, "flow@example.com", me.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	// Unauthenticated access is rejected.
	rec = doJSON(t, http.MethodGet, "/v1/agents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAgentAndSyncFlow(t *testing.T) {
	token := registerAndLogin(t, "sync-flow@example.com")

	// Register an agent that exists upstream.
	rec := doJSON(t, http.MethodPost, "/v1/agents", token, model.CreateAgentRequest{
		BolnaAgentID: "bolna-real-agent",
		Name:         "Support Line",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[model.CreateAgentResponse](t, rec)
	assert.Equal(t, "verified", created.ProviderStatus)

	// An unknown upstream ID still registers, flagged not_found.
	rec = doJSON(t, http.MethodPost, "/v1/agents", token, model.CreateAgentRequest{
		BolnaAgentID: "bolna-ghost-agent",
		Name:         "Ghost",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	ghost := decodeData[model.CreateAgentResponse](t, rec)
	assert.Equal(t, "not_found", ghost.ProviderStatus)

	// Re-registering your own agent conflicts with the ownership message.
	rec = doJSON(t, http.MethodPost, "/v1/agents", token, model.CreateAgentRequest{
		BolnaAgentID: "bolna-real-agent",
		Name:         "Duplicate",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already added this agent")

	// Someone else registering the same ID gets the other message.
	otherToken := registerAndLogin(t, "sync-flow-other@example.com")
	rec = doJSON(t, http.MethodPost, "/v1/agents", otherToken, model.CreateAgentRequest{
		BolnaAgentID: "bolna-real-agent",
		Name:         "Poacher",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "registered by another user")

	// Sync the agent; three records paged two at a time.
	rec = doJSON(t, http.MethodPost, "/v1/agents/"+created.Agent.ID.String()+"/sync", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	synced := decodeData[model.SyncResponse](t, rec)
	assert.Equal(t, 3, synced.Synced)

	// Re-sync is idempotent: same count, no duplicate rows.
	rec = doJSON(t, http.MethodPost, "/v1/sync", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	synced = decodeData[model.SyncResponse](t, rec)
	assert.Equal(t, 3, synced.Synced)

	// Listing shows normalized records.
	rec = doJSON(t, http.MethodGet, "/v1/executions?agent_id="+created.Agent.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Data  []model.Execution `json:"data"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, 3, listResp.Count)

	var first model.Execution
	for _, e := range listResp.Data {
		if e.BolnaExecutionID == "bex-1" {
			first = e
		}
	}
	assert.Equal(t, 60.0, first.ConversationTime)
	assert.Equal(t, 1.0, first.TotalCost)
	require.NotNil(t, first.StartedAt)

	// Stats aggregate across the synced history.
	rec = doJSON(t, http.MethodGet, "/v1/executions/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeData[storage.ExecutionStats](t, rec)
	assert.Equal(t, 3, stats.TotalExecutions)
	assert.Equal(t, 2, stats.ByStatus["completed"])
	assert.Equal(t, 1, stats.ByStatus["failed"])

	// Detail fetch and on-demand refresh.
	rec = doJSON(t, http.MethodGet, "/v1/executions/"+first.ID.String(), token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, http.MethodPost, "/v1/executions/"+first.ID.String()+"/refresh", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refreshed := decodeData[model.Execution](t, rec)
	assert.Equal(t, first.ID, refreshed.ID)

	// The other client sees none of this data.
	rec = doJSON(t, http.MethodGet, "/v1/executions", otherToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Zero(t, listResp.Count)
}

func TestManualSyncSurfacesUpstreamError(t *testing.T) {
	token := registerAndLogin(t, "broken@example.com")

	fake.knownAgents["bolna-broken-agent"] = true
	fake.listErr = map[string]error{
		"bolna-broken-agent": fmt.Errorf("status 503: upstream maintenance"),
	}
	t.Cleanup(func() { fake.listErr = nil })

	rec := doJSON(t, http.MethodPost, "/v1/agents", token, model.CreateAgentRequest{
		BolnaAgentID: "bolna-broken-agent",
		Name:         "Broken",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	agent := decodeData[model.CreateAgentResponse](t, rec).Agent

	// The per-agent trigger returns the caught error message, not a
	// sanitized placeholder.
	rec = doJSON(t, http.MethodPost, "/v1/agents/"+agent.ID.String()+"/sync", token, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream maintenance")

	// The registry-wide trigger isolates the broken agent and reports
	// only completed agents' records: three from bolna-real-agent, the
	// broken agent's count discarded.
	rec = doJSON(t, http.MethodPost, "/v1/sync", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	synced := decodeData[model.SyncResponse](t, rec)
	assert.Equal(t, 3, synced.Synced)
}

func TestAgentCRUD(t *testing.T) {
	token := registerAndLogin(t, "crud@example.com")

	rec := doJSON(t, http.MethodPost, "/v1/agents", token, model.CreateAgentRequest{
		BolnaAgentID: "bolna-solo-agent",
		Name:         "Solo",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	agent := decodeData[model.CreateAgentResponse](t, rec).Agent

	// Update name only.
	newName := "Renamed Solo"
	rec = doJSON(t, http.MethodPut, "/v1/agents/"+agent.ID.String(), token, model.UpdateAgentRequest{
		Name: &newName,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeData[model.Agent](t, rec)
	assert.Equal(t, "Renamed Solo", updated.Name)

	// Delete, then confirm gone.
	rec = doJSON(t, http.MethodDelete, "/v1/agents/"+agent.ID.String(), token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, http.MethodGet, "/v1/agents/"+agent.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationErrors(t *testing.T) {
	token := registerAndLogin(t, "validation@example.com")

	// Weak password.
	rec := doJSON(t, http.MethodPost, "/auth/register", "", model.RegisterRequest{
		Name: "Weak", Email: "weak@example.com", Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Bad agent ID characters.
	rec = doJSON(t, http.MethodPost, "/v1/agents", token, model.CreateAgentRequest{
		BolnaAgentID: "not ok!",
		Name:         "Bad",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed filter parameters.
	rec = doJSON(t, http.MethodGet, "/v1/executions?agent_id=not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, http.MethodGet, "/v1/executions?from=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
