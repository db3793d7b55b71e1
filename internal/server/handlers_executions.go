package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/callscope/callscope/internal/bolna"
	"github.com/callscope/callscope/internal/ctxutil"
	"github.com/callscope/callscope/internal/model"
	"github.com/callscope/callscope/internal/storage"
)

// parseExecutionFilters reads the shared query parameters for execution
// list and stats endpoints: agent_id, status, from, to, limit, offset.
// Timestamps are RFC 3339.
func parseExecutionFilters(r *http.Request) (storage.ExecutionFilters, error) {
	var f storage.ExecutionFilters
	q := r.URL.Query()

	if v := q.Get("agent_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, errors.New("invalid agent_id")
		}
		f.AgentID = id
	}
	f.Status = q.Get("status")

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid from timestamp, want RFC 3339")
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("invalid to timestamp, want RFC 3339")
		}
		f.To = &t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("invalid limit")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("invalid offset")
		}
		f.Offset = n
	}
	return f, nil
}

// HandleListExecutions handles GET /v1/executions.
func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	f, err := parseExecutionFilters(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	execs, err := h.db.ListExecutions(r.Context(), claims.ClientID, f)
	if err != nil {
		h.logger.Error("list executions", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "listing failed")
		return
	}
	if execs == nil {
		execs = []model.Execution{}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	writeList(w, r, execs, len(execs), limit, f.Offset)
}

// HandleExecutionStats handles GET /v1/executions/stats.
func (h *Handlers) HandleExecutionStats(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	f, err := parseExecutionFilters(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	stats, err := h.db.GetExecutionStats(r.Context(), claims.ClientID, f)
	if err != nil {
		h.logger.Error("execution stats", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "stats failed")
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// HandleGetExecution handles GET /v1/executions/{execution_id}.
func (h *Handlers) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	id, err := uuid.Parse(r.PathValue("execution_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid execution id")
		return
	}

	exec, err := h.db.GetExecutionByID(r.Context(), id, claims.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "execution not found")
			return
		}
		h.logger.Error("get execution", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, exec)
}

// HandleRefreshExecution handles POST /v1/executions/{execution_id}/refresh.
// Re-fetches the record from Bolna on demand and returns the stored result.
func (h *Handlers) HandleRefreshExecution(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	if h.syncSvc == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeSyncFailed, "sync is not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("execution_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid execution id")
		return
	}

	exec, err := h.db.GetExecutionByID(r.Context(), id, claims.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "execution not found")
			return
		}
		h.logger.Error("get execution", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "lookup failed")
		return
	}

	agent, err := h.db.GetAgentByID(r.Context(), exec.AgentID, claims.ClientID)
	if err != nil {
		h.logger.Error("get agent for refresh", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "refresh failed")
		return
	}

	refreshed, err := h.syncSvc.RefreshExecution(r.Context(), agent, exec.BolnaExecutionID)
	if err != nil {
		if errors.Is(err, bolna.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "execution no longer exists upstream")
			return
		}
		h.logger.Error("refresh execution", "error", err)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeSyncFailed, "upstream fetch failed")
		return
	}
	writeJSON(w, r, http.StatusOK, refreshed)
}
