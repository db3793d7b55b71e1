package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/callscope/callscope/internal/ctxutil"
	"github.com/callscope/callscope/internal/model"
	"github.com/callscope/callscope/internal/storage"
)

// HandleSync handles POST /v1/sync.
//
// Runs a full registry sync synchronously, the same run the hourly
// scheduler performs, and reports how many records were upserted by the
// agents that completed. Overlap with the scheduled run is safe: both
// paths coalesce per agent inside the sync service. Errors are returned
// to the caller verbatim; the scheduler merely logs and retries on the
// next tick, so the manual trigger is the path that shows you what broke.
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}
	if h.syncSvc == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeSyncFailed, "sync is not configured")
		return
	}

	n, err := h.syncSvc.SyncAll(r.Context())
	if err != nil {
		h.logger.Error("manual sync failed", "error", err)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeSyncFailed, err.Error())
		return
	}

	writeJSON(w, r, http.StatusOK, model.SyncResponse{Synced: n})
}

// HandleSyncAgent handles POST /v1/agents/{agent_id}/sync.
func (h *Handlers) HandleSyncAgent(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	if h.syncSvc == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeSyncFailed, "sync is not configured")
		return
	}

	id, err := uuid.Parse(r.PathValue("agent_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid agent id")
		return
	}

	agent, err := h.db.GetAgentByID(r.Context(), id, claims.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "agent not found")
			return
		}
		h.logger.Error("get agent for sync", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "sync failed")
		return
	}

	n, err := h.syncSvc.SyncAgent(r.Context(), agent)
	if err != nil {
		h.logger.Error("manual sync: agent failed",
			"bolna_agent_id", agent.BolnaAgentID, "synced_before_failure", n, "error", err)
		writeError(w, r, http.StatusBadGateway, model.ErrCodeSyncFailed, err.Error())
		return
	}

	writeJSON(w, r, http.StatusOK, model.SyncResponse{Synced: n})
}
