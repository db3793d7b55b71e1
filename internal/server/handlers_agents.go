package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/callscope/callscope/internal/bolna"
	"github.com/callscope/callscope/internal/ctxutil"
	"github.com/callscope/callscope/internal/model"
	"github.com/callscope/callscope/internal/storage"
)

// HandleCreateAgent handles POST /v1/agents.
//
// The Bolna agent ID is globally unique: a second registration by the
// same client reports "already added", one by a different client reports
// "registered by another user". Bolna is consulted best-effort to tell
// the caller whether the ID actually exists upstream; an unreachable
// Bolna never blocks registration.
func (h *Handlers) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	var req model.CreateAgentRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	req.BolnaAgentID = strings.TrimSpace(req.BolnaAgentID)
	req.Name = strings.TrimSpace(req.Name)
	if err := model.ValidateBolnaAgentID(req.BolnaAgentID); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}

	providerStatus := "unknown"
	if h.verifier != nil {
		switch _, err := h.verifier.GetAgent(r.Context(), req.BolnaAgentID); {
		case err == nil:
			providerStatus = "verified"
		case errors.Is(err, bolna.ErrNotFound):
			providerStatus = "not_found"
		default:
			h.logger.Warn("agent verification unavailable",
				"bolna_agent_id", req.BolnaAgentID, "error", err)
		}
	}

	agent, err := h.db.CreateAgent(r.Context(), model.Agent{
		BolnaAgentID: req.BolnaAgentID,
		ClientID:     claims.ClientID,
		Name:         req.Name,
		Description:  req.Description,
		Config:       req.Config,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			if agent.ClientID == claims.ClientID {
				writeError(w, r, http.StatusConflict, model.ErrCodeConflict,
					"You have already added this agent to your account.")
			} else {
				writeError(w, r, http.StatusConflict, model.ErrCodeConflict,
					"This agent ID is already registered by another user.")
			}
			return
		}
		h.logger.Error("create agent", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "agent creation failed")
		return
	}

	writeJSON(w, r, http.StatusCreated, model.CreateAgentResponse{
		Agent:          agent,
		ProviderStatus: providerStatus,
	})
}

// HandleListAgents handles GET /v1/agents.
func (h *Handlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	agents, err := h.db.ListAgentsByClient(r.Context(), claims.ClientID)
	if err != nil {
		h.logger.Error("list agents", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "listing failed")
		return
	}
	if agents == nil {
		agents = []model.Agent{}
	}
	writeList(w, r, agents, len(agents), len(agents), 0)
}

// HandleGetAgent handles GET /v1/agents/{agent_id}.
func (h *Handlers) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
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
		h.logger.Error("get agent", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "lookup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, agent)
}

// HandleUpdateAgent handles PUT /v1/agents/{agent_id}.
func (h *Handlers) HandleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	id, err := uuid.Parse(r.PathValue("agent_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid agent id")
		return
	}

	var req model.UpdateAgentRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name cannot be empty")
		return
	}

	agent, err := h.db.UpdateAgent(r.Context(), id, claims.ClientID, req.Name, req.Description, req.Config)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "agent not found")
			return
		}
		h.logger.Error("update agent", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "update failed")
		return
	}
	writeJSON(w, r, http.StatusOK, agent)
}

// HandleDeleteAgent handles DELETE /v1/agents/{agent_id}.
// Stored executions cascade with the registration.
func (h *Handlers) HandleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	id, err := uuid.Parse(r.PathValue("agent_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid agent id")
		return
	}

	if err := h.db.DeleteAgent(r.Context(), id, claims.ClientID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "agent not found")
			return
		}
		h.logger.Error("delete agent", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "deletion failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
