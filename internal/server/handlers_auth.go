package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/callscope/callscope/internal/auth"
	"github.com/callscope/callscope/internal/ctxutil"
	"github.com/callscope/callscope/internal/model"
	"github.com/callscope/callscope/internal/storage"
)

// HandleRegister handles POST /auth/register.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}
	if err := model.ValidateEmail(req.Email); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "registration failed")
		return
	}

	client, err := h.db.CreateClient(r.Context(), model.Client{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "email already registered")
			return
		}
		h.logger.Error("create client", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "registration failed")
		return
	}

	h.respondWithToken(w, r, client, http.StatusCreated)
}

// HandleLogin handles POST /auth/login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	client, err := h.db.GetClientByEmail(r.Context(), req.Email)
	if err != nil {
		// Burn a hash so a missing account costs the same time as a
		// wrong password.
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, client.PasswordHash)
	if err != nil || !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	h.respondWithToken(w, r, client, http.StatusOK)
}

// HandleMe handles GET /auth/me.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no claims in context")
		return
	}

	client, err := h.db.GetClientByID(r.Context(), claims.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "client not found")
			return
		}
		h.logger.Error("get client", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "lookup failed")
		return
	}

	writeJSON(w, r, http.StatusOK, client)
}

func (h *Handlers) respondWithToken(w http.ResponseWriter, r *http.Request, client model.Client, status int) {
	token, expiresAt, err := h.jwtMgr.IssueToken(client.ID, client.Email)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "token issuance failed")
		return
	}
	writeJSON(w, r, status, model.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Client:    client,
	})
}
