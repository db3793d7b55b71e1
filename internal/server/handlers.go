package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/callscope/callscope/internal/auth"
	"github.com/callscope/callscope/internal/bolna"
	"github.com/callscope/callscope/internal/model"
	syncsvc "github.com/callscope/callscope/internal/service/sync"
	"github.com/callscope/callscope/internal/storage"
)

// AgentVerifier is the slice of the Bolna client used to verify agent
// existence at registration time. Nil disables verification.
type AgentVerifier interface {
	GetAgent(ctx context.Context, agentID string) (*bolna.AgentDetail, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	syncSvc             *syncsvc.Service
	verifier            AgentVerifier
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Verifier.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	SyncSvc             *syncsvc.Service
	Verifier            AgentVerifier
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		syncSvc:             d.SyncSvc,
		verifier:            d.Verifier,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}
