package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/callscope/callscope/internal/auth"
	"github.com/callscope/callscope/internal/ratelimit"
	syncsvc "github.com/callscope/callscope/internal/service/sync"
	"github.com/callscope/callscope/internal/storage"
)

// Server is the CallScope HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Verifier, Limiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB      *storage.DB
	JWTMgr  *auth.JWTManager
	SyncSvc *syncsvc.Service
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Verifier  AgentVerifier
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		SyncSvc:             cfg.SyncSvc,
		Verifier:            cfg.Verifier,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Credential endpoints are limited by source IP; everything else
	// rides behind auth and stays unlimited.
	authRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Auth endpoints (no auth required, rate limited by IP).
	mux.Handle("POST /auth/register", authRL(http.HandlerFunc(h.HandleRegister)))
	mux.Handle("POST /auth/login", authRL(http.HandlerFunc(h.HandleLogin)))
	mux.HandleFunc("GET /auth/me", h.HandleMe)

	// Agent registry.
	mux.HandleFunc("POST /v1/agents", h.HandleCreateAgent)
	mux.HandleFunc("GET /v1/agents", h.HandleListAgents)
	mux.HandleFunc("GET /v1/agents/{agent_id}", h.HandleGetAgent)
	mux.HandleFunc("PUT /v1/agents/{agent_id}", h.HandleUpdateAgent)
	mux.HandleFunc("DELETE /v1/agents/{agent_id}", h.HandleDeleteAgent)

	// Execution queries.
	mux.HandleFunc("GET /v1/executions", h.HandleListExecutions)
	mux.HandleFunc("GET /v1/executions/stats", h.HandleExecutionStats)
	mux.HandleFunc("GET /v1/executions/{execution_id}", h.HandleGetExecution)
	mux.HandleFunc("POST /v1/executions/{execution_id}/refresh", h.HandleRefreshExecution)

	// Manual sync triggers.
	mux.HandleFunc("POST /v1/sync", h.HandleSync)
	mux.HandleFunc("POST /v1/agents/{agent_id}/sync", h.HandleSyncAgent)

	// MCP StreamableHTTP transport (auth required).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
