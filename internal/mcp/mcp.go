// Package mcp implements the Model Context Protocol server for CallScope.
//
// The MCP server exposes the dashboard's query and sync capabilities as
// MCP tools, letting MCP-compatible AI agents inspect call executions and
// trigger syncs over the same authenticated transport as the HTTP API.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	syncsvc "github.com/callscope/callscope/internal/service/sync"
	"github.com/callscope/callscope/internal/storage"
)

// Server wraps the MCP server with CallScope's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	db        *storage.DB
	syncSvc   *syncsvc.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools registered.
func New(db *storage.DB, syncSvc *syncsvc.Service, version string, logger *slog.Logger) *Server {
	s := &Server{
		db:      db,
		syncSvc: syncSvc,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"callscope",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// callscope_agents: list the caller's registered agents.
	s.mcpServer.AddTool(
		mcplib.NewTool("callscope_agents",
			mcplib.WithDescription("List the voice agents registered to your account"),
		),
		s.handleAgents,
	)

	// callscope_executions: query stored call executions.
	s.mcpServer.AddTool(
		mcplib.NewTool("callscope_executions",
			mcplib.WithDescription("Query synced call executions with optional filters"),
			mcplib.WithString("agent_id", mcplib.Description("Filter by local agent UUID")),
			mcplib.WithString("status", mcplib.Description("Filter by execution status (e.g. completed, failed)")),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return (default 20)")),
		),
		s.handleExecutions,
	)

	// callscope_stats: aggregate cost and duration statistics.
	s.mcpServer.AddTool(
		mcplib.NewTool("callscope_stats",
			mcplib.WithDescription("Aggregate execution statistics: totals, cost, talk time, status breakdown"),
			mcplib.WithString("agent_id", mcplib.Description("Filter by local agent UUID")),
			mcplib.WithString("status", mcplib.Description("Filter by execution status")),
		),
		s.handleStats,
	)

	// callscope_sync: pull fresh execution data from Bolna.
	s.mcpServer.AddTool(
		mcplib.NewTool("callscope_sync",
			mcplib.WithDescription("Sync execution history from Bolna for one agent or all your agents"),
			mcplib.WithString("agent_id", mcplib.Description("Local agent UUID; omit to sync all your agents")),
		),
		s.handleSync,
	)
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
