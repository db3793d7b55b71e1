package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/callscope/callscope/internal/ctxutil"
	"github.com/callscope/callscope/internal/storage"
)

// handleAgents implements the callscope_agents tool.
func (s *Server) handleAgents(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	clientID := ctxutil.ClientIDFromContext(ctx)
	if clientID == uuid.Nil {
		return errorResult("not authenticated"), nil
	}

	agents, err := s.db.ListAgentsByClient(ctx, clientID)
	if err != nil {
		return errorResult(fmt.Sprintf("listing agents failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"agents": agents,
		"total":  len(agents),
	}), nil
}

// handleExecutions implements the callscope_executions tool.
func (s *Server) handleExecutions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	clientID := ctxutil.ClientIDFromContext(ctx)
	if clientID == uuid.Nil {
		return errorResult("not authenticated"), nil
	}

	filters := storage.ExecutionFilters{
		Status: request.GetString("status", ""),
		Limit:  request.GetInt("limit", 20),
	}
	if agentID := request.GetString("agent_id", ""); agentID != "" {
		id, err := uuid.Parse(agentID)
		if err != nil {
			return errorResult("agent_id must be a UUID"), nil
		}
		filters.AgentID = id
	}

	execs, err := s.db.ListExecutions(ctx, clientID, filters)
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"executions": execs,
		"total":      len(execs),
	}), nil
}

// handleStats implements the callscope_stats tool.
func (s *Server) handleStats(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	clientID := ctxutil.ClientIDFromContext(ctx)
	if clientID == uuid.Nil {
		return errorResult("not authenticated"), nil
	}

	filters := storage.ExecutionFilters{
		Status: request.GetString("status", ""),
	}
	if agentID := request.GetString("agent_id", ""); agentID != "" {
		id, err := uuid.Parse(agentID)
		if err != nil {
			return errorResult("agent_id must be a UUID"), nil
		}
		filters.AgentID = id
	}

	stats, err := s.db.GetExecutionStats(ctx, clientID, filters)
	if err != nil {
		return errorResult(fmt.Sprintf("stats failed: %v", err)), nil
	}

	return jsonResult(stats), nil
}

// handleSync implements the callscope_sync tool.
func (s *Server) handleSync(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	clientID := ctxutil.ClientIDFromContext(ctx)
	if clientID == uuid.Nil {
		return errorResult("not authenticated"), nil
	}
	if s.syncSvc == nil {
		return errorResult("sync is not configured"), nil
	}

	if agentID := request.GetString("agent_id", ""); agentID != "" {
		id, err := uuid.Parse(agentID)
		if err != nil {
			return errorResult("agent_id must be a UUID"), nil
		}
		agent, err := s.db.GetAgentByID(ctx, id, clientID)
		if err != nil {
			return errorResult(fmt.Sprintf("agent lookup failed: %v", err)), nil
		}
		n, err := s.syncSvc.SyncAgent(ctx, agent)
		if err != nil {
			return errorResult(fmt.Sprintf("sync failed after %d records: %v", n, err)), nil
		}
		return jsonResult(map[string]any{"synced": n, "agent_id": agent.ID}), nil
	}

	agents, err := s.db.ListAgentsByClient(ctx, clientID)
	if err != nil {
		return errorResult(fmt.Sprintf("listing agents failed: %v", err)), nil
	}

	total := 0
	failed := 0
	for _, agent := range agents {
		n, err := s.syncSvc.SyncAgent(ctx, agent)
		if err != nil {
			failed++
			s.logger.Error("mcp sync: agent failed",
				"bolna_agent_id", agent.BolnaAgentID, "error", err)
			continue
		}
		total += n
	}

	return jsonResult(map[string]any{
		"synced":        total,
		"agents":        len(agents),
		"failed_agents": failed,
	}), nil
}
