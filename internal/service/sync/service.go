package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/callscope/callscope/internal/bolna"
	"github.com/callscope/callscope/internal/model"
)

// Provider is the subset of the Bolna client the sync engine needs.
type Provider interface {
	ListExecutions(ctx context.Context, agentID string, pageNumber, pageSize int) (*bolna.ExecutionPage, error)
	GetExecution(ctx context.Context, agentID, executionID string) (map[string]any, error)
}

// Store is the subset of storage the sync engine needs.
type Store interface {
	ListAllAgents(ctx context.Context) ([]model.Agent, error)
	UpsertExecution(ctx context.Context, exec model.Execution) (model.Execution, error)
}

// Service pulls execution history from Bolna into local storage.
// Safe for concurrent use; overlapping syncs of the same agent coalesce
// into one provider walk via singleflight, so a manual trigger landing
// during the scheduled run does neither duplicate work nor interleaved
// writes.
type Service struct {
	provider Provider
	store    Store
	pageSize int
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService constructs a sync Service. pageSize bounds each provider
// request; values outside (0, 100] fall back to 50.
func NewService(provider Provider, store Store, pageSize int, logger *slog.Logger) *Service {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		store:    store,
		pageSize: pageSize,
		logger:   logger,
	}
}

// SyncAll walks every registered agent sequentially and syncs its
// executions. A failing agent is logged and skipped; its failure never
// blocks the remaining agents, and its partial count is discarded from
// the aggregate (the records themselves stay written). Returns the total
// number of records upserted by the agents that completed. The only hard
// error is failing to list the registry itself.
func (s *Service) SyncAll(ctx context.Context) (int, error) {
	agents, err := s.store.ListAllAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync: list agents: %w", err)
	}

	total := 0
	failed := 0
	for _, agent := range agents {
		if ctx.Err() != nil {
			return total, fmt.Errorf("sync: aborted: %w", ctx.Err())
		}
		n, err := s.SyncAgent(ctx, agent)
		if err != nil {
			failed++
			s.logger.Error("sync: agent failed",
				"bolna_agent_id", agent.BolnaAgentID,
				"synced_before_failure", n,
				"error", err)
			continue
		}
		total += n
	}

	s.logger.Info("sync: run complete",
		"agents", len(agents), "failed_agents", failed, "synced", total)
	return total, nil
}

// SyncAgent pages through one agent's executions and upserts each record.
// Records that cannot be normalized or written are logged and skipped so
// one malformed record never stalls the walk. Returns the number of
// records upserted; on a page fetch error, records already written stay
// written and the count reflects them.
func (s *Service) SyncAgent(ctx context.Context, agent model.Agent) (int, error) {
	v, err, _ := s.group.Do(agent.BolnaAgentID, func() (any, error) {
		return s.syncAgent(ctx, agent)
	})
	n, _ := v.(int)
	return n, err
}

func (s *Service) syncAgent(ctx context.Context, agent model.Agent) (int, error) {
	synced := 0
	skipped := 0

	for pageNumber := 1; ; pageNumber++ {
		page, err := s.provider.ListExecutions(ctx, agent.BolnaAgentID, pageNumber, s.pageSize)
		if err != nil {
			return synced, fmt.Errorf("sync: agent %s page %d: %w", agent.BolnaAgentID, pageNumber, err)
		}

		for _, raw := range page.Data {
			if err := s.upsertRaw(ctx, agent, raw); err != nil {
				skipped++
				s.logger.Warn("sync: record skipped",
					"bolna_agent_id", agent.BolnaAgentID, "error", err)
				continue
			}
			synced++
		}

		if !page.HasMore || len(page.Data) == 0 {
			break
		}
	}

	s.logger.Info("sync: agent complete",
		"bolna_agent_id", agent.BolnaAgentID, "synced", synced, "skipped", skipped)
	return synced, nil
}

// RefreshExecution re-fetches a single execution's detail record from
// Bolna and upserts it, returning the stored row. Used when a dashboard
// user wants fresher data than the last scheduled run.
func (s *Service) RefreshExecution(ctx context.Context, agent model.Agent, bolnaExecutionID string) (model.Execution, error) {
	raw, err := s.provider.GetExecution(ctx, agent.BolnaAgentID, bolnaExecutionID)
	if err != nil {
		if errors.Is(err, bolna.ErrNotFound) {
			return model.Execution{}, fmt.Errorf("sync: execution %s: %w", bolnaExecutionID, err)
		}
		return model.Execution{}, fmt.Errorf("sync: fetch execution %s: %w", bolnaExecutionID, err)
	}

	n, err := Normalize(raw)
	if err != nil {
		return model.Execution{}, fmt.Errorf("sync: execution %s: %w", bolnaExecutionID, err)
	}

	stored, err := s.store.UpsertExecution(ctx, toModel(n, agent))
	if err != nil {
		return model.Execution{}, fmt.Errorf("sync: store execution %s: %w", bolnaExecutionID, err)
	}
	return stored, nil
}

func (s *Service) upsertRaw(ctx context.Context, agent model.Agent, raw map[string]any) error {
	n, err := Normalize(raw)
	if err != nil {
		return err
	}
	if _, err := s.store.UpsertExecution(ctx, toModel(n, agent)); err != nil {
		return err
	}
	return nil
}

// toModel binds a normalized record to its local agent.
func toModel(n NormalizedExecution, agent model.Agent) model.Execution {
	return model.Execution{
		BolnaExecutionID:  n.BolnaExecutionID,
		AgentID:           agent.ID,
		ConversationTime:  n.ConversationTime,
		TotalCost:         n.TotalCost,
		Status:            model.ExecutionStatus(n.Status),
		TelephonyProvider: n.TelephonyProvider,
		FromNumber:        n.FromNumber,
		ToNumber:          n.ToNumber,
		CallSID:           n.CallSID,
		ExtractedData:     n.ExtractedData,
		Transcript:        n.Transcript,
		RawLogs:           n.RawLogs,
		Metadata:          n.Metadata,
		StartedAt:         n.StartedAt,
		EndedAt:           n.EndedAt,
	}
}
