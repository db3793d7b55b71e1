package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/callscope/callscope/internal/model"
)

// UpsertExecution writes one normalized execution keyed on
// bolna_execution_id: inserted if absent, otherwise all mutable fields are
// replaced wholesale. The local primary key and created_at survive the
// overwrite. The write is a single statement, so per-key atomicity comes
// from Postgres row-level locking; no intermediate state is observable.
func (db *DB) UpsertExecution(ctx context.Context, exec model.Execution) (model.Execution, error) {
	if exec.BolnaExecutionID == "" {
		return model.Execution{}, fmt.Errorf("storage: upsert execution: missing bolna_execution_id")
	}
	if exec.AgentID == uuid.Nil {
		return model.Execution{}, fmt.Errorf("storage: upsert execution: missing agent_id")
	}
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	if exec.ExtractedData == nil {
		exec.ExtractedData = map[string]any{}
	}
	if exec.Metadata == nil {
		exec.Metadata = map[string]any{}
	}
	now := time.Now().UTC()

	var e model.Execution
	err := db.pool.QueryRow(ctx,
		`INSERT INTO executions (
		     id, bolna_execution_id, agent_id,
		     conversation_time, total_cost, status,
		     telephony_provider, from_number, to_number, call_sid,
		     extracted_data, transcript, metadata, raw_logs,
		     started_at, ended_at, created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
		 ON CONFLICT (bolna_execution_id) DO UPDATE SET
		     agent_id           = EXCLUDED.agent_id,
		     conversation_time  = EXCLUDED.conversation_time,
		     total_cost         = EXCLUDED.total_cost,
		     status             = EXCLUDED.status,
		     telephony_provider = EXCLUDED.telephony_provider,
		     from_number        = EXCLUDED.from_number,
		     to_number          = EXCLUDED.to_number,
		     call_sid           = EXCLUDED.call_sid,
		     extracted_data     = EXCLUDED.extracted_data,
		     transcript         = EXCLUDED.transcript,
		     metadata           = EXCLUDED.metadata,
		     raw_logs           = EXCLUDED.raw_logs,
		     started_at         = EXCLUDED.started_at,
		     ended_at           = EXCLUDED.ended_at,
		     updated_at         = now()
		 RETURNING id, bolna_execution_id, agent_id,
		     conversation_time, total_cost, status,
		     telephony_provider, from_number, to_number, call_sid,
		     extracted_data, transcript, metadata, raw_logs,
		     started_at, ended_at, created_at, updated_at`,
		exec.ID, exec.BolnaExecutionID, exec.AgentID,
		exec.ConversationTime, exec.TotalCost, exec.Status,
		exec.TelephonyProvider, exec.FromNumber, exec.ToNumber, exec.CallSID,
		exec.ExtractedData, exec.Transcript, exec.Metadata, exec.RawLogs,
		exec.StartedAt, exec.EndedAt, now,
	).Scan(
		&e.ID, &e.BolnaExecutionID, &e.AgentID,
		&e.ConversationTime, &e.TotalCost, &e.Status,
		&e.TelephonyProvider, &e.FromNumber, &e.ToNumber, &e.CallSID,
		&e.ExtractedData, &e.Transcript, &e.Metadata, &e.RawLogs,
		&e.StartedAt, &e.EndedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return model.Execution{}, fmt.Errorf("storage: upsert execution: %w", err)
	}
	return e, nil
}

// GetExecutionByID retrieves an execution by its internal UUID, scoped to
// the owning client via the agent join.
func (db *DB) GetExecutionByID(ctx context.Context, id, clientID uuid.UUID) (model.Execution, error) {
	var e model.Execution
	err := db.pool.QueryRow(ctx,
		`SELECT e.id, e.bolna_execution_id, e.agent_id,
		     e.conversation_time, e.total_cost, e.status,
		     e.telephony_provider, e.from_number, e.to_number, e.call_sid,
		     e.extracted_data, e.transcript, e.metadata, e.raw_logs,
		     e.started_at, e.ended_at, e.created_at, e.updated_at
		 FROM executions e
		 JOIN agents a ON a.id = e.agent_id
		 WHERE e.id = $1 AND a.client_id = $2`, id, clientID,
	).Scan(
		&e.ID, &e.BolnaExecutionID, &e.AgentID,
		&e.ConversationTime, &e.TotalCost, &e.Status,
		&e.TelephonyProvider, &e.FromNumber, &e.ToNumber, &e.CallSID,
		&e.ExtractedData, &e.Transcript, &e.Metadata, &e.RawLogs,
		&e.StartedAt, &e.EndedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Execution{}, fmt.Errorf("storage: execution %s: %w", id, ErrNotFound)
		}
		return model.Execution{}, fmt.Errorf("storage: get execution: %w", err)
	}
	return e, nil
}

// ExecutionFilters narrows ListExecutions and ExecutionStats. Zero values
// mean "no filter". From/To bound started_at inclusively.
type ExecutionFilters struct {
	AgentID uuid.UUID
	Status  string
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

// ListExecutions returns executions belonging to the client's agents,
// newest started_at first, with optional agent/status/time-range filters.
// limit is clamped to [1, 100] with a default of 100.
func (db *DB) ListExecutions(ctx context.Context, clientID uuid.UUID, f ExecutionFilters) ([]model.Execution, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var sb strings.Builder
	sb.WriteString(
		`SELECT e.id, e.bolna_execution_id, e.agent_id,
		     e.conversation_time, e.total_cost, e.status,
		     e.telephony_provider, e.from_number, e.to_number, e.call_sid,
		     e.extracted_data, e.transcript, e.metadata, e.raw_logs,
		     e.started_at, e.ended_at, e.created_at, e.updated_at
		 FROM executions e
		 JOIN agents a ON a.id = e.agent_id
		 WHERE a.client_id = $1`)
	args := []any{clientID}

	args = appendExecutionFilters(&sb, args, f)

	sb.WriteString(" ORDER BY e.started_at DESC NULLS LAST")
	sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)+1))
	args = append(args, limit)
	sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)+1))
	args = append(args, offset)

	rows, err := db.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}
	defer rows.Close()

	var execs []model.Execution
	for rows.Next() {
		var e model.Execution
		if err := rows.Scan(
			&e.ID, &e.BolnaExecutionID, &e.AgentID,
			&e.ConversationTime, &e.TotalCost, &e.Status,
			&e.TelephonyProvider, &e.FromNumber, &e.ToNumber, &e.CallSID,
			&e.ExtractedData, &e.Transcript, &e.Metadata, &e.RawLogs,
			&e.StartedAt, &e.EndedAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan execution: %w", err)
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// appendExecutionFilters appends the optional WHERE clauses shared by
// ListExecutions and ExecutionStats.
func appendExecutionFilters(sb *strings.Builder, args []any, f ExecutionFilters) []any {
	if f.AgentID != uuid.Nil {
		sb.WriteString(" AND e.agent_id = $" + strconv.Itoa(len(args)+1))
		args = append(args, f.AgentID)
	}
	if f.Status != "" {
		sb.WriteString(" AND e.status = $" + strconv.Itoa(len(args)+1))
		args = append(args, f.Status)
	}
	if f.From != nil {
		sb.WriteString(" AND e.started_at >= $" + strconv.Itoa(len(args)+1))
		args = append(args, *f.From)
	}
	if f.To != nil {
		sb.WriteString(" AND e.started_at <= $" + strconv.Itoa(len(args)+1))
		args = append(args, *f.To)
	}
	return args
}

// ExecutionStats holds aggregate statistics across a client's executions.
type ExecutionStats struct {
	TotalExecutions       int            `json:"total_executions"`
	TotalCost             float64        `json:"total_cost"`
	TotalConversationTime float64        `json:"total_conversation_time"`
	ByStatus              map[string]int `json:"by_status"`
}

// GetExecutionStats returns totals and a status breakdown for the client's
// executions, honoring the same filters as ListExecutions (limit/offset
// ignored).
func (db *DB) GetExecutionStats(ctx context.Context, clientID uuid.UUID, f ExecutionFilters) (ExecutionStats, error) {
	var sb strings.Builder
	sb.WriteString(
		`SELECT count(*), COALESCE(sum(e.total_cost), 0), COALESCE(sum(e.conversation_time), 0)
		 FROM executions e
		 JOIN agents a ON a.id = e.agent_id
		 WHERE a.client_id = $1`)
	args := []any{clientID}
	args = appendExecutionFilters(&sb, args, f)

	var s ExecutionStats
	if err := db.pool.QueryRow(ctx, sb.String(), args...).Scan(
		&s.TotalExecutions, &s.TotalCost, &s.TotalConversationTime,
	); err != nil {
		return s, fmt.Errorf("storage: execution stats: %w", err)
	}

	sb.Reset()
	sb.WriteString(
		`SELECT e.status, count(*)
		 FROM executions e
		 JOIN agents a ON a.id = e.agent_id
		 WHERE a.client_id = $1`)
	args = args[:1]
	args = appendExecutionFilters(&sb, args, f)
	sb.WriteString(" GROUP BY e.status")

	rows, err := db.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return s, fmt.Errorf("storage: execution stats by status: %w", err)
	}
	defer rows.Close()

	s.ByStatus = make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return s, fmt.Errorf("storage: scan execution status count: %w", err)
		}
		s.ByStatus[status] = count
	}
	return s, rows.Err()
}

// CountExecutionsByAgent returns the number of stored executions for an agent.
func (db *DB) CountExecutionsByAgent(ctx context.Context, agentID uuid.UUID) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM executions WHERE agent_id = $1`, agentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("storage: count executions: %w", err)
	}
	return count, nil
}

// DeleteExecutionsByAgent removes every stored execution for an agent.
// Administrative bulk operation; normal lifecycle never deletes.
// Returns the number of rows removed.
func (db *DB) DeleteExecutionsByAgent(ctx context.Context, agentID uuid.UUID) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM executions WHERE agent_id = $1`, agentID,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: delete executions: %w", err)
	}
	return tag.RowsAffected(), nil
}
