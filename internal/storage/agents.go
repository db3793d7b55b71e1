package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/callscope/callscope/internal/model"
)

// CreateAgent inserts a new agent registration. bolna_agent_id is globally
// unique across all clients; on conflict the existing row is returned
// alongside ErrDuplicate so the caller can distinguish "you already added
// this" from "registered by another client".
func (db *DB) CreateAgent(ctx context.Context, agent model.Agent) (model.Agent, error) {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	if agent.Config == nil {
		agent.Config = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO agents (id, bolna_agent_id, client_id, name, description, config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		agent.ID, agent.BolnaAgentID, agent.ClientID, agent.Name,
		agent.Description, agent.Config, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := db.GetAgentByBolnaID(ctx, agent.BolnaAgentID)
			if getErr != nil {
				return model.Agent{}, fmt.Errorf("storage: agent %s: %w", agent.BolnaAgentID, ErrDuplicate)
			}
			return existing, fmt.Errorf("storage: agent %s: %w", agent.BolnaAgentID, ErrDuplicate)
		}
		return model.Agent{}, fmt.Errorf("storage: create agent: %w", err)
	}
	return agent, nil
}

// GetAgentByBolnaID retrieves an agent by its Bolna agent ID, across all
// clients. Duplicate registration uses it to find who owns the ID.
func (db *DB) GetAgentByBolnaID(ctx context.Context, bolnaAgentID string) (model.Agent, error) {
	var a model.Agent
	err := db.pool.QueryRow(ctx,
		`SELECT id, bolna_agent_id, client_id, name, description, config, created_at, updated_at
		 FROM agents WHERE bolna_agent_id = $1`, bolnaAgentID,
	).Scan(
		&a.ID, &a.BolnaAgentID, &a.ClientID, &a.Name,
		&a.Description, &a.Config, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("storage: agent %s: %w", bolnaAgentID, ErrNotFound)
		}
		return model.Agent{}, fmt.Errorf("storage: get agent by bolna id: %w", err)
	}
	return a, nil
}

// GetAgentByID retrieves an agent by its internal UUID, scoped to the
// owning client for tenant isolation.
func (db *DB) GetAgentByID(ctx context.Context, id, clientID uuid.UUID) (model.Agent, error) {
	var a model.Agent
	err := db.pool.QueryRow(ctx,
		`SELECT id, bolna_agent_id, client_id, name, description, config, created_at, updated_at
		 FROM agents WHERE id = $1 AND client_id = $2`, id, clientID,
	).Scan(
		&a.ID, &a.BolnaAgentID, &a.ClientID, &a.Name,
		&a.Description, &a.Config, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("storage: agent %s: %w", id, ErrNotFound)
		}
		return model.Agent{}, fmt.Errorf("storage: get agent by id: %w", err)
	}
	return a, nil
}

// ListAgentsByClient returns all agents registered by a client.
func (db *DB) ListAgentsByClient(ctx context.Context, clientID uuid.UUID) ([]model.Agent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, bolna_agent_id, client_id, name, description, config, created_at, updated_at
		 FROM agents WHERE client_id = $1 ORDER BY created_at ASC`, clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list agents by client: %w", err)
	}
	defer rows.Close()
	return scanAgents(rows)
}

// ListAllAgents returns every registered agent across all clients.
// The local registry is authoritative for which agents the sync engine
// walks; Bolna is never consulted for discovery.
func (db *DB) ListAllAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, bolna_agent_id, client_id, name, description, config, created_at, updated_at
		 FROM agents ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list all agents: %w", err)
	}
	defer rows.Close()
	return scanAgents(rows)
}

func scanAgents(rows pgx.Rows) ([]model.Agent, error) {
	var agents []model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(
			&a.ID, &a.BolnaAgentID, &a.ClientID, &a.Name,
			&a.Description, &a.Config, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgent performs a partial update of an agent's name, description,
// and/or config, scoped to the owning client. Only non-nil fields are
// applied (COALESCE pattern). Returns the updated agent.
func (db *DB) UpdateAgent(ctx context.Context, id, clientID uuid.UUID, name, description *string, config map[string]any) (model.Agent, error) {
	var a model.Agent
	err := db.pool.QueryRow(ctx,
		`UPDATE agents
		 SET name = COALESCE($1, name),
		     description = COALESCE($2, description),
		     config = CASE WHEN $3::jsonb IS NOT NULL THEN $3::jsonb ELSE config END,
		     updated_at = now()
		 WHERE id = $4 AND client_id = $5
		 RETURNING id, bolna_agent_id, client_id, name, description, config, created_at, updated_at`,
		name, description, config, id, clientID,
	).Scan(
		&a.ID, &a.BolnaAgentID, &a.ClientID, &a.Name,
		&a.Description, &a.Config, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("storage: agent %s: %w", id, ErrNotFound)
		}
		return model.Agent{}, fmt.Errorf("storage: update agent: %w", err)
	}
	return a, nil
}

// DeleteAgent removes an agent registration, scoped to the owning client.
// Executions cascade via the FK constraint.
func (db *DB) DeleteAgent(ctx context.Context, id, clientID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM agents WHERE id = $1 AND client_id = $2`, id, clientID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: agent %s: %w", id, ErrNotFound)
	}
	return nil
}
