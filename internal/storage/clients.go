package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/callscope/callscope/internal/model"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// CreateClient inserts a new client. Returns ErrDuplicate if the email is
// already registered.
func (db *DB) CreateClient(ctx context.Context, client model.Client) (model.Client, error) {
	if client.ID == uuid.Nil {
		client.ID = uuid.New()
	}
	now := time.Now().UTC()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now

	_, err := db.pool.Exec(ctx,
		`INSERT INTO clients (id, name, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		client.ID, client.Name, client.Email, client.PasswordHash,
		client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Client{}, fmt.Errorf("storage: client email %s: %w", client.Email, ErrDuplicate)
		}
		return model.Client{}, fmt.Errorf("storage: create client: %w", err)
	}
	return client, nil
}

// GetClientByEmail retrieves a client by email address.
func (db *DB) GetClientByEmail(ctx context.Context, email string) (model.Client, error) {
	var c model.Client
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM clients WHERE email = $1`, email,
	).Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Client{}, fmt.Errorf("storage: client %s: %w", email, ErrNotFound)
		}
		return model.Client{}, fmt.Errorf("storage: get client by email: %w", err)
	}
	return c, nil
}

// GetClientByID retrieves a client by its internal UUID.
func (db *DB) GetClientByID(ctx context.Context, id uuid.UUID) (model.Client, error) {
	var c model.Client
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at, updated_at
		 FROM clients WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Client{}, fmt.Errorf("storage: client %s: %w", id, ErrNotFound)
		}
		return model.Client{}, fmt.Errorf("storage: get client by id: %w", err)
	}
	return c, nil
}
