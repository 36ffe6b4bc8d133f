package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-suite/helios/internal/shared"
)

// Repository defines persistence for API tokens.
type Repository interface {
	FindByID(ctx context.Context, id string) (*APIToken, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// PGRepository is the PostgreSQL implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID fetches an active token record.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*APIToken, error) {
	const query = `
		SELECT id, name, secret_hash, is_active, created_at, last_used_at
		FROM api_tokens WHERE id = $1`
	var token APIToken
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&token.ID, &token.Name, &token.SecretHash, &token.Active, &token.CreatedAt, &token.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrInvalidToken
		}
		return nil, fmt.Errorf("auth: find token: %w", err)
	}
	return &token, nil
}

// TouchLastUsed records token usage, best effort.
func (r *PGRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}
