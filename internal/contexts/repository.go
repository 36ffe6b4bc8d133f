package contexts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-suite/helios/internal/shared"
)

// PGRepository provides PostgreSQL backed persistence for context nodes.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// EnsureContext inserts or returns the node for (kind, resource id). The
// upsert keeps creation idempotent under concurrent resolvers.
func (r *PGRepository) EnsureContext(ctx context.Context, kind Kind, resourceID int64, parentID *int64) (Context, error) {
	const query = `
		INSERT INTO auth_contexts (kind, resource_id, parent_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, resource_id) DO UPDATE SET kind = EXCLUDED.kind
		RETURNING id, kind, resource_id, parent_id, created_at`
	var node Context
	err := r.pool.QueryRow(ctx, query, kind, resourceID, parentID).
		Scan(&node.ID, &node.Kind, &node.ResourceID, &node.ParentID, &node.CreatedAt)
	if err != nil {
		return Context{}, fmt.Errorf("contexts: ensure (%s,%d): %w", kind, resourceID, err)
	}
	return node, nil
}

// GetContext fetches a node by ID.
func (r *PGRepository) GetContext(ctx context.Context, id int64) (Context, error) {
	const query = `SELECT id, kind, resource_id, parent_id, created_at FROM auth_contexts WHERE id = $1`
	var node Context
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&node.ID, &node.Kind, &node.ResourceID, &node.ParentID, &node.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Context{}, shared.ErrNotFound
		}
		return Context{}, fmt.Errorf("contexts: get %d: %w", id, err)
	}
	return node, nil
}

// ProjectOrg resolves the owning organization of a project.
func (r *PGRepository) ProjectOrg(ctx context.Context, projectID int64) (int64, error) {
	const query = `SELECT org_id FROM projects WHERE id = $1`
	var orgID int64
	if err := r.pool.QueryRow(ctx, query, projectID).Scan(&orgID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrUnknownProject
		}
		return 0, fmt.Errorf("contexts: project org %d: %w", projectID, err)
	}
	return orgID, nil
}
