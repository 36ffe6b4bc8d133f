// Package projects exposes the small slice of project data the engine needs:
// how many active projects a user holds. Project management itself lives in
// the wider platform.
package projects

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed project counts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountActiveProjects counts projects where the user is an active member.
func (r *Repository) CountActiveProjects(ctx context.Context, userID int64) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM project_members pm
		JOIN projects p ON p.id = pm.project_id
		WHERE pm.user_id = $1 AND pm.is_active AND p.status = 'active'`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("projects: count active for user %d: %w", userID, err)
	}
	return count, nil
}
