package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed module state.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Active lists active module names for a tenant.
func (r *Repository) Active(ctx context.Context, orgID int64) ([]string, error) {
	const query = `SELECT module FROM tenant_modules WHERE org_id = $1 AND is_active ORDER BY module`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("modules: list active for org %d: %w", orgID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("modules: scan module: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// IsActive reports whether one module is active for a tenant.
func (r *Repository) IsActive(ctx context.Context, orgID int64, module string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM tenant_modules WHERE org_id = $1 AND module = $2 AND is_active)`
	var active bool
	if err := r.pool.QueryRow(ctx, query, orgID, module).Scan(&active); err != nil {
		return false, fmt.Errorf("modules: is active %s for org %d: %w", module, orgID, err)
	}
	return active, nil
}

// Permissions lists the permission strings a module declares.
func (r *Repository) Permissions(ctx context.Context, module string) ([]string, error) {
	const query = `SELECT permission FROM module_permissions WHERE module = $1 ORDER BY permission`
	rows, err := r.pool.Query(ctx, query, module)
	if err != nil {
		return nil, fmt.Errorf("modules: permissions for %s: %w", module, err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("modules: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// SetActive flips the activation flag, creating the row when absent.
func (r *Repository) SetActive(ctx context.Context, orgID int64, module string, active bool) error {
	const query = `
		INSERT INTO tenant_modules (org_id, module, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, module) DO UPDATE SET is_active = EXCLUDED.is_active, updated_at = now()`
	if _, err := r.pool.Exec(ctx, query, orgID, module, active); err != nil {
		return fmt.Errorf("modules: set %s active=%t for org %d: %w", module, active, orgID, err)
	}
	return nil
}
