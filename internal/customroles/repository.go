package customroles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helios-suite/helios/internal/shared"
)

// Repository provides PostgreSQL backed persistence for custom roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `
	id, org_id, slug, name, description, system_permissions, module_permissions,
	interface_access, condition_template, is_active, created_by, created_at, updated_at, deleted_at`

func scanRole(row pgx.Row) (CustomRole, error) {
	var (
		role    CustomRole
		modules []byte
	)
	err := row.Scan(
		&role.ID, &role.OrgID, &role.Slug, &role.Name, &role.Description,
		&role.SystemPermissions, &modules, &role.Interfaces, &role.ConditionTemplate,
		&role.Active, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt, &role.DeletedAt,
	)
	if err != nil {
		return CustomRole{}, err
	}
	if len(modules) > 0 {
		if err := json.Unmarshal(modules, &role.ModulePermissions); err != nil {
			return CustomRole{}, fmt.Errorf("customroles: decode module permissions: %w", err)
		}
	}
	return role, nil
}

// FindBySlug fetches a live (non-deleted) role by tenant and slug.
func (r *Repository) FindBySlug(ctx context.Context, orgID int64, slug string) (CustomRole, error) {
	const query = `SELECT ` + roleColumns + ` FROM custom_roles
		WHERE org_id = $1 AND slug = $2 AND deleted_at IS NULL`
	role, err := scanRole(r.pool.QueryRow(ctx, query, orgID, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomRole{}, shared.ErrRoleNotFound
		}
		return CustomRole{}, fmt.Errorf("customroles: find %s/%d: %w", slug, orgID, err)
	}
	return role, nil
}

// ListForOrg returns the tenant's live roles.
func (r *Repository) ListForOrg(ctx context.Context, orgID int64) ([]CustomRole, error) {
	const query = `SELECT ` + roleColumns + ` FROM custom_roles
		WHERE org_id = $1 AND deleted_at IS NULL ORDER BY slug`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("customroles: list for org %d: %w", orgID, err)
	}
	defer rows.Close()

	var roles []CustomRole
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("customroles: scan: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Create inserts a role. Slug collisions within a tenant surface as
// shared.ErrNotFound-adjacent duplicate errors from the unique index.
func (r *Repository) Create(ctx context.Context, role CustomRole) (CustomRole, error) {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	modules, err := json.Marshal(role.ModulePermissions)
	if err != nil {
		return CustomRole{}, fmt.Errorf("customroles: encode module permissions: %w", err)
	}
	const query = `
		INSERT INTO custom_roles
			(id, org_id, slug, name, description, system_permissions, module_permissions,
			 interface_access, condition_template, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10)
		RETURNING created_at, updated_at`
	err = r.pool.QueryRow(ctx, query,
		role.ID, role.OrgID, role.Slug, role.Name, role.Description,
		role.SystemPermissions, modules, role.Interfaces, role.ConditionTemplate, role.CreatedBy).
		Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return CustomRole{}, fmt.Errorf("customroles: create %s: %w", role.Slug, err)
	}
	role.Active = true
	return role, nil
}

// Update rewrites the mutable fields of a role.
func (r *Repository) Update(ctx context.Context, role CustomRole) (CustomRole, error) {
	modules, err := json.Marshal(role.ModulePermissions)
	if err != nil {
		return CustomRole{}, fmt.Errorf("customroles: encode module permissions: %w", err)
	}
	const query = `
		UPDATE custom_roles
		SET name = $3, description = $4, system_permissions = $5, module_permissions = $6,
		    interface_access = $7, condition_template = $8, is_active = $9, updated_at = now()
		WHERE org_id = $1 AND slug = $2 AND deleted_at IS NULL
		RETURNING updated_at`
	err = r.pool.QueryRow(ctx, query,
		role.OrgID, role.Slug, role.Name, role.Description, role.SystemPermissions,
		modules, role.Interfaces, role.ConditionTemplate, role.Active).
		Scan(&role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomRole{}, shared.ErrRoleNotFound
		}
		return CustomRole{}, fmt.Errorf("customroles: update %s: %w", role.Slug, err)
	}
	return role, nil
}

// SoftDelete marks the role deleted and inactive.
func (r *Repository) SoftDelete(ctx context.Context, orgID int64, slug string) error {
	const query = `
		UPDATE custom_roles
		SET is_active = false, deleted_at = now(), updated_at = now()
		WHERE org_id = $1 AND slug = $2 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, orgID, slug)
	if err != nil {
		return fmt.Errorf("customroles: delete %s: %w", slug, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrRoleNotFound
	}
	return nil
}

// SystemPermissions satisfies the permission resolver's custom-role source.
func (r *Repository) SystemPermissions(ctx context.Context, orgID int64, slug string) ([]string, error) {
	role, err := r.FindBySlug(ctx, orgID, slug)
	if err != nil {
		if errors.Is(err, shared.ErrRoleNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !role.Active {
		return nil, nil
	}
	return role.SystemPermissions, nil
}

// ModulePermissions satisfies the permission resolver's custom-role source.
func (r *Repository) ModulePermissions(ctx context.Context, orgID int64, slug string) (map[string][]string, error) {
	role, err := r.FindBySlug(ctx, orgID, slug)
	if err != nil {
		if errors.Is(err, shared.ErrRoleNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !role.Active {
		return nil, nil
	}
	return role.ModulePermissions, nil
}
