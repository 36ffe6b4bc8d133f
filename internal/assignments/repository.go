package assignments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for role assignments and
// their attached conditions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assignmentColumns = `
	a.id, a.user_id, a.role_slug, a.role_type, a.is_active, a.expires_at, a.assigned_by, a.created_at,
	c.id, c.kind, c.resource_id, c.parent_id, c.created_at`

func scanAssignment(row interface{ Scan(...any) error }) (RoleAssignment, error) {
	var a RoleAssignment
	err := row.Scan(
		&a.ID, &a.UserID, &a.RoleSlug, &a.RoleType, &a.Active, &a.ExpiresAt, &a.AssignedBy, &a.CreatedAt,
		&a.Context.ID, &a.Context.Kind, &a.Context.ResourceID, &a.Context.ParentID, &a.Context.CreatedAt,
	)
	return a, err
}

// ListActiveForUser returns the user's in-effect assignments whose context is
// one of contextIDs, conditions attached, ordered by creation time.
func (r *Repository) ListActiveForUser(ctx context.Context, userID int64, contextIDs []int64) ([]RoleAssignment, error) {
	const query = `
		SELECT ` + assignmentColumns + `
		FROM role_assignments a
		JOIN auth_contexts c ON c.id = a.context_id
		WHERE a.user_id = $1
		  AND a.context_id = ANY($2)
		  AND a.is_active
		  AND (a.expires_at IS NULL OR a.expires_at > now())
		ORDER BY a.created_at`
	rows, err := r.pool.Query(ctx, query, userID, contextIDs)
	if err != nil {
		return nil, fmt.Errorf("assignments: list for user %d: %w", userID, err)
	}
	defer rows.Close()

	var list []RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("assignments: scan: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignments: list for user %d: %w", userID, err)
	}
	if err := r.attachConditions(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListAllActiveForUser returns every in-effect assignment the user holds,
// regardless of context.
func (r *Repository) ListAllActiveForUser(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	const query = `
		SELECT ` + assignmentColumns + `
		FROM role_assignments a
		JOIN auth_contexts c ON c.id = a.context_id
		WHERE a.user_id = $1
		  AND a.is_active
		  AND (a.expires_at IS NULL OR a.expires_at > now())
		ORDER BY a.created_at`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("assignments: list all for user %d: %w", userID, err)
	}
	defer rows.Close()

	var list []RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("assignments: scan: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assignments: list all for user %d: %w", userID, err)
	}
	if err := r.attachConditions(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// HasActive reports whether the user holds an in-effect assignment of the
// slug, optionally narrowed to one context.
func (r *Repository) HasActive(ctx context.Context, userID int64, roleSlug string, contextID *int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM role_assignments
			WHERE user_id = $1 AND role_slug = $2
			  AND ($3::bigint IS NULL OR context_id = $3)
			  AND is_active
			  AND (expires_at IS NULL OR expires_at > now())
		)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, roleSlug, contextID).Scan(&exists); err != nil {
		return false, fmt.Errorf("assignments: has active %s for user %d: %w", roleSlug, userID, err)
	}
	return exists, nil
}

func (r *Repository) attachConditions(ctx context.Context, list []RoleAssignment) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(list))
	index := make(map[uuid.UUID]int, len(list))
	for i, a := range list {
		ids[i] = a.ID
		index[a.ID] = i
	}
	const query = `
		SELECT id, assignment_id, condition_type, condition_data, is_active
		FROM role_conditions
		WHERE assignment_id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("assignments: load conditions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.ID, &c.AssignmentID, &c.Kind, &c.Data, &c.Active); err != nil {
			return fmt.Errorf("assignments: scan condition: %w", err)
		}
		i := index[c.AssignmentID]
		list[i].Conditions = append(list[i].Conditions, c)
	}
	return rows.Err()
}

// Create persists a new assignment with its conditions.
func (r *Repository) Create(ctx context.Context, a RoleAssignment) (RoleAssignment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	const query = `
		INSERT INTO role_assignments (id, user_id, role_slug, role_type, context_id, is_active, expires_at, assigned_by)
		VALUES ($1, $2, $3, $4, $5, true, $6, $7)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		a.ID, a.UserID, a.RoleSlug, a.RoleType, a.Context.ID, a.ExpiresAt, a.AssignedBy).
		Scan(&a.CreatedAt)
	if err != nil {
		return RoleAssignment{}, fmt.Errorf("assignments: create: %w", err)
	}
	a.Active = true
	for i := range a.Conditions {
		cond := &a.Conditions[i]
		if cond.ID == uuid.Nil {
			cond.ID = uuid.New()
		}
		cond.AssignmentID = a.ID
		const condQuery = `
			INSERT INTO role_conditions (id, assignment_id, condition_type, condition_data, is_active)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := r.pool.Exec(ctx, condQuery, cond.ID, cond.AssignmentID, cond.Kind, cond.Data, cond.Active); err != nil {
			return RoleAssignment{}, fmt.Errorf("assignments: create condition: %w", err)
		}
	}
	return a, nil
}

// Deactivate flips the matching active assignment off. Returns false when no
// active assignment matched.
func (r *Repository) Deactivate(ctx context.Context, userID int64, roleSlug string, contextID int64) (bool, error) {
	const query = `
		UPDATE role_assignments
		SET is_active = false, updated_at = now()
		WHERE user_id = $1 AND role_slug = $2 AND context_id = $3 AND is_active`
	tag, err := r.pool.Exec(ctx, query, userID, roleSlug, contextID)
	if err != nil {
		return false, fmt.Errorf("assignments: deactivate: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivateForRole disables every active assignment of one role within a
// tenant: the organization context itself plus every project context under
// it. Used when a custom role is deactivated or deleted.
func (r *Repository) DeactivateForRole(ctx context.Context, roleType RoleType, roleSlug string, orgContextID int64) (int64, error) {
	const query = `
		UPDATE role_assignments
		SET is_active = false, updated_at = now()
		WHERE role_type = $1 AND role_slug = $2 AND is_active
		  AND context_id IN (
			SELECT id FROM auth_contexts WHERE id = $3 OR parent_id = $3
		  )`
	tag, err := r.pool.Exec(ctx, query, roleType, roleSlug, orgContextID)
	if err != nil {
		return 0, fmt.Errorf("assignments: deactivate role %s: %w", roleSlug, err)
	}
	return tag.RowsAffected(), nil
}

// DeactivateExpired retires assignments whose expiry has passed. Expiry is
// already enforced on every read; this keeps the table tidy for reporting.
func (r *Repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE role_assignments
		SET is_active = false, updated_at = now()
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("assignments: deactivate expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
