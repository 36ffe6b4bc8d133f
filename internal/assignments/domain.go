package assignments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/helios-suite/helios/internal/contexts"
)

// RoleType discriminates between built-in catalog roles and tenant-authored
// custom roles.
type RoleType string

const (
	RoleTypeSystem RoleType = "system"
	RoleTypeCustom RoleType = "custom"
)

// Valid reports whether t is a known role type.
func (t RoleType) Valid() bool {
	return t == RoleTypeSystem || t == RoleTypeCustom
}

// Condition is an ABAC predicate attached to one role assignment. The
// payload shape depends on Kind; evaluation lives in the conditions package.
type Condition struct {
	ID           uuid.UUID
	AssignmentID uuid.UUID
	Kind         string
	Data         json.RawMessage
	Active       bool
}

// RoleAssignment ties a user to a role within one scoping context.
// Assignments are never hard-deleted; revocation flips Active off so the
// audit trail survives.
type RoleAssignment struct {
	ID         uuid.UUID
	UserID     int64
	RoleSlug   string
	RoleType   RoleType
	Context    contexts.Context
	Active     bool
	ExpiresAt  *time.Time
	AssignedBy *int64
	CreatedAt  time.Time
	Conditions []Condition
}

// InEffect reports whether the assignment currently grants anything: it must
// be active and not past its expiry.
func (a RoleAssignment) InEffect(now time.Time) bool {
	if !a.Active {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// ActiveConditions filters the attached conditions down to the ones that
// participate in evaluation.
func (a RoleAssignment) ActiveConditions() []Condition {
	var out []Condition
	for _, c := range a.Conditions {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}
