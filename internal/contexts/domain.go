package contexts

import "time"

// Kind is the level of a scoping context in the hierarchy.
type Kind string

const (
	KindSystem       Kind = "system"
	KindOrganization Kind = "organization"
	KindProject      Kind = "project"
)

// Valid reports whether k is one of the three known levels.
func (k Kind) Valid() bool {
	return k == KindSystem || k == KindOrganization || k == KindProject
}

// Context is a node in the system -> organization -> project scoping tree.
// Nodes are created idempotently by (kind, resource id) and never change
// shape afterwards.
type Context struct {
	ID         int64
	Kind       Kind
	ResourceID int64
	ParentID   *int64
	CreatedAt  time.Time
}

// IsSystem reports whether c is the singleton root context.
func (c Context) IsSystem() bool {
	return c.Kind == KindSystem
}

// Hint carries the raw scoping information supplied by a caller. A project
// hint wins over an organization hint; neither means the system context.
type Hint struct {
	OrgID     *int64
	ProjectID *int64
}
