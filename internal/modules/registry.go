// Package modules tracks which capability modules are active per tenant and
// the permission surface each module exposes. The authorization engine only
// consumes this state; activation itself is driven by billing elsewhere.
package modules

import "context"

// Registry reports per-tenant module activation and module permission
// surfaces.
type Registry interface {
	// IsActive reports whether module is currently active for the tenant.
	IsActive(ctx context.Context, orgID int64, module string) (bool, error)
	// Active lists the tenant's active module names.
	Active(ctx context.Context, orgID int64) ([]string, error)
	// Permissions lists the action permissions a module exposes,
	// independent of any tenant.
	Permissions(ctx context.Context, module string) ([]string, error)
}
