package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/helios-suite/helios/internal/assignments"
	"github.com/helios-suite/helios/internal/contexts"
)

// RoleSource yields the permission surface of a role by slug. The catalog
// serves system roles; the custom-role store serves tenant roles.
type RoleSource interface {
	SystemPermissions(ctx context.Context, slug string) ([]string, error)
	ModulePermissions(ctx context.Context, slug string) (map[string][]string, error)
}

// CustomRoleSource is RoleSource scoped to one tenant: custom role slugs are
// only unique within their organization.
type CustomRoleSource interface {
	SystemPermissions(ctx context.Context, orgID int64, slug string) ([]string, error)
	ModulePermissions(ctx context.Context, orgID int64, slug string) (map[string][]string, error)
}

// ModuleGate reports per-tenant module activation.
type ModuleGate interface {
	IsActive(ctx context.Context, orgID int64, module string) (bool, error)
}

// OrgResolver derives the owning organization of a context node by walking
// its ancestry.
type OrgResolver interface {
	OrgID(ctx context.Context, node contexts.Context) (int64, bool, error)
}

// Resolver merges a role's system and module permissions and answers
// membership queries for role assignments.
type Resolver struct {
	system RoleSource
	custom CustomRoleSource
	gate   ModuleGate
	orgs   OrgResolver
	logger *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(system RoleSource, custom CustomRoleSource, gate ModuleGate, orgs OrgResolver, logger *slog.Logger) *Resolver {
	return &Resolver{system: system, custom: custom, gate: gate, orgs: orgs, logger: logger}
}

// HasPermission reports whether the assignment grants permission, either as
// a system permission or as a module permission gated by tenant activation.
func (r *Resolver) HasPermission(ctx context.Context, a assignments.RoleAssignment, permission string) (bool, error) {
	ok, err := r.HasSystemPermission(ctx, a, permission)
	if err != nil || ok {
		return ok, err
	}
	return r.HasModulePermission(ctx, a, permission)
}

// HasSystemPermission checks permission against the role's system permission
// patterns.
func (r *Resolver) HasSystemPermission(ctx context.Context, a assignments.RoleAssignment, permission string) (bool, error) {
	held, err := r.systemPermissions(ctx, a)
	if err != nil {
		return false, err
	}
	return MatchAny(held, permission), nil
}

// HasModulePermission checks a module-scoped permission. It fails closed on
// a dotless permission and on modules inactive for the assignment's tenant.
func (r *Resolver) HasModulePermission(ctx context.Context, a assignments.RoleAssignment, permission string) (bool, error) {
	module, action, ok := SplitModule(permission)
	if !ok {
		return false, nil
	}

	orgID, found, err := r.orgs.OrgID(ctx, a.Context)
	if err != nil {
		return false, err
	}
	if !found {
		// System-scoped assignments have no tenant, so no active modules.
		r.logger.Debug("module permission denied outside tenant scope",
			slog.String("role", a.RoleSlug), slog.String("permission", permission))
		return false, nil
	}
	active, err := r.gate.IsActive(ctx, orgID, module)
	if err != nil {
		return false, err
	}
	if !active {
		r.logger.Debug("module permission denied for inactive module",
			slog.Int64("org_id", orgID), slog.String("module", module))
		return false, nil
	}

	held, err := r.modulePermissions(ctx, a)
	if err != nil {
		return false, err
	}
	return MatchAny(held[module], action), nil
}

func (r *Resolver) systemPermissions(ctx context.Context, a assignments.RoleAssignment) ([]string, error) {
	switch a.RoleType {
	case assignments.RoleTypeSystem:
		return r.system.SystemPermissions(ctx, a.RoleSlug)
	case assignments.RoleTypeCustom:
		orgID, _, err := r.orgs.OrgID(ctx, a.Context)
		if err != nil {
			return nil, err
		}
		return r.custom.SystemPermissions(ctx, orgID, a.RoleSlug)
	default:
		return nil, fmt.Errorf("permissions: unknown role type %q", a.RoleType)
	}
}

func (r *Resolver) modulePermissions(ctx context.Context, a assignments.RoleAssignment) (map[string][]string, error) {
	switch a.RoleType {
	case assignments.RoleTypeSystem:
		return r.system.ModulePermissions(ctx, a.RoleSlug)
	case assignments.RoleTypeCustom:
		orgID, _, err := r.orgs.OrgID(ctx, a.Context)
		if err != nil {
			return nil, err
		}
		return r.custom.ModulePermissions(ctx, orgID, a.RoleSlug)
	default:
		return nil, fmt.Errorf("permissions: unknown role type %q", a.RoleType)
	}
}

// RolePermissions flattens a role's full permission surface into one
// de-duplicated sorted list for enumeration and display. Module wildcards
// surface as "module.*". Not used on the hot check path.
func (r *Resolver) RolePermissions(ctx context.Context, roleType assignments.RoleType, orgID int64, slug string) ([]string, error) {
	var (
		system []string
		mods   map[string][]string
		err    error
	)
	switch roleType {
	case assignments.RoleTypeSystem:
		if system, err = r.system.SystemPermissions(ctx, slug); err != nil {
			return nil, err
		}
		if mods, err = r.system.ModulePermissions(ctx, slug); err != nil {
			return nil, err
		}
	case assignments.RoleTypeCustom:
		if system, err = r.custom.SystemPermissions(ctx, orgID, slug); err != nil {
			return nil, err
		}
		if mods, err = r.custom.ModulePermissions(ctx, orgID, slug); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("permissions: unknown role type %q", roleType)
	}

	seen := make(map[string]struct{})
	for _, p := range system {
		seen[p] = struct{}{}
	}
	for module, actions := range mods {
		for _, action := range actions {
			seen[module+"."+action] = struct{}{}
		}
	}
	flat := make([]string, 0, len(seen))
	for p := range seen {
		flat = append(flat, p)
	}
	sort.Strings(flat)
	return flat, nil
}
