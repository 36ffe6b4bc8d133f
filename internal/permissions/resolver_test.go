package permissions

import (
	"context"
	"log/slog"
	"testing"

	"github.com/helios-suite/helios/internal/assignments"
	"github.com/helios-suite/helios/internal/contexts"
)

type fakeRoleSource struct {
	system  map[string][]string
	modules map[string]map[string][]string
}

func (f *fakeRoleSource) SystemPermissions(_ context.Context, slug string) ([]string, error) {
	return f.system[slug], nil
}

func (f *fakeRoleSource) ModulePermissions(_ context.Context, slug string) (map[string][]string, error) {
	return f.modules[slug], nil
}

type fakeCustomSource struct {
	system  map[string][]string
	modules map[string]map[string][]string
}

func (f *fakeCustomSource) SystemPermissions(_ context.Context, _ int64, slug string) ([]string, error) {
	return f.system[slug], nil
}

func (f *fakeCustomSource) ModulePermissions(_ context.Context, _ int64, slug string) (map[string][]string, error) {
	return f.modules[slug], nil
}

type fakeGate struct {
	active map[string]bool
	calls  int
}

func (f *fakeGate) IsActive(_ context.Context, _ int64, module string) (bool, error) {
	f.calls++
	return f.active[module], nil
}

type fakeOrgs struct {
	orgID int64
	found bool
}

func (f *fakeOrgs) OrgID(_ context.Context, _ contexts.Context) (int64, bool, error) {
	return f.orgID, f.found, nil
}

func orgAssignment(slug string, roleType assignments.RoleType) assignments.RoleAssignment {
	return assignments.RoleAssignment{
		RoleSlug: slug,
		RoleType: roleType,
		Context:  contexts.Context{ID: 2, Kind: contexts.KindOrganization, ResourceID: 1},
		Active:   true,
	}
}

func newTestResolver(gate *fakeGate, orgs *fakeOrgs) *Resolver {
	system := &fakeRoleSource{
		system: map[string][]string{
			"organization_admin": {"users.*", "reports.view"},
		},
		modules: map[string]map[string][]string{
			"organization_admin": {"billing": {"view", "refund"}},
		},
	}
	custom := &fakeCustomSource{
		system: map[string][]string{
			"support_agent": {"tickets.view"},
		},
		modules: map[string]map[string][]string{
			"support_agent": {"crm": {"*"}},
		},
	}
	return NewResolver(system, custom, gate, orgs, slog.Default())
}

func TestHasPermissionSystemWildcard(t *testing.T) {
	r := newTestResolver(&fakeGate{}, &fakeOrgs{orgID: 1, found: true})
	a := orgAssignment("organization_admin", assignments.RoleTypeSystem)

	ok, err := r.HasPermission(context.Background(), a, "users.delete")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Fatal("users.* should grant users.delete")
	}
}

func TestHasModulePermissionGated(t *testing.T) {
	gate := &fakeGate{active: map[string]bool{"billing": true}}
	r := newTestResolver(gate, &fakeOrgs{orgID: 1, found: true})
	a := orgAssignment("organization_admin", assignments.RoleTypeSystem)

	ok, err := r.HasPermission(context.Background(), a, "billing.refund")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Fatal("active module permission should be granted")
	}

	// Deactivate the module: the same permission fails closed.
	gate.active["billing"] = false
	ok, err = r.HasPermission(context.Background(), a, "billing.refund")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if ok {
		t.Fatal("inactive module must deny")
	}
}

func TestHasModulePermissionNoTenant(t *testing.T) {
	gate := &fakeGate{active: map[string]bool{"billing": true}}
	r := newTestResolver(gate, &fakeOrgs{found: false})
	a := assignments.RoleAssignment{
		RoleSlug: "organization_admin",
		RoleType: assignments.RoleTypeSystem,
		Context:  contexts.Context{ID: 1, Kind: contexts.KindSystem},
	}

	ok, err := r.HasModulePermission(context.Background(), a, "billing.view")
	if err != nil {
		t.Fatalf("HasModulePermission: %v", err)
	}
	if ok {
		t.Fatal("assignment without a tenant has no active modules")
	}
	if gate.calls != 0 {
		t.Fatal("gate should not be consulted without a tenant")
	}
}

func TestHasModulePermissionDotless(t *testing.T) {
	r := newTestResolver(&fakeGate{active: map[string]bool{"billing": true}}, &fakeOrgs{orgID: 1, found: true})
	a := orgAssignment("organization_admin", assignments.RoleTypeSystem)

	ok, err := r.HasModulePermission(context.Background(), a, "billing")
	if err != nil {
		t.Fatalf("HasModulePermission: %v", err)
	}
	if ok {
		t.Fatal("dotless permission must fail closed")
	}
}

func TestHasPermissionCustomRole(t *testing.T) {
	gate := &fakeGate{active: map[string]bool{"crm": true}}
	r := newTestResolver(gate, &fakeOrgs{orgID: 1, found: true})
	a := orgAssignment("support_agent", assignments.RoleTypeCustom)

	ok, err := r.HasPermission(context.Background(), a, "crm.anything")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Fatal("module wildcard should grant any action")
	}

	ok, err = r.HasPermission(context.Background(), a, "tickets.view")
	if err != nil {
		t.Fatalf("HasPermission: %v", err)
	}
	if !ok {
		t.Fatal("custom system permission should be granted")
	}
}

func TestRolePermissionsFlattens(t *testing.T) {
	r := newTestResolver(&fakeGate{}, &fakeOrgs{orgID: 1, found: true})

	perms, err := r.RolePermissions(context.Background(), assignments.RoleTypeSystem, 0, "organization_admin")
	if err != nil {
		t.Fatalf("RolePermissions: %v", err)
	}
	want := []string{"billing.refund", "billing.view", "reports.view", "users.*"}
	if len(perms) != len(want) {
		t.Fatalf("expected %d permissions, got %v", len(want), perms)
	}
	for i, p := range want {
		if perms[i] != p {
			t.Fatalf("expected %v, got %v", want, perms)
		}
	}
}
