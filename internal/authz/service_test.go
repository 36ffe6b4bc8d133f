package authz

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/helios-suite/helios/internal/assignments"
	"github.com/helios-suite/helios/internal/catalog"
	"github.com/helios-suite/helios/internal/conditions"
	"github.com/helios-suite/helios/internal/contexts"
	"github.com/helios-suite/helios/internal/customroles"
	"github.com/helios-suite/helios/internal/permissions"
	"github.com/helios-suite/helios/internal/shared"
)

// Fixed context topology: system(1) <- org7(2) <- project42(3), org8(4).
var (
	systemNode  = contexts.Context{ID: 1, Kind: contexts.KindSystem}
	org7Node    = contexts.Context{ID: 2, Kind: contexts.KindOrganization, ResourceID: 7, ParentID: int64p(1)}
	project42   = contexts.Context{ID: 3, Kind: contexts.KindProject, ResourceID: 42, ParentID: int64p(2)}
	org8Node    = contexts.Context{ID: 4, Kind: contexts.KindOrganization, ResourceID: 8, ParentID: int64p(1)}
)

func int64p(v int64) *int64 { return &v }

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, hint contexts.Hint) (contexts.Context, []contexts.Context, error) {
	switch {
	case hint.ProjectID != nil && *hint.ProjectID == 42:
		return project42, []contexts.Context{project42, org7Node, systemNode}, nil
	case hint.OrgID != nil && *hint.OrgID == 7:
		return org7Node, []contexts.Context{org7Node, systemNode}, nil
	case hint.OrgID != nil && *hint.OrgID == 8:
		return org8Node, []contexts.Context{org8Node, systemNode}, nil
	case hint.OrgID == nil && hint.ProjectID == nil:
		return systemNode, []contexts.Context{systemNode}, nil
	}
	return contexts.Context{}, nil, shared.ErrUnknownProject
}

func (fakeResolver) OrgID(_ context.Context, node contexts.Context) (int64, bool, error) {
	switch node.ID {
	case org7Node.ID:
		return 7, true, nil
	case org8Node.ID:
		return 8, true, nil
	case project42.ID:
		return 7, true, nil
	}
	return 0, false, nil
}

type fakeStore struct {
	assignments []assignments.RoleAssignment
	listCalls   int
	deactivated []string
}

func (f *fakeStore) ListActiveForUser(_ context.Context, userID int64, contextIDs []int64) ([]assignments.RoleAssignment, error) {
	f.listCalls++
	ids := make(map[int64]struct{}, len(contextIDs))
	for _, id := range contextIDs {
		ids[id] = struct{}{}
	}
	var out []assignments.RoleAssignment
	for _, a := range f.assignments {
		if a.UserID != userID || !a.InEffect(time.Now()) {
			continue
		}
		if _, ok := ids[a.Context.ID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAllActiveForUser(_ context.Context, userID int64) ([]assignments.RoleAssignment, error) {
	var out []assignments.RoleAssignment
	for _, a := range f.assignments {
		if a.UserID == userID && a.InEffect(time.Now()) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) HasActive(_ context.Context, userID int64, roleSlug string, contextID *int64) (bool, error) {
	for _, a := range f.assignments {
		if a.UserID != userID || a.RoleSlug != roleSlug || !a.InEffect(time.Now()) {
			continue
		}
		if contextID == nil || a.Context.ID == *contextID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Create(_ context.Context, a assignments.RoleAssignment) (assignments.RoleAssignment, error) {
	a.ID = uuid.New()
	a.Active = true
	f.assignments = append(f.assignments, a)
	return a, nil
}

func (f *fakeStore) Deactivate(_ context.Context, userID int64, roleSlug string, contextID int64) (bool, error) {
	for i, a := range f.assignments {
		if a.UserID == userID && a.RoleSlug == roleSlug && a.Context.ID == contextID && a.Active {
			f.assignments[i].Active = false
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) DeactivateForRole(_ context.Context, roleType assignments.RoleType, roleSlug string, orgContextID int64) (int64, error) {
	var n int64
	for i, a := range f.assignments {
		inScope := a.Context.ID == orgContextID || (a.Context.ParentID != nil && *a.Context.ParentID == orgContextID)
		if a.RoleType == roleType && a.RoleSlug == roleSlug && a.Active && inScope {
			f.assignments[i].Active = false
			f.deactivated = append(f.deactivated, a.RoleSlug)
			n++
		}
	}
	return n, nil
}

// fakePerms grants by pattern list per role slug.
type fakePerms struct {
	grants map[string][]string
}

func (f *fakePerms) HasPermission(_ context.Context, a assignments.RoleAssignment, permission string) (bool, error) {
	return permissions.MatchAny(f.grants[a.RoleSlug], permission), nil
}

func (f *fakePerms) RolePermissions(_ context.Context, _ assignments.RoleType, _ int64, slug string) ([]string, error) {
	return f.grants[slug], nil
}

// fakeConds denies assignments whose slug appears in deny.
type fakeConds struct {
	deny map[string]bool
}

func (f *fakeConds) EvaluateAssignment(_ context.Context, a assignments.RoleAssignment, _ conditions.Input) (bool, error) {
	return !f.deny[a.RoleSlug], nil
}

type fakeCatalog struct {
	descriptors map[string]catalog.Descriptor
}

func (f *fakeCatalog) Get(_ context.Context, slug string) (catalog.Descriptor, bool, error) {
	d, ok := f.descriptors[slug]
	return d, ok, nil
}

func (f *fakeCatalog) Exists(_ context.Context, slug string) (bool, error) {
	_, ok := f.descriptors[slug]
	return ok, nil
}

func (f *fakeCatalog) CanManage(_ context.Context, managerSlug, targetSlug string) (bool, error) {
	manager, ok := f.descriptors[managerSlug]
	if !ok {
		return false, nil
	}
	for _, denied := range manager.Hierarchy.CannotManage {
		if denied == "*" || denied == targetSlug {
			return false, nil
		}
	}
	for _, allowed := range manager.Hierarchy.CanManageRoles {
		if allowed == "*" || allowed == targetSlug {
			return true, nil
		}
	}
	return false, nil
}

type fakeCustomRoles struct {
	roles map[int64]map[string]customroles.CustomRole
}

func (f *fakeCustomRoles) FindBySlug(_ context.Context, orgID int64, slug string) (customroles.CustomRole, error) {
	role, ok := f.roles[orgID][slug]
	if !ok {
		return customroles.CustomRole{}, shared.ErrRoleNotFound
	}
	return role, nil
}

type fixture struct {
	service *Service
	store   *fakeStore
	conds   *fakeConds
	custom  *fakeCustomRoles
}

func newFixture() *fixture {
	store := &fakeStore{}
	conds := &fakeConds{deny: map[string]bool{}}
	custom := &fakeCustomRoles{roles: map[int64]map[string]customroles.CustomRole{}}
	cat := &fakeCatalog{descriptors: map[string]catalog.Descriptor{
		"organization_owner": {
			Name: "Organization Owner", Slug: "organization_owner",
			Context:         contexts.KindOrganization,
			InterfaceAccess: []string{shared.InterfaceAdmin},
			Hierarchy:       catalog.Hierarchy{CanManageRoles: []string{"*"}, CannotManage: []string{"system_admin"}},
		},
		"organization_admin": {
			Name: "Organization Admin", Slug: "organization_admin",
			Context:         contexts.KindOrganization,
			InterfaceAccess: []string{shared.InterfaceAdmin},
			Hierarchy:       catalog.Hierarchy{CanManageRoles: []string{"project_member"}},
		},
		"project_member": {
			Name: "Project Member", Slug: "project_member",
			Context:         contexts.KindProject,
			InterfaceAccess: []string{shared.InterfaceClient},
			Hierarchy:       catalog.Hierarchy{CannotManage: []string{"*"}},
		},
	}}
	perms := &fakePerms{grants: map[string][]string{
		"organization_owner": {"*"},
		"organization_admin": {"users.*", "reports.view"},
		"project_member":     {"tasks.view"},
		"support_agent":      {"tickets.view"},
	}}
	service := NewService(fakeResolver{}, store, perms, conds, cat, custom, nil, slog.Default())
	return &fixture{service: service, store: store, conds: conds, custom: custom}
}

func (f *fixture) grant(userID int64, slug string, node contexts.Context) {
	f.store.assignments = append(f.store.assignments, assignments.RoleAssignment{
		ID: uuid.New(), UserID: userID, RoleSlug: slug,
		RoleType: assignments.RoleTypeSystem, Context: node, Active: true,
	})
}

func TestCanInheritsThroughChain(t *testing.T) {
	f := newFixture()
	f.grant(100, "organization_admin", org7Node)

	// Checked at project scope: the org-level grant applies via ancestry.
	ok, err := f.service.Can(context.Background(), 100, "users.delete",
		contexts.Hint{ProjectID: int64p(42)}, conditions.Input{})
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if !ok {
		t.Fatal("organization grant must apply at project scope")
	}
}

func TestCanIsolatesTenants(t *testing.T) {
	f := newFixture()
	f.grant(100, "organization_admin", org7Node)

	ok, err := f.service.Can(context.Background(), 100, "users.delete",
		contexts.Hint{OrgID: int64p(8)}, conditions.Input{})
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if ok {
		t.Fatal("a grant in org 7 must not leak into org 8")
	}
}

func TestCanDenialIsNotAnError(t *testing.T) {
	f := newFixture()
	f.grant(100, "project_member", project42)

	ok, err := f.service.Can(context.Background(), 100, "billing.refund",
		contexts.Hint{ProjectID: int64p(42)}, conditions.Input{})
	if err != nil {
		t.Fatalf("denial must be boolean, got error %v", err)
	}
	if ok {
		t.Fatal("project_member does not hold billing.refund")
	}
}

func TestCanConditionFailureDenies(t *testing.T) {
	f := newFixture()
	f.grant(100, "organization_admin", org7Node)
	f.conds.deny["organization_admin"] = true

	ok, err := f.service.Can(context.Background(), 100, "users.view",
		contexts.Hint{OrgID: int64p(7)}, conditions.Input{})
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if ok {
		t.Fatal("failing conditions must deny despite the permission grant")
	}
}

func TestCanAnotherAssignmentRescues(t *testing.T) {
	f := newFixture()
	f.grant(100, "organization_admin", org7Node)
	f.grant(100, "organization_owner", org7Node)
	f.conds.deny["organization_admin"] = true

	ok, err := f.service.Can(context.Background(), 100, "users.view",
		contexts.Hint{OrgID: int64p(7)}, conditions.Input{})
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if !ok {
		t.Fatal("an unconditioned assignment granting the permission must pass")
	}
}

func TestExpiredAssignmentIgnored(t *testing.T) {
	f := newFixture()
	expired := time.Now().Add(-time.Hour)
	f.store.assignments = append(f.store.assignments, assignments.RoleAssignment{
		ID: uuid.New(), UserID: 100, RoleSlug: "organization_admin",
		RoleType: assignments.RoleTypeSystem, Context: org7Node,
		Active: true, ExpiresAt: &expired,
	})

	ok, err := f.service.Can(context.Background(), 100, "users.view",
		contexts.Hint{OrgID: int64p(7)}, conditions.Input{})
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if ok {
		t.Fatal("expired assignments grant nothing")
	}
}

func TestHasRole(t *testing.T) {
	f := newFixture()
	f.grant(100, "organization_admin", org7Node)

	ok, err := f.service.HasRole(context.Background(), 100, "organization_admin", nil)
	if err != nil || !ok {
		t.Fatalf("HasRole: ok=%v err=%v", ok, err)
	}

	ok, err = f.service.HasRole(context.Background(), 100, "organization_admin", int64p(org8Node.ID))
	if err != nil || ok {
		t.Fatalf("HasRole scoped to another context: ok=%v err=%v", ok, err)
	}
}

func TestGetUserPermissionsUnion(t *testing.T) {
	f := newFixture()
	f.grant(100, "organization_admin", org7Node)
	f.grant(100, "project_member", project42)

	perms, err := f.service.GetUserPermissions(context.Background(), 100, &contexts.Hint{ProjectID: int64p(42)})
	if err != nil {
		t.Fatalf("GetUserPermissions: %v", err)
	}
	want := map[string]bool{"users.*": true, "reports.view": true, "tasks.view": true}
	if len(perms) != len(want) {
		t.Fatalf("expected %d permissions, got %v", len(want), perms)
	}
	for _, p := range perms {
		if !want[p] {
			t.Fatalf("unexpected permission %q in %v", p, perms)
		}
	}
}

func TestAssignRoleUnknownSystemRole(t *testing.T) {
	f := newFixture()

	_, err := f.service.AssignRole(context.Background(), 100, "ghost_role",
		assignments.RoleTypeSystem, contexts.Hint{OrgID: int64p(7)}, nil, nil)
	if !errors.Is(err, shared.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestAssignRoleCopiesConditionTemplate(t *testing.T) {
	f := newFixture()
	template := json.RawMessage(`[
		{"condition_type": "time", "condition_data": {"working_hours": "09:00-18:00"}}
	]`)
	f.custom.roles[7] = map[string]customroles.CustomRole{
		"support_agent": {Slug: "support_agent", OrgID: 7, Active: true, ConditionTemplate: template},
	}

	created, err := f.service.AssignRole(context.Background(), 100, "support_agent",
		assignments.RoleTypeCustom, contexts.Hint{OrgID: int64p(7)}, nil, nil)
	if err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if len(created.Conditions) != 1 {
		t.Fatalf("expected the template condition to be copied, got %v", created.Conditions)
	}
	if created.Conditions[0].Kind != "time" || !created.Conditions[0].Active {
		t.Fatalf("unexpected condition %+v", created.Conditions[0])
	}
}

func TestAssignRoleInactiveCustomRole(t *testing.T) {
	f := newFixture()
	f.custom.roles[7] = map[string]customroles.CustomRole{
		"support_agent": {Slug: "support_agent", OrgID: 7, Active: false},
	}

	_, err := f.service.AssignRole(context.Background(), 100, "support_agent",
		assignments.RoleTypeCustom, contexts.Hint{OrgID: int64p(7)}, nil, nil)
	if !errors.Is(err, shared.ErrRoleInactive) {
		t.Fatalf("expected ErrRoleInactive, got %v", err)
	}
}

func TestAssignRoleCustomNeedsTenant(t *testing.T) {
	f := newFixture()

	_, err := f.service.AssignRole(context.Background(), 100, "support_agent",
		assignments.RoleTypeCustom, contexts.Hint{}, nil, nil)
	if !errors.Is(err, shared.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound for system-scoped custom assignment, got %v", err)
	}
}

func TestRevokeRoleIdempotent(t *testing.T) {
	f := newFixture()
	f.grant(100, "organization_admin", org7Node)

	revoked, err := f.service.RevokeRole(context.Background(), 100, "organization_admin", contexts.Hint{OrgID: int64p(7)})
	if err != nil || !revoked {
		t.Fatalf("first revoke: revoked=%v err=%v", revoked, err)
	}

	revoked, err = f.service.RevokeRole(context.Background(), 100, "organization_admin", contexts.Hint{OrgID: int64p(7)})
	if err != nil {
		t.Fatalf("second revoke must not error: %v", err)
	}
	if revoked {
		t.Fatal("second revoke reports false")
	}
}

func TestCanManageUser(t *testing.T) {
	f := newFixture()
	f.grant(1, "organization_owner", org7Node)
	f.grant(2, "organization_admin", org7Node)
	f.grant(3, "project_member", project42)

	hint := contexts.Hint{OrgID: int64p(7)}

	ok, err := f.service.CanManageUser(context.Background(), 1, 2, hint)
	if err != nil || !ok {
		t.Fatalf("owner should manage admin: ok=%v err=%v", ok, err)
	}

	// Admin may only manage project members; the owner is out of reach.
	ok, err = f.service.CanManageUser(context.Background(), 2, 1, hint)
	if err != nil || ok {
		t.Fatalf("admin must not manage owner: ok=%v err=%v", ok, err)
	}

	ok, err = f.service.CanManageUser(context.Background(), 2, 3, contexts.Hint{ProjectID: int64p(42)})
	if err != nil || !ok {
		t.Fatalf("admin should manage project member: ok=%v err=%v", ok, err)
	}
}

func TestCanAccessInterface(t *testing.T) {
	f := newFixture()
	f.grant(100, "project_member", project42)
	hint := contexts.Hint{ProjectID: int64p(42)}

	ok, err := f.service.CanAccessInterface(context.Background(), 100, shared.InterfaceClient, &hint)
	if err != nil || !ok {
		t.Fatalf("project_member exposes the client interface: ok=%v err=%v", ok, err)
	}

	ok, err = f.service.CanAccessInterface(context.Background(), 100, shared.InterfaceAdmin, &hint)
	if err != nil || ok {
		t.Fatalf("project_member must not reach the admin interface: ok=%v err=%v", ok, err)
	}
}

func TestCanAccessInterfaceCustomRole(t *testing.T) {
	f := newFixture()
	f.custom.roles[7] = map[string]customroles.CustomRole{
		"support_agent": {Slug: "support_agent", OrgID: 7, Active: true, Interfaces: []string{shared.InterfaceClient}},
	}
	f.store.assignments = append(f.store.assignments, assignments.RoleAssignment{
		ID: uuid.New(), UserID: 100, RoleSlug: "support_agent",
		RoleType: assignments.RoleTypeCustom, Context: org7Node, Active: true,
	})
	hint := contexts.Hint{OrgID: int64p(7)}

	ok, err := f.service.CanAccessInterface(context.Background(), 100, shared.InterfaceClient, &hint)
	if err != nil || !ok {
		t.Fatalf("custom role interface access: ok=%v err=%v", ok, err)
	}
}

func TestDeactivateRoleAssignmentsCascade(t *testing.T) {
	f := newFixture()
	f.store.assignments = append(f.store.assignments,
		assignments.RoleAssignment{
			ID: uuid.New(), UserID: 100, RoleSlug: "support_agent",
			RoleType: assignments.RoleTypeCustom, Context: org7Node, Active: true,
		},
		assignments.RoleAssignment{
			ID: uuid.New(), UserID: 101, RoleSlug: "support_agent",
			RoleType: assignments.RoleTypeCustom, Context: project42, Active: true,
		},
	)

	n, err := f.service.DeactivateRoleAssignments(context.Background(), 7, assignments.RoleTypeCustom, "support_agent")
	if err != nil {
		t.Fatalf("DeactivateRoleAssignments: %v", err)
	}
	if n != 2 {
		t.Fatalf("cascade must cover org and project contexts, got %d", n)
	}
}

func TestCheckerMemoizes(t *testing.T) {
	f := newFixture()
	f.grant(100, "organization_admin", org7Node)
	checker := f.service.Checker()
	hint := contexts.Hint{OrgID: int64p(7)}

	for i := 0; i < 3; i++ {
		ok, err := checker.Can(context.Background(), 100, "users.view", hint, conditions.Input{})
		if err != nil || !ok {
			t.Fatalf("checker Can: ok=%v err=%v", ok, err)
		}
	}
	if f.store.listCalls != 1 {
		t.Fatalf("expected one store walk for repeated checks, got %d", f.store.listCalls)
	}

	// A different scope is a different memo entry.
	if _, err := checker.Can(context.Background(), 100, "users.view", contexts.Hint{OrgID: int64p(8)}, conditions.Input{}); err != nil {
		t.Fatalf("checker Can: %v", err)
	}
	if f.store.listCalls != 2 {
		t.Fatalf("expected a fresh walk for a new scope, got %d", f.store.listCalls)
	}
}
