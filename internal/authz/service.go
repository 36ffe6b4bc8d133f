// Package authz is the authorization façade: it resolves scoping contexts,
// walks the user's role assignments across the ancestor chain and combines
// permission resolution with ABAC condition evaluation into a single
// boolean decision.
package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helios-suite/helios/internal/assignments"
	"github.com/helios-suite/helios/internal/catalog"
	"github.com/helios-suite/helios/internal/conditions"
	"github.com/helios-suite/helios/internal/contexts"
	"github.com/helios-suite/helios/internal/customroles"
	"github.com/helios-suite/helios/internal/observability"
	"github.com/helios-suite/helios/internal/shared"
)

// ContextResolver builds context nodes and ancestor chains from scoping
// hints.
type ContextResolver interface {
	Resolve(ctx context.Context, hint contexts.Hint) (contexts.Context, []contexts.Context, error)
	OrgID(ctx context.Context, node contexts.Context) (int64, bool, error)
}

// AssignmentStore is the persistence surface for role assignments.
type AssignmentStore interface {
	ListActiveForUser(ctx context.Context, userID int64, contextIDs []int64) ([]assignments.RoleAssignment, error)
	ListAllActiveForUser(ctx context.Context, userID int64) ([]assignments.RoleAssignment, error)
	HasActive(ctx context.Context, userID int64, roleSlug string, contextID *int64) (bool, error)
	Create(ctx context.Context, a assignments.RoleAssignment) (assignments.RoleAssignment, error)
	Deactivate(ctx context.Context, userID int64, roleSlug string, contextID int64) (bool, error)
	DeactivateForRole(ctx context.Context, roleType assignments.RoleType, roleSlug string, orgContextID int64) (int64, error)
}

// PermissionChecker answers membership and enumeration queries over a role's
// merged permission surface.
type PermissionChecker interface {
	HasPermission(ctx context.Context, a assignments.RoleAssignment, permission string) (bool, error)
	RolePermissions(ctx context.Context, roleType assignments.RoleType, orgID int64, slug string) ([]string, error)
}

// ConditionEvaluator applies an assignment's ABAC conditions.
type ConditionEvaluator interface {
	EvaluateAssignment(ctx context.Context, a assignments.RoleAssignment, in conditions.Input) (bool, error)
}

// RoleCatalog is the slice of the descriptor catalog the façade needs.
type RoleCatalog interface {
	Get(ctx context.Context, slug string) (catalog.Descriptor, bool, error)
	Exists(ctx context.Context, slug string) (bool, error)
	CanManage(ctx context.Context, managerSlug, targetSlug string) (bool, error)
}

// CustomRoleLookup finds a tenant role for assignment validation.
type CustomRoleLookup interface {
	FindBySlug(ctx context.Context, orgID int64, slug string) (customroles.CustomRole, error)
}

// Service implements the caller-facing authorization operations.
type Service struct {
	resolver    ContextResolver
	store       AssignmentStore
	perms       PermissionChecker
	conds       ConditionEvaluator
	catalog     RoleCatalog
	customRoles CustomRoleLookup
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewService constructs the façade.
func NewService(
	resolver ContextResolver,
	store AssignmentStore,
	perms PermissionChecker,
	conds ConditionEvaluator,
	cat RoleCatalog,
	customRoles CustomRoleLookup,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		resolver:    resolver,
		store:       store,
		perms:       perms,
		conds:       conds,
		catalog:     cat,
		customRoles: customRoles,
		metrics:     metrics,
		logger:      logger,
	}
}

// Can reports whether the user holds permission within the hinted scope. The
// check walks the context's full ancestor chain: a grant at any ancestor
// level is sufficient. Denial is a boolean false, never an error; errors are
// reserved for store failures.
func (s *Service) Can(ctx context.Context, userID int64, permission string, hint contexts.Hint, in conditions.Input) (bool, error) {
	started := time.Now()
	allowed, err := s.can(ctx, userID, permission, hint, in)
	if s.metrics != nil && err == nil {
		s.metrics.ObserveDecision(allowed, time.Since(started))
	}
	return allowed, err
}

func (s *Service) can(ctx context.Context, userID int64, permission string, hint contexts.Hint, in conditions.Input) (bool, error) {
	held, err := s.assignmentsForHint(ctx, userID, hint)
	if err != nil {
		return false, err
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	in.UserID = userID

	for _, a := range held {
		granted, err := s.perms.HasPermission(ctx, a, permission)
		if err != nil {
			return false, err
		}
		if !granted {
			continue
		}
		passed, err := s.conds.EvaluateAssignment(ctx, a, in)
		if err != nil {
			return false, err
		}
		if passed {
			return true, nil
		}
	}
	return false, nil
}

// assignmentsForHint resolves the hint's ancestor chain and loads the user's
// in-effect assignments attached anywhere along it.
func (s *Service) assignmentsForHint(ctx context.Context, userID int64, hint contexts.Hint) ([]assignments.RoleAssignment, error) {
	_, chain, err := s.resolver.Resolve(ctx, hint)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(chain))
	for i, node := range chain {
		ids[i] = node.ID
	}
	return s.store.ListActiveForUser(ctx, userID, ids)
}

// HasRole reports whether the user holds an in-effect assignment of slug,
// optionally scoped to one context ID.
func (s *Service) HasRole(ctx context.Context, userID int64, slug string, contextID *int64) (bool, error) {
	return s.store.HasActive(ctx, userID, slug, contextID)
}

// GetUserRoles lists the user's in-effect assignments. With a hint the list
// is restricted to the hint's ancestor chain.
func (s *Service) GetUserRoles(ctx context.Context, userID int64, hint *contexts.Hint) ([]assignments.RoleAssignment, error) {
	if hint == nil {
		return s.store.ListAllActiveForUser(ctx, userID)
	}
	return s.assignmentsForHint(ctx, userID, *hint)
}

// GetUserPermissions returns the union of every held role's full permission
// surface, module wildcards in "module.*" form.
func (s *Service) GetUserPermissions(ctx context.Context, userID int64, hint *contexts.Hint) ([]string, error) {
	held, err := s.GetUserRoles(ctx, userID, hint)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var union []string
	for _, a := range held {
		orgID, _, err := s.resolver.OrgID(ctx, a.Context)
		if err != nil {
			return nil, err
		}
		perms, err := s.perms.RolePermissions(ctx, a.RoleType, orgID, a.RoleSlug)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			union = append(union, p)
		}
	}
	return union, nil
}

// conditionTemplate is the persisted shape of a custom role's embedded
// condition block: a list of typed condition payloads.
type conditionTemplate []struct {
	Type string          `json:"condition_type"`
	Data json.RawMessage `json:"condition_data"`
}

// AssignRole validates that slug names an existing role of the claimed type,
// then creates the assignment at the hint's leaf context. Assigning a custom
// role copies the role's condition template onto the assignment.
func (s *Service) AssignRole(ctx context.Context, userID int64, slug string, roleType assignments.RoleType, hint contexts.Hint, assignedBy *int64, expiresAt *time.Time) (assignments.RoleAssignment, error) {
	if !roleType.Valid() {
		return assignments.RoleAssignment{}, fmt.Errorf("authz: invalid role type %q: %w", roleType, shared.ErrRoleNotFound)
	}
	node, _, err := s.resolver.Resolve(ctx, hint)
	if err != nil {
		return assignments.RoleAssignment{}, err
	}

	var conds []assignments.Condition
	switch roleType {
	case assignments.RoleTypeSystem:
		exists, err := s.catalog.Exists(ctx, slug)
		if err != nil {
			return assignments.RoleAssignment{}, err
		}
		if !exists {
			return assignments.RoleAssignment{}, fmt.Errorf("authz: system role %q: %w", slug, shared.ErrRoleNotFound)
		}
	case assignments.RoleTypeCustom:
		orgID, found, err := s.resolver.OrgID(ctx, node)
		if err != nil {
			return assignments.RoleAssignment{}, err
		}
		if !found {
			return assignments.RoleAssignment{}, fmt.Errorf("authz: custom role %q needs a tenant context: %w", slug, shared.ErrRoleNotFound)
		}
		role, err := s.customRoles.FindBySlug(ctx, orgID, slug)
		if err != nil {
			return assignments.RoleAssignment{}, err
		}
		if !role.Active {
			return assignments.RoleAssignment{}, shared.ErrRoleInactive
		}
		conds = templateConditions(role.ConditionTemplate, s.logger)
	}

	created, err := s.store.Create(ctx, assignments.RoleAssignment{
		UserID:     userID,
		RoleSlug:   slug,
		RoleType:   roleType,
		Context:    node,
		ExpiresAt:  expiresAt,
		AssignedBy: assignedBy,
		Conditions: conds,
	})
	if err != nil {
		return assignments.RoleAssignment{}, err
	}
	s.logger.Info("role assigned",
		slog.Int64("user_id", userID), slog.String("slug", slug),
		slog.String("type", string(roleType)), slog.Int64("context_id", node.ID))
	return created, nil
}

func templateConditions(template json.RawMessage, logger *slog.Logger) []assignments.Condition {
	if len(template) == 0 {
		return nil
	}
	var parsed conditionTemplate
	if err := json.Unmarshal(template, &parsed); err != nil {
		logger.Warn("authz: malformed condition template, assigning without conditions", slog.Any("error", err))
		return nil
	}
	conds := make([]assignments.Condition, 0, len(parsed))
	for _, t := range parsed {
		conds = append(conds, assignments.Condition{
			ID:     uuid.New(),
			Kind:   t.Type,
			Data:   t.Data,
			Active: true,
		})
	}
	return conds
}

// RevokeRole deactivates the matching active assignment at the hint's leaf
// context. A missing assignment is reported as false, not an error, so
// callers can treat revocation as idempotent.
func (s *Service) RevokeRole(ctx context.Context, userID int64, slug string, hint contexts.Hint) (bool, error) {
	node, _, err := s.resolver.Resolve(ctx, hint)
	if err != nil {
		return false, err
	}
	revoked, err := s.store.Deactivate(ctx, userID, slug, node.ID)
	if err != nil {
		return false, err
	}
	if revoked {
		s.logger.Info("role revoked",
			slog.Int64("user_id", userID), slog.String("slug", slug), slog.Int64("context_id", node.ID))
	}
	return revoked, nil
}

// CanManageUser reports whether some pair of (manager role, target role)
// among the two users' in-effect roles in scope satisfies the catalog's
// management hierarchy.
func (s *Service) CanManageUser(ctx context.Context, managerID, targetID int64, hint contexts.Hint) (bool, error) {
	managerRoles, err := s.assignmentsForHint(ctx, managerID, hint)
	if err != nil {
		return false, err
	}
	targetRoles, err := s.assignmentsForHint(ctx, targetID, hint)
	if err != nil {
		return false, err
	}
	for _, m := range managerRoles {
		for _, t := range targetRoles {
			ok, err := s.catalog.CanManage(ctx, m.RoleSlug, t.RoleSlug)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// CanAccessInterface reports whether any held role exposes the given
// client-interface tag.
func (s *Service) CanAccessInterface(ctx context.Context, userID int64, tag string, hint *contexts.Hint) (bool, error) {
	held, err := s.GetUserRoles(ctx, userID, hint)
	if err != nil {
		return false, err
	}
	for _, a := range held {
		switch a.RoleType {
		case assignments.RoleTypeSystem:
			desc, ok, err := s.catalog.Get(ctx, a.RoleSlug)
			if err != nil {
				return false, err
			}
			if ok && desc.HasInterface(tag) {
				return true, nil
			}
		case assignments.RoleTypeCustom:
			orgID, found, err := s.resolver.OrgID(ctx, a.Context)
			if err != nil {
				return false, err
			}
			if !found {
				continue
			}
			role, err := s.customRoles.FindBySlug(ctx, orgID, a.RoleSlug)
			if err != nil {
				if errors.Is(err, shared.ErrRoleNotFound) {
					continue
				}
				return false, err
			}
			for _, t := range role.Interfaces {
				if t == tag {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// DeactivateRoleAssignments disables every active assignment of a role
// within one tenant's contexts. Used by the custom-role delete cascade.
func (s *Service) DeactivateRoleAssignments(ctx context.Context, orgID int64, roleType assignments.RoleType, slug string) (int64, error) {
	org, _, err := s.resolver.Resolve(ctx, contexts.Hint{OrgID: &orgID})
	if err != nil {
		return 0, err
	}
	return s.store.DeactivateForRole(ctx, roleType, slug, org.ID)
}
