package customroles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/helios-suite/helios/internal/assignments"
	"github.com/helios-suite/helios/internal/contexts"
	"github.com/helios-suite/helios/internal/modules"
	"github.com/helios-suite/helios/internal/permissions"
	"github.com/helios-suite/helios/internal/shared"
)

// AssignmentCascader deactivates every assignment of one role. Implemented
// by the authorization service.
type AssignmentCascader interface {
	DeactivateRoleAssignments(ctx context.Context, orgID int64, roleType assignments.RoleType, slug string) (int64, error)
	AssignRole(ctx context.Context, userID int64, slug string, roleType assignments.RoleType, hint contexts.Hint, assignedBy *int64, expiresAt *time.Time) (assignments.RoleAssignment, error)
}

// Store is the persistence surface the service needs.
type Store interface {
	FindBySlug(ctx context.Context, orgID int64, slug string) (CustomRole, error)
	Create(ctx context.Context, role CustomRole) (CustomRole, error)
	Update(ctx context.Context, role CustomRole) (CustomRole, error)
	SoftDelete(ctx context.Context, orgID int64, slug string) error
}

// CreateRoleRequest carries the tenant's requested role shape.
type CreateRoleRequest struct {
	OrgID             int64    `validate:"required"`
	Name              string   `validate:"required,max=120"`
	Description       string   `validate:"max=500"`
	SystemPermissions []string `validate:"required"`
	ModulePermissions map[string][]string
	Interfaces        []string `validate:"required,min=1"`
	ConditionTemplate json.RawMessage
	CreatedBy         *int64
}

// Service validates and persists tenant-authored roles.
type Service struct {
	repo     Store
	registry modules.Registry
	cascade  AssignmentCascader
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Store, registry modules.Registry, cascade AssignmentCascader, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		cascade:  cascade,
		validate: validator.New(),
		logger:   logger,
	}
}

// Create validates the request against the tenant's entitlements and
// persists the role. Failures come back as FieldErrors, never as a bare
// rejection, so callers can surface per-field messages.
func (s *Service) Create(ctx context.Context, req CreateRoleRequest) (CustomRole, error) {
	if err := s.validate.Struct(req); err != nil {
		return CustomRole{}, structErrors(err)
	}
	fieldErrs := FieldErrors{}
	s.checkSystemPermissions(req.SystemPermissions, fieldErrs)
	s.checkInterfaces(req.Interfaces, fieldErrs)
	if err := s.checkModulePermissions(ctx, req.OrgID, req.ModulePermissions, fieldErrs); err != nil {
		return CustomRole{}, err
	}
	if fieldErrs.Any() {
		return CustomRole{}, fieldErrs
	}

	role := CustomRole{
		OrgID:             req.OrgID,
		Slug:              NormalizeSlug(req.Name),
		Name:              req.Name,
		Description:       req.Description,
		SystemPermissions: req.SystemPermissions,
		ModulePermissions: req.ModulePermissions,
		Interfaces:        req.Interfaces,
		ConditionTemplate: req.ConditionTemplate,
		CreatedBy:         req.CreatedBy,
	}
	created, err := s.repo.Create(ctx, role)
	if err != nil {
		return CustomRole{}, err
	}
	s.logger.Info("custom role created",
		slog.Int64("org_id", created.OrgID), slog.String("slug", created.Slug))
	return created, nil
}

// Update re-validates and rewrites an existing role.
func (s *Service) Update(ctx context.Context, orgID int64, slug string, req CreateRoleRequest) (CustomRole, error) {
	existing, err := s.repo.FindBySlug(ctx, orgID, slug)
	if err != nil {
		return CustomRole{}, err
	}
	req.OrgID = orgID
	if err := s.validate.Struct(req); err != nil {
		return CustomRole{}, structErrors(err)
	}
	fieldErrs := FieldErrors{}
	s.checkSystemPermissions(req.SystemPermissions, fieldErrs)
	s.checkInterfaces(req.Interfaces, fieldErrs)
	if err := s.checkModulePermissions(ctx, orgID, req.ModulePermissions, fieldErrs); err != nil {
		return CustomRole{}, err
	}
	if fieldErrs.Any() {
		return CustomRole{}, fieldErrs
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.SystemPermissions = req.SystemPermissions
	existing.ModulePermissions = req.ModulePermissions
	existing.Interfaces = req.Interfaces
	existing.ConditionTemplate = req.ConditionTemplate
	return s.repo.Update(ctx, existing)
}

// Delete soft-deletes the role and deactivates every assignment created from
// it.
func (s *Service) Delete(ctx context.Context, orgID int64, slug string) error {
	if err := s.repo.SoftDelete(ctx, orgID, slug); err != nil {
		return err
	}
	revoked, err := s.cascade.DeactivateRoleAssignments(ctx, orgID, assignments.RoleTypeCustom, slug)
	if err != nil {
		return fmt.Errorf("customroles: cascade delete %s: %w", slug, err)
	}
	s.logger.Info("custom role deleted",
		slog.Int64("org_id", orgID), slog.String("slug", slug), slog.Int64("assignments_revoked", revoked))
	return nil
}

// Clone copies a role's permission, interface and condition shape into
// another tenant, re-validating against the target tenant's entitlements.
func (s *Service) Clone(ctx context.Context, sourceOrgID int64, slug string, targetOrgID int64, rename string) (CustomRole, error) {
	source, err := s.repo.FindBySlug(ctx, sourceOrgID, slug)
	if err != nil {
		return CustomRole{}, err
	}
	name := source.Name
	if rename != "" {
		name = rename
	}
	return s.Create(ctx, CreateRoleRequest{
		OrgID:             targetOrgID,
		Name:              name,
		Description:       source.Description,
		SystemPermissions: source.SystemPermissions,
		ModulePermissions: source.ModulePermissions,
		Interfaces:        source.Interfaces,
		ConditionTemplate: source.ConditionTemplate,
	})
}

// AssignToUser assigns the custom role after confirming it is still active.
func (s *Service) AssignToUser(ctx context.Context, orgID, userID int64, slug string, hint contexts.Hint, assignedBy *int64, expiresAt *time.Time) (assignments.RoleAssignment, error) {
	role, err := s.repo.FindBySlug(ctx, orgID, slug)
	if err != nil {
		return assignments.RoleAssignment{}, err
	}
	if !role.Active {
		return assignments.RoleAssignment{}, shared.ErrRoleInactive
	}
	return s.cascade.AssignRole(ctx, userID, slug, assignments.RoleTypeCustom, hint, assignedBy, expiresAt)
}

func (s *Service) checkSystemPermissions(requested []string, fieldErrs FieldErrors) {
	allowed := make(map[string]struct{})
	for _, p := range shared.AssignableScopes() {
		allowed[p] = struct{}{}
	}
	for _, p := range requested {
		if _, ok := allowed[p]; !ok {
			fieldErrs.Add("system_permissions", fmt.Sprintf("permission %q is not assignable", p))
		}
	}
}

func (s *Service) checkInterfaces(requested []string, fieldErrs FieldErrors) {
	for _, tag := range requested {
		if !shared.ValidInterface(tag) {
			fieldErrs.Add("interface_access", fmt.Sprintf("unknown interface %q", tag))
		}
	}
}

// checkModulePermissions rejects modules that are not active for the tenant
// and permissions an active module does not declare. Wildcard requests are
// allowed as long as the module itself is active.
func (s *Service) checkModulePermissions(ctx context.Context, orgID int64, requested map[string][]string, fieldErrs FieldErrors) error {
	for module, perms := range requested {
		active, err := s.registry.IsActive(ctx, orgID, module)
		if err != nil {
			return fmt.Errorf("customroles: check module %s: %w", module, err)
		}
		if !active {
			fieldErrs.Add("module_permissions", fmt.Sprintf("module %q is not active for this organization", module))
			continue
		}
		declared, err := s.registry.Permissions(ctx, module)
		if err != nil {
			return fmt.Errorf("customroles: module %s permissions: %w", module, err)
		}
		for _, p := range perms {
			if p == "*" {
				continue
			}
			if !permissions.MatchAny(declared, p) {
				fieldErrs.Add("module_permissions", fmt.Sprintf("module %q does not expose permission %q", module, p))
			}
		}
	}
	return nil
}

var _ Store = (*Repository)(nil)

// structErrors converts validator output into FieldErrors.
func structErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fieldErrs := FieldErrors{}
	for _, fe := range verrs {
		fieldErrs.Add(NormalizeSlug(fe.Field()), fmt.Sprintf("failed %s validation", fe.Tag()))
	}
	return fieldErrs
}
