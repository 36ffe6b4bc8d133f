package customroles

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helios-suite/helios/internal/contexts"
	"github.com/helios-suite/helios/internal/platform/httpx"
	"github.com/helios-suite/helios/internal/shared"
)

// Handler exposes tenant role management as JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	repo    *Repository
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, repo *Repository) *Handler {
	return &Handler{logger: logger, service: service, repo: repo}
}

// MountRoutes registers tenant role routes under /orgs/{orgID}/roles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orgs/{orgID}/roles", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Put("/{slug}", h.update)
		r.Delete("/{slug}", h.remove)
		r.Post("/{slug}/clone", h.clone)
		r.Post("/{slug}/assign", h.assign)
	})
}

func orgParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	return id, err == nil && id > 0
}

type roleView struct {
	Slug              string              `json:"slug"`
	Name              string              `json:"name"`
	Description       string              `json:"description,omitempty"`
	SystemPermissions []string            `json:"system_permissions"`
	ModulePermissions map[string][]string `json:"module_permissions,omitempty"`
	Interfaces        []string            `json:"interface_access"`
	Active            bool                `json:"is_active"`
}

func toRoleView(role CustomRole) roleView {
	return roleView{
		Slug:              role.Slug,
		Name:              role.Name,
		Description:       role.Description,
		SystemPermissions: role.SystemPermissions,
		ModulePermissions: role.ModulePermissions,
		Interfaces:        role.Interfaces,
		Active:            role.Active,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid organization id")
		return
	}
	roles, err := h.repo.ListForOrg(r.Context(), orgID)
	if err != nil {
		h.logger.Error("custom roles list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, toRoleView(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

type rolePayload struct {
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	SystemPermissions []string            `json:"system_permissions"`
	ModulePermissions map[string][]string `json:"module_permissions"`
	Interfaces        []string            `json:"interface_access"`
	ConditionTemplate json.RawMessage     `json:"conditions,omitempty"`
	CreatedBy         *int64              `json:"created_by,omitempty"`
}

func (p rolePayload) request(orgID int64) CreateRoleRequest {
	return CreateRoleRequest{
		OrgID:             orgID,
		Name:              p.Name,
		Description:       p.Description,
		SystemPermissions: p.SystemPermissions,
		ModulePermissions: p.ModulePermissions,
		Interfaces:        p.Interfaces,
		ConditionTemplate: p.ConditionTemplate,
		CreatedBy:         p.CreatedBy,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid organization id")
		return
	}
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	role, err := h.service.Create(r.Context(), payload.request(orgID))
	if err != nil {
		var fieldErrs FieldErrors
		if errors.As(err, &fieldErrs) {
			httpx.ValidationProblem(w, fieldErrs)
			return
		}
		h.logger.Error("custom role create", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleView(role))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid organization id")
		return
	}
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	role, err := h.service.Update(r.Context(), orgID, chi.URLParam(r, "slug"), payload.request(orgID))
	if err != nil {
		var fieldErrs FieldErrors
		if errors.As(err, &fieldErrs) {
			httpx.ValidationProblem(w, fieldErrs)
			return
		}
		if errors.Is(err, shared.ErrRoleNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
			return
		}
		h.logger.Error("custom role update", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid organization id")
		return
	}
	if err := h.service.Delete(r.Context(), orgID, chi.URLParam(r, "slug")); err != nil {
		if errors.Is(err, shared.ErrRoleNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
			return
		}
		h.logger.Error("custom role delete", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cloneRequest struct {
	TargetOrgID int64  `json:"target_org_id"`
	Rename      string `json:"rename,omitempty"`
}

func (h *Handler) clone(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid organization id")
		return
	}
	var req cloneRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.TargetOrgID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "target_org_id is required")
		return
	}
	role, err := h.service.Clone(r.Context(), orgID, chi.URLParam(r, "slug"), req.TargetOrgID, req.Rename)
	if err != nil {
		var fieldErrs FieldErrors
		if errors.As(err, &fieldErrs) {
			httpx.ValidationProblem(w, fieldErrs)
			return
		}
		if errors.Is(err, shared.ErrRoleNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
			return
		}
		h.logger.Error("custom role clone", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleView(role))
}

type assignUserRequest struct {
	UserID     int64      `json:"user_id"`
	ProjectID  *int64     `json:"project_id,omitempty"`
	AssignedBy *int64     `json:"assigned_by,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid organization id")
		return
	}
	var req assignUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.UserID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "user_id is required")
		return
	}
	hint := contexts.Hint{OrgID: &orgID, ProjectID: req.ProjectID}
	created, err := h.service.AssignToUser(r.Context(), orgID, req.UserID, chi.URLParam(r, "slug"), hint, req.AssignedBy, req.ExpiresAt)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrRoleNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
		case errors.Is(err, shared.ErrRoleInactive):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Role Inactive", "cannot assign a deactivated role")
		default:
			h.logger.Error("custom role assign", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"assignment_id": created.ID.String()})
}
