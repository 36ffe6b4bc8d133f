package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helios-suite/helios/internal/assignments"
	"github.com/helios-suite/helios/internal/conditions"
	"github.com/helios-suite/helios/internal/contexts"
	"github.com/helios-suite/helios/internal/platform/httpx"
	"github.com/helios-suite/helios/internal/shared"
)

// Handler exposes the engine's decision and assignment operations as JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Post("/manage-check", h.manageCheck)
	r.Post("/interface-check", h.interfaceCheck)
	r.Get("/users/{userID}/roles", h.userRoles)
	r.Get("/users/{userID}/permissions", h.userPermissions)
	r.Post("/assignments", h.assign)
	r.Delete("/assignments", h.revoke)
}

type scopePayload struct {
	OrgID     *int64 `json:"org_id,omitempty"`
	ProjectID *int64 `json:"project_id,omitempty"`
}

func (p scopePayload) hint() contexts.Hint {
	return contexts.Hint{OrgID: p.OrgID, ProjectID: p.ProjectID}
}

type checkRequest struct {
	UserID     int64          `json:"user_id"`
	Permission string         `json:"permission"`
	Scope      scopePayload   `json:"scope"`
	IP         string         `json:"ip,omitempty"`
	Region     string         `json:"region,omitempty"`
	Lat        *float64       `json:"lat,omitempty"`
	Lon        *float64       `json:"lon,omitempty"`
	Amount     *float64       `json:"amount,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if req.UserID <= 0 || req.Permission == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "user_id and permission are required")
		return
	}
	in := conditions.Input{
		IP:     req.IP,
		Region: req.Region,
		Lat:    req.Lat,
		Lon:    req.Lon,
		Amount: req.Amount,
		Attrs:  req.Attributes,
	}
	allowed, err := h.service.Can(r.Context(), req.UserID, req.Permission, req.Scope.hint(), in)
	if err != nil {
		h.logger.Error("authz check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

type manageCheckRequest struct {
	ManagerID int64        `json:"manager_id"`
	TargetID  int64        `json:"target_id"`
	Scope     scopePayload `json:"scope"`
}

func (h *Handler) manageCheck(w http.ResponseWriter, r *http.Request) {
	var req manageCheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	allowed, err := h.service.CanManageUser(r.Context(), req.ManagerID, req.TargetID, req.Scope.hint())
	if err != nil {
		h.logger.Error("authz manage check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

type interfaceCheckRequest struct {
	UserID    int64         `json:"user_id"`
	Interface string        `json:"interface"`
	Scope     *scopePayload `json:"scope,omitempty"`
}

func (h *Handler) interfaceCheck(w http.ResponseWriter, r *http.Request) {
	var req interfaceCheckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	var hint *contexts.Hint
	if req.Scope != nil {
		resolved := req.Scope.hint()
		hint = &resolved
	}
	allowed, err := h.service.CanAccessInterface(r.Context(), req.UserID, req.Interface, hint)
	if err != nil {
		h.logger.Error("authz interface check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

type assignmentView struct {
	ID        string     `json:"id"`
	RoleSlug  string     `json:"role_slug"`
	RoleType  string     `json:"role_type"`
	ContextID int64      `json:"context_id"`
	Kind      string     `json:"context_kind"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toView(a assignments.RoleAssignment) assignmentView {
	return assignmentView{
		ID:        a.ID.String(),
		RoleSlug:  a.RoleSlug,
		RoleType:  string(a.RoleType),
		ContextID: a.Context.ID,
		Kind:      string(a.Context.Kind),
		ExpiresAt: a.ExpiresAt,
		CreatedAt: a.CreatedAt,
	}
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	held, err := h.service.GetUserRoles(r.Context(), userID, queryHint(r))
	if err != nil {
		h.logger.Error("authz user roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]assignmentView, 0, len(held))
	for _, a := range held {
		views = append(views, toView(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	perms, err := h.service.GetUserPermissions(r.Context(), userID, queryHint(r))
	if err != nil {
		h.logger.Error("authz user permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func queryHint(r *http.Request) *contexts.Hint {
	var hint contexts.Hint
	found := false
	if raw := r.URL.Query().Get("org_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			hint.OrgID = &id
			found = true
		}
	}
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			hint.ProjectID = &id
			found = true
		}
	}
	if !found {
		return nil
	}
	return &hint
}

type assignRequest struct {
	UserID     int64        `json:"user_id"`
	RoleSlug   string       `json:"role_slug"`
	RoleType   string       `json:"role_type"`
	Scope      scopePayload `json:"scope"`
	AssignedBy *int64       `json:"assigned_by,omitempty"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	created, err := h.service.AssignRole(r.Context(), req.UserID, req.RoleSlug,
		assignments.RoleType(req.RoleType), req.Scope.hint(), req.AssignedBy, req.ExpiresAt)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrRoleNotFound):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Role", err.Error())
		case errors.Is(err, shared.ErrRoleInactive):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Role Inactive", err.Error())
		case errors.Is(err, shared.ErrUnknownProject):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Unknown Project", err.Error())
		default:
			h.logger.Error("authz assign", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(created))
}

type revokeRequest struct {
	UserID   int64        `json:"user_id"`
	RoleSlug string       `json:"role_slug"`
	Scope    scopePayload `json:"scope"`
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	revoked, err := h.service.RevokeRole(r.Context(), req.UserID, req.RoleSlug, req.Scope.hint())
	if err != nil {
		h.logger.Error("authz revoke", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}
