package modules

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helios-suite/helios/internal/platform/httpx"
)

// Handler exposes tenant module activation as JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	registry Registry
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, registry Registry) *Handler {
	return &Handler{logger: logger, service: service, registry: registry}
}

// MountRoutes registers module routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orgs/{orgID}/modules", func(r chi.Router) {
		r.Get("/", h.list)
		r.Put("/{module}/activate", h.activate)
		r.Put("/{module}/deactivate", h.deactivate)
	})
	r.Put("/modules/{module}/permissions", h.syncPermissions)
}

func (h *Handler) orgParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid organization id")
		return
	}
	active, err := h.registry.Active(r.Context(), orgID)
	if err != nil {
		h.logger.Error("modules list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"active": active})
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	orgID, ok := h.orgParam(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid organization id")
		return
	}
	module := chi.URLParam(r, "module")
	var err error
	if active {
		err = h.service.Activate(r.Context(), orgID, module)
	} else {
		err = h.service.Deactivate(r.Context(), orgID, module)
	}
	if err != nil {
		h.logger.Error("module activation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"module": module, "is_active": active})
}

type syncPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (h *Handler) syncPermissions(w http.ResponseWriter, r *http.Request) {
	var req syncPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	module := chi.URLParam(r, "module")
	if err := h.service.SyncRolePermissions(r.Context(), module, req.Permissions); err != nil {
		h.logger.Error("module permission sync", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
