package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helios-suite/helios/internal/contexts"
	"github.com/helios-suite/helios/internal/platform/httpx"
)

// Handler exposes read access to the built-in role catalog.
type Handler struct {
	logger  *slog.Logger
	catalog *Catalog
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, catalog *Catalog) *Handler {
	return &Handler{logger: logger, catalog: catalog}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{slug}", h.get)
	r.Post("/reload", h.reload)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var (
		descriptors []Descriptor
		err         error
	)
	switch {
	case r.URL.Query().Get("interface") != "":
		descriptors, err = h.catalog.ByInterface(r.Context(), r.URL.Query().Get("interface"))
	case r.URL.Query().Get("context") != "":
		descriptors, err = h.catalog.ByContext(r.Context(), contexts.Kind(r.URL.Query().Get("context")))
	default:
		var all map[string]Descriptor
		all, err = h.catalog.All(r.Context())
		if err == nil {
			descriptors = make([]Descriptor, 0, len(all))
			for _, d := range all {
				descriptors = append(descriptors, d)
			}
		}
	}
	if err != nil {
		h.logger.Error("catalog list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": descriptors})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	desc, ok, err := h.catalog.Get(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.logger.Error("catalog get", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown role")
		return
	}
	httpx.JSON(w, http.StatusOK, desc)
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Reload(r.Context()); err != nil {
		h.logger.Error("catalog reload", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
