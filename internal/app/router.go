package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helios-suite/helios/internal/auth"
	"github.com/helios-suite/helios/internal/authz"
	"github.com/helios-suite/helios/internal/catalog"
	"github.com/helios-suite/helios/internal/customroles"
	"github.com/helios-suite/helios/internal/modules"
	"github.com/helios-suite/helios/internal/observability"
	"github.com/helios-suite/helios/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthMiddleware     auth.Middleware
	AuthzMiddleware    authz.Middleware
	AuthzHandler       *authz.Handler
	CatalogHandler     *catalog.Handler
	CustomRolesHandler *customroles.Handler
	ModulesHandler     *modules.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Helios defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireToken)
		r.Use(params.AuthzMiddleware.WithChecker)

		r.Route("/authz", func(r chi.Router) {
			params.AuthzHandler.MountRoutes(r)
		})
		r.Route("/catalog/roles", func(r chi.Router) {
			params.CatalogHandler.MountRoutes(r)
		})
		params.CustomRolesHandler.MountRoutes(r)
		params.ModulesHandler.MountRoutes(r)
		r.Route("/jobs", params.JobHandler.MountRoutes)
	})

	return r
}
