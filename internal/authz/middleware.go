package authz

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/helios-suite/helios/internal/conditions"
	"github.com/helios-suite/helios/internal/contexts"
)

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// WithChecker installs a fresh per-request decision memo. Mount it once at
// the top of the router; RequirePermission reuses the request's checker.
func (m Middleware) WithChecker(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ContextWithChecker(r.Context(), m.Service.Checker())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission guards a subtree behind one permission for the acting
// user identified by the X-Acting-User header, scoped by the optional
// X-Org-ID / X-Project-ID headers.
func (m Middleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := actingUser(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			hint := scopeHint(r)
			in := conditions.Input{IP: r.RemoteAddr}

			checker := CheckerFromContext(r.Context())
			var (
				allowed bool
				err     error
			)
			if checker != nil {
				allowed, err = checker.Can(r.Context(), userID, permission, hint, in)
			} else {
				allowed, err = m.Service.Can(r.Context(), userID, permission, hint, in)
			}
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authz require permission", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actingUser(r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-Acting-User")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func scopeHint(r *http.Request) contexts.Hint {
	var hint contexts.Hint
	if raw := r.Header.Get("X-Org-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			hint.OrgID = &id
		}
	}
	if raw := r.Header.Get("X-Project-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			hint.ProjectID = &id
		}
	}
	return hint
}
