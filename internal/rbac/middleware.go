package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/nazrul121/customer-billing/internal/platform/httpx"
	"github.com/nazrul121/customer-billing/internal/shared"
)

// Middleware wires role based authorization helpers for HTTP handlers.
type Middleware struct {
	Logger     *slog.Logger
	UserHeader string
	RoleHeader string
}

// Authenticate lifts the identity forwarded by the upstream auth proxy into
// the request context. Requests without an identity pass through anonymous.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	userHeader := m.UserHeader
	if userHeader == "" {
		userHeader = "X-Auth-User"
	}
	roleHeader := m.RoleHeader
	if roleHeader == "" {
		roleHeader = "X-Auth-Role"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.Header.Get(userHeader))
		if name == "" {
			next.ServeHTTP(w, r)
			return
		}
		p := shared.Principal{Name: name, Role: normalize(r.Header.Get(roleHeader))}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

// Require ensures the current principal's role grants all capabilities.
func (m Middleware) Require(caps ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Sign in to continue.")
				return
			}
			if !Allowed(p.Role, caps...) {
				if m.Logger != nil {
					m.Logger.Warn("rbac denied", slog.String("user", p.Name), slog.String("role", p.Role), slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
