// Package rbac provides HTTP middleware that guards routes with the authorization evaluator.
package rbac

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/platform/reqctx"
)

// OrgParam is the chi URL parameter holding the organization ID.
const OrgParam = "orgID"

// Guard is implemented by *authz.Evaluator.
type Guard interface {
	RequireRole(ctx context.Context, userID, orgID string, roles []string, requireAll bool) error
	RequirePermission(ctx context.Context, userID, orgID, resource, action string) error
}

// ErrorWriter renders err as the response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Guards builds route middleware over one Guard.
type Guards struct {
	guard Guard
	write ErrorWriter
}

// New returns Guards that report failures with write.
func New(guard Guard, write ErrorWriter) *Guards {
	return &Guards{guard: guard, write: write}
}

// RequireOrgRole lets the request through when the caller holds any of roles in the route's organization.
func (g *Guards) RequireOrgRole(roles ...string) func(http.Handler) http.Handler {
	return g.requireRoles(roles, false)
}

// RequireAllOrgRoles lets the request through when the caller holds every one of roles.
func (g *Guards) RequireAllOrgRoles(roles ...string) func(http.Handler) http.Handler {
	return g.requireRoles(roles, true)
}

func (g *Guards) requireRoles(roles []string, requireAll bool) func(http.Handler) http.Handler {
	return g.check(func(r *http.Request, userID string) error {
		return g.guard.RequireRole(r.Context(), userID, chi.URLParam(r, OrgParam), roles, requireAll)
	})
}

// RequireOrgPermission lets the request through when the caller's permissions in the route's
// organization allow resource:action.
func (g *Guards) RequireOrgPermission(resource, action string) func(http.Handler) http.Handler {
	return g.check(func(r *http.Request, userID string) error {
		return g.guard.RequirePermission(r.Context(), userID, chi.URLParam(r, OrgParam), resource, action)
	})
}

// RequireGlobalPermission checks resource:action against global grants only. Super-admins always pass.
func (g *Guards) RequireGlobalPermission(resource, action string) func(http.Handler) http.Handler {
	return g.check(func(r *http.Request, userID string) error {
		return g.guard.RequirePermission(r.Context(), userID, "", resource, action)
	})
}

func (g *Guards) check(fn func(r *http.Request, userID string) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := reqctx.UserID(r.Context())
			if !ok {
				g.write(w, r, apperr.Unauthenticated("Authentification requise"))
				return
			}
			if err := fn(r, userID); err != nil {
				g.write(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
