// Package server exposes the control plane over HTTP (chi) and gRPC (health only).
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	auditdomain "saas-control-plane/backend/internal/audit/domain"
	"saas-control-plane/backend/internal/authz"
	"saas-control-plane/backend/internal/health"
	membershipdomain "saas-control-plane/backend/internal/membership/domain"
	membershipservice "saas-control-plane/backend/internal/membership/service"
	notificationdomain "saas-control-plane/backend/internal/notification/domain"
	notificationservice "saas-control-plane/backend/internal/notification/service"
	orgdomain "saas-control-plane/backend/internal/organization/domain"
	orgservice "saas-control-plane/backend/internal/organization/service"
	"saas-control-plane/backend/internal/platform/rbac"
	policydomain "saas-control-plane/backend/internal/policy/domain"
	policyservice "saas-control-plane/backend/internal/policy/service"
	rbacdomain "saas-control-plane/backend/internal/rbac/domain"
	"saas-control-plane/backend/internal/rbac/registry"
	userdomain "saas-control-plane/backend/internal/user/domain"
)

// Authorizer is implemented by *authz.Evaluator.
type Authorizer interface {
	rbac.Guard
	Can(ctx context.Context, userID, orgID, resource, action string) (bool, error)
	RoleSet(ctx context.Context, userID, orgID string) (authz.RoleSet, error)
}

// NotificationService is implemented by *notificationservice.NotificationService.
type NotificationService interface {
	List(ctx context.Context, userID string, f notificationdomain.ListFilter) ([]*notificationdomain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string) (*notificationdomain.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	GetPreferences(ctx context.Context, userID string) ([]notificationservice.EffectivePreference, error)
	SetPreference(ctx context.Context, userID string, t notificationdomain.Type, ch notificationdomain.Channel, enabled bool) error
}

// OrgService is implemented by *orgservice.OrgService.
type OrgService interface {
	Create(ctx context.Context, actorID, name string) (*orgdomain.Org, error)
	Get(ctx context.Context, id string) (*orgdomain.Org, error)
	Announce(ctx context.Context, actorID, orgID string, a orgservice.Announcement) (string, error)
}

// MembershipService is implemented by *membershipservice.MembershipService.
type MembershipService interface {
	Invite(ctx context.Context, actorID, orgID, email string, role membershipdomain.Role) (*membershipservice.InviteResult, error)
	AddMember(ctx context.Context, actorID, orgID, userID string, role membershipdomain.Role) (*membershipdomain.Membership, error)
	AcceptInvitation(ctx context.Context, userID, token string) (*membershipdomain.Membership, error)
	Remove(ctx context.Context, actorID, orgID, userID string) error
	UpdateRole(ctx context.Context, actorID, orgID, userID string, role membershipdomain.Role) (*membershipdomain.Membership, error)
	List(ctx context.Context, orgID string) ([]*membershipdomain.Membership, error)
	PendingInvitations(ctx context.Context, orgID string) ([]*membershipdomain.Invitation, error)
}

// GrantService is implemented by *rbacservice.GrantService.
type GrantService interface {
	Grant(ctx context.Context, actorID, userID, roleSlug string) (*rbacdomain.UserRole, error)
	Revoke(ctx context.Context, actorID, userID, roleSlug string) error
	List(ctx context.Context, userID string) ([]*rbacdomain.UserRole, error)
}

// UserService is implemented by *userservice.UserService.
type UserService interface {
	Register(ctx context.Context, actorID, email, name string) (*userdomain.User, error)
	Get(ctx context.Context, id string) (*userdomain.User, error)
}

// PolicyService is implemented by *policyservice.PolicyService.
type PolicyService interface {
	List(ctx context.Context, orgID string) ([]*policydomain.Policy, error)
	Create(ctx context.Context, orgID, rules string, enabled bool) (*policydomain.Policy, error)
	Update(ctx context.Context, orgID, id string, u policyservice.PolicyUpdate) (*policydomain.Policy, error)
	Delete(ctx context.Context, orgID, id string) error
}

// AuditReader lists an organization's audit log.
type AuditReader interface {
	ListByOrg(ctx context.Context, orgID string, f auditdomain.Filter) ([]*auditdomain.AuditLog, error)
}

// Deps holds the services behind the HTTP API. Tokens, Authz and the services named by a route group
// are required; a nil Policies or Audit leaves those routes unregistered.
type Deps struct {
	Tokens        TokenValidator
	Authz         Authorizer
	Users         UserService
	Orgs          OrgService
	Memberships   MembershipService
	Grants        GrantService
	Notifications NotificationService
	Policies      PolicyService
	Audit         AuditReader
	Health        *health.Checker
	Metrics       *Metrics
	Logger        *slog.Logger
}

// NewRouter returns the HTTP API handler.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = health.NewChecker(nil, nil)
	}
	writeErr := errorWriter(deps.Logger)
	guards := rbac.New(deps.Authz, writeErr)
	h := &handlers{deps: deps, writeErr: writeErr}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestContext)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Instrument)
	}
	r.Use(requestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	// Health endpoints (no auth)
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authenticate(deps.Tokens, writeErr))

		r.Get("/me/roles", h.myRoles)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.listNotifications)
			r.Get("/unread-count", h.unreadCount)
			r.Post("/read-all", h.markAllRead)
			r.Post("/{id}/read", h.markRead)
		})
		r.Get("/notification-preferences", h.getPreferences)
		r.Put("/notification-preferences", h.setPreference)

		r.Post("/invitations/{token}/accept", h.acceptInvitation)

		r.Post("/orgs", h.createOrg)
		r.Route("/orgs/{"+rbac.OrgParam+"}", func(r chi.Router) {
			r.With(guards.RequireOrgPermission(registry.ResourceOrganization, "read")).Get("/", h.getOrg)
			r.Get("/authz/check", h.checkPermission)

			r.With(guards.RequireOrgPermission(registry.ResourceMember, "read")).Get("/members", h.listMembers)
			r.With(guards.RequireOrgRole(rbacdomain.RoleOwner, rbacdomain.RoleAdmin)).Post("/members", h.addMember)
			r.With(guards.RequireOrgRole(rbacdomain.RoleOwner)).Patch("/members/{userID}", h.updateMemberRole)
			// Removal rules depend on the target; the service checks them.
			r.Delete("/members/{userID}", h.removeMember)

			r.With(guards.RequireOrgPermission(registry.ResourceInvitation, "create")).Get("/invitations", h.listInvitations)
			r.With(guards.RequireOrgRole(rbacdomain.RoleOwner, rbacdomain.RoleAdmin)).Post("/invitations", h.invite)

			r.With(guards.RequireOrgPermission(registry.ResourceNotification, "broadcast")).Post("/announcements", h.announce)

			if deps.Policies != nil {
				r.Route("/policies", func(r chi.Router) {
					r.With(guards.RequireOrgPermission(registry.ResourcePolicy, "read")).Get("/", h.listPolicies)
					r.Group(func(r chi.Router) {
						r.Use(guards.RequireOrgPermission(registry.ResourcePolicy, "manage"))
						r.Post("/", h.createPolicy)
						r.Patch("/{policyID}", h.updatePolicy)
						r.Delete("/{policyID}", h.deletePolicy)
					})
				})
			}
			if deps.Audit != nil {
				r.With(guards.RequireOrgPermission(registry.ResourceAuditLog, "read")).Get("/audit-logs", h.listAuditLogs)
			}
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(guards.RequireGlobalPermission(registry.ResourceUser, "read")).Get("/users/{userID}/roles", h.listUserRoles)
			r.Group(func(r chi.Router) {
				r.Use(guards.RequireGlobalPermission(registry.ResourceRole, "manage"))
				r.Post("/users", h.createUser)
				r.Post("/users/{userID}/roles", h.grantRole)
				r.Delete("/users/{userID}/roles/{role}", h.revokeRole)
			})
		})
	})

	return r
}

type handlers struct {
	deps     Deps
	writeErr func(w http.ResponseWriter, r *http.Request, err error)
}
