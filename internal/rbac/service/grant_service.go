package service

import (
	"context"
	"time"

	"saas-control-plane/backend/internal/events"
	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/rbac/domain"
	"saas-control-plane/backend/internal/rbac/registry"
	userdomain "saas-control-plane/backend/internal/user/domain"
)

// GrantRepo is the minimal user_roles repository needed by the grant service.
type GrantRepo interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.UserRole, error)
	Grant(ctx context.Context, ur *domain.UserRole) error
	Revoke(ctx context.Context, userID, roleSlug string) error
}

// UserGetter returns a user, or nil when it does not exist.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Invalidator drops cached role sets for a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// TxRunner runs fn inside a transaction carried on ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// GrantService grants and revokes global roles. Callers must already be authorized (super-admin).
type GrantService struct {
	grants   GrantRepo
	users    UserGetter
	registry *registry.Registry
	roles    Invalidator
	tx       TxRunner
	bus      Publisher
}

// NewGrantService returns a GrantService with the given dependencies.
func NewGrantService(grants GrantRepo, users UserGetter, reg *registry.Registry, roles Invalidator, tx TxRunner, bus Publisher) *GrantService {
	return &GrantService{grants: grants, users: users, registry: reg, roles: roles, tx: tx, bus: bus}
}

// Grant gives userID the global role roleSlug. Organization-scoped roles cannot be granted globally.
func (s *GrantService) Grant(ctx context.Context, actorID, userID, roleSlug string) (*domain.UserRole, error) {
	role, ok := s.registry.Role(roleSlug)
	if !ok {
		return nil, apperr.NotFound("role not found: " + roleSlug)
	}
	if role.Scope != domain.ScopeGlobal {
		return nil, apperr.BadRequest("role " + roleSlug + " is organization-scoped; assign it through a membership")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	ur := &domain.UserRole{UserID: userID, RoleSlug: roleSlug, GrantedBy: actorID, GrantedAt: time.Now().UTC()}
	err = s.mutate(ctx, userID, func(ctx context.Context) error {
		if err := s.grants.Grant(ctx, ur); err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.New(actorID, "", events.RoleGrantedPayload{
			UserID: userID, RoleSlug: roleSlug, GrantedBy: actorID,
		}))
	})
	if err != nil {
		return nil, err
	}
	return ur, nil
}

// Revoke removes the global role grant. Actors cannot revoke their own super-admin grant.
func (s *GrantService) Revoke(ctx context.Context, actorID, userID, roleSlug string) error {
	if actorID == userID && roleSlug == domain.RoleSuperAdmin {
		return apperr.Forbidden("cannot revoke your own super-admin grant")
	}
	return s.mutate(ctx, userID, func(ctx context.Context) error {
		if err := s.grants.Revoke(ctx, userID, roleSlug); err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.New(actorID, "", events.RoleRevokedPayload{
			UserID: userID, RoleSlug: roleSlug, RevokedBy: actorID,
		}))
	})
}

// List returns the user's global grants.
func (s *GrantService) List(ctx context.Context, userID string) ([]*domain.UserRole, error) {
	return s.grants.ListByUser(ctx, userID)
}

func (s *GrantService) mutate(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	if err := s.roles.Invalidate(ctx, userID); err != nil {
		return err
	}
	if err := s.tx.RunInTx(ctx, fn); err != nil {
		return err
	}
	return s.roles.Invalidate(ctx, userID)
}
