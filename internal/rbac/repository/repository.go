package repository

import (
	"context"

	"saas-control-plane/backend/internal/rbac/domain"
)

// Repository defines persistence for global role grants.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.UserRole, error)
	Grant(ctx context.Context, ur *domain.UserRole) error
	Revoke(ctx context.Context, userID, roleSlug string) error
}
