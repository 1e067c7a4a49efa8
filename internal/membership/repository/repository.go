package repository

import (
	"context"

	"saas-control-plane/backend/internal/membership/domain"
)

// Repository defines persistence for memberships.
type Repository interface {
	GetMembershipByID(ctx context.Context, id string) (*domain.Membership, error)
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	CreateMembership(ctx context.Context, m *domain.Membership) error
	DeleteByUserAndOrg(ctx context.Context, userID, orgID string) error
	UpdateRole(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error)
	CountOwnersByOrg(ctx context.Context, orgID string) (int64, error)
}

// InvitationRepository defines persistence for email invitations.
type InvitationRepository interface {
	CreateInvitation(ctx context.Context, inv *domain.Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error)
	MarkInvitationAccepted(ctx context.Context, id string) error
	ListPendingInvitations(ctx context.Context, orgID string) ([]*domain.Invitation, error)
}
