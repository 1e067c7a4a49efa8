package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"

	"saas-control-plane/backend/internal/events"
	"saas-control-plane/backend/internal/membership/domain"
	orgdomain "saas-control-plane/backend/internal/organization/domain"
	"saas-control-plane/backend/internal/platform/apperr"
	userdomain "saas-control-plane/backend/internal/user/domain"
)

// DefaultInvitationTTL is how long an email invitation stays acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// MembershipRepo is the minimal membership repository needed by the membership service.
type MembershipRepo interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	CreateMembership(ctx context.Context, m *domain.Membership) error
	DeleteByUserAndOrg(ctx context.Context, userID, orgID string) error
	UpdateRole(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error)
}

// InvitationRepo is the minimal invitation repository needed by the membership service.
type InvitationRepo interface {
	CreateInvitation(ctx context.Context, inv *domain.Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error)
	MarkInvitationAccepted(ctx context.Context, id string) error
	ListPendingInvitations(ctx context.Context, orgID string) ([]*domain.Invitation, error)
}

// OrgGetter returns an organization, or nil when it does not exist.
type OrgGetter interface {
	GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error)
}

// UserGetter resolves users by ID and email.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// Guard is the role guard consulted before mutations that depend on the actor's role.
type Guard interface {
	RequireRole(ctx context.Context, userID, orgID string, roles []string, requireAll bool) error
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

// MembershipService manages who belongs to an organization and with which role.
// Route-level guards check the actor may call an operation at all; the service enforces the rules
// that depend on the target (only owners grant or remove owners, members may leave).
type MembershipService struct {
	memberships   MembershipRepo
	invitations   InvitationRepo
	orgs          OrgGetter
	users         UserGetter
	guard         Guard
	roles         Invalidator
	tx            TxRunner
	bus           Publisher
	invitationTTL time.Duration
	now           func() time.Time
}

// NewMembershipService returns a MembershipService with the given dependencies.
func NewMembershipService(
	memberships MembershipRepo,
	invitations InvitationRepo,
	orgs OrgGetter,
	users UserGetter,
	guard Guard,
	roles Invalidator,
	tx TxRunner,
	bus Publisher,
) *MembershipService {
	return &MembershipService{
		memberships:   memberships,
		invitations:   invitations,
		orgs:          orgs,
		users:         users,
		guard:         guard,
		roles:         roles,
		tx:            tx,
		bus:           bus,
		invitationTTL: DefaultInvitationTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// InviteResult is the outcome of Invite: a membership when the invitee already has an account,
// otherwise a pending email invitation.
type InviteResult struct {
	Membership *domain.Membership
	Invitation *domain.Invitation
}

// Invite adds the user with email to the organization. Existing users become members immediately;
// unknown addresses receive an email invitation.
func (s *MembershipService) Invite(ctx context.Context, actorID, orgID, email string, role domain.Role) (*InviteResult, error) {
	email, err := userdomain.NormalizeEmail(email)
	if err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	if err := s.checkGrantable(ctx, actorID, orgID, role); err != nil {
		return nil, err
	}
	org, err := s.joinableOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u != nil {
		m, err := s.addMember(ctx, actorID, org, u.ID, role)
		if err != nil {
			return nil, err
		}
		return &InviteResult{Membership: m}, nil
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Email:     email,
		Role:      role,
		InvitedBy: actorID,
		Token:     token,
		ExpiresAt: now.Add(s.invitationTTL),
		CreatedAt: now,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.invitations.CreateInvitation(ctx, inv); err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.New(actorID, orgID, events.InvitationCreatedPayload{
			InvitationID: inv.ID,
			OrgID:        orgID,
			OrgName:      org.Name,
			Email:        email,
			Role:         string(role),
			InvitedBy:    actorID,
			Token:        token,
			ExpiresAt:    inv.ExpiresAt,
		}))
	})
	if err != nil {
		return nil, err
	}
	return &InviteResult{Invitation: inv}, nil
}

// AddMember adds an existing user to the organization with role.
func (s *MembershipService) AddMember(ctx context.Context, actorID, orgID, userID string, role domain.Role) (*domain.Membership, error) {
	if err := s.checkGrantable(ctx, actorID, orgID, role); err != nil {
		return nil, err
	}
	org, err := s.joinableOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return s.addMember(ctx, actorID, org, userID, role)
}

func (s *MembershipService) addMember(ctx context.Context, actorID string, org *orgdomain.Org, userID string, role domain.Role) (*domain.Membership, error) {
	m := &domain.Membership{
		ID:        uuid.New().String(),
		UserID:    userID,
		OrgID:     org.ID,
		Role:      role,
		InvitedBy: actorID,
		JoinedAt:  s.now(),
	}
	err := s.mutate(ctx, userID, func(ctx context.Context) error {
		if err := s.memberships.CreateMembership(ctx, m); err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.New(actorID, org.ID, events.MemberJoinedPayload{
			MembershipID: m.ID,
			OrgID:        org.ID,
			OrgName:      org.Name,
			UserID:       userID,
			Role:         string(role),
			InvitedBy:    actorID,
		}))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AcceptInvitation joins userID to the invitation's organization. The user's email must match the invitation.
func (s *MembershipService) AcceptInvitation(ctx context.Context, userID, token string) (*domain.Membership, error) {
	if userID == "" {
		return nil, apperr.Unauthenticated("authentication required")
	}
	inv, err := s.invitations.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil || !inv.Pending(s.now()) {
		return nil, apperr.NotFound("invitation not found or expired")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil || !strings.EqualFold(u.Email, inv.Email) {
		return nil, apperr.Forbidden("invitation was issued to another address")
	}
	org, err := s.joinableOrg(ctx, inv.OrgID)
	if err != nil {
		return nil, err
	}
	m := &domain.Membership{
		ID:        uuid.New().String(),
		UserID:    userID,
		OrgID:     inv.OrgID,
		Role:      inv.Role,
		InvitedBy: inv.InvitedBy,
		JoinedAt:  s.now(),
	}
	err = s.mutate(ctx, userID, func(ctx context.Context) error {
		if err := s.invitations.MarkInvitationAccepted(ctx, inv.ID); err != nil {
			return err
		}
		if err := s.memberships.CreateMembership(ctx, m); err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.New(userID, inv.OrgID, events.MemberJoinedPayload{
			MembershipID: m.ID,
			OrgID:        inv.OrgID,
			OrgName:      org.Name,
			UserID:       userID,
			Role:         string(inv.Role),
			InvitedBy:    inv.InvitedBy,
		}))
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Remove ends userID's membership. A member may remove themselves; removing someone else requires
// owner or admin, and removing an owner requires owner. The last owner cannot leave.
func (s *MembershipService) Remove(ctx context.Context, actorID, orgID, userID string) error {
	target, err := s.memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return err
	}
	if target == nil {
		return apperr.NotFound("membership not found")
	}
	if actorID != userID {
		required := []string{string(domain.RoleOwner), string(domain.RoleAdmin)}
		if target.Role == domain.RoleOwner {
			required = []string{string(domain.RoleOwner)}
		}
		if err := s.guard.RequireRole(ctx, actorID, orgID, required, false); err != nil {
			return err
		}
	}
	org, err := s.org(ctx, orgID)
	if err != nil {
		return err
	}
	return s.mutate(ctx, userID, func(ctx context.Context) error {
		if err := s.memberships.DeleteByUserAndOrg(ctx, userID, orgID); err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.New(actorID, orgID, events.MemberLeftPayload{
			MembershipID: target.ID,
			OrgID:        orgID,
			OrgName:      org.Name,
			UserID:       userID,
			Role:         string(target.Role),
			RemovedBy:    actorID,
		}))
	})
}

// UpdateRole changes userID's role. Granting or taking away owner requires owner.
func (s *MembershipService) UpdateRole(ctx context.Context, actorID, orgID, userID string, role domain.Role) (*domain.Membership, error) {
	if err := s.checkGrantable(ctx, actorID, orgID, role); err != nil {
		return nil, err
	}
	current, err := s.memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperr.NotFound("membership not found")
	}
	if current.Role == role {
		return current, nil
	}
	if current.Role == domain.RoleOwner {
		if err := s.guard.RequireRole(ctx, actorID, orgID, []string{string(domain.RoleOwner)}, true); err != nil {
			return nil, err
		}
	}
	var updated *domain.Membership
	err = s.mutate(ctx, userID, func(ctx context.Context) error {
		m, err := s.memberships.UpdateRole(ctx, userID, orgID, role)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.NotFound("membership not found")
		}
		updated = m
		return s.bus.Publish(ctx, events.New(actorID, orgID, events.MemberRoleChangedPayload{
			MembershipID: m.ID,
			OrgID:        orgID,
			UserID:       userID,
			OldRole:      string(current.Role),
			NewRole:      string(role),
			ChangedBy:    actorID,
		}))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// List returns the organization's memberships.
func (s *MembershipService) List(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	return s.memberships.ListMembershipsByOrg(ctx, orgID)
}

// PendingInvitations returns the organization's open invitations.
func (s *MembershipService) PendingInvitations(ctx context.Context, orgID string) ([]*domain.Invitation, error) {
	return s.invitations.ListPendingInvitations(ctx, orgID)
}

// mutate runs fn in a transaction and invalidates userID's cached roles before and after it.
func (s *MembershipService) mutate(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	if err := s.roles.Invalidate(ctx, userID); err != nil {
		return err
	}
	if err := s.tx.RunInTx(ctx, fn); err != nil {
		return err
	}
	return s.roles.Invalidate(ctx, userID)
}

func (s *MembershipService) checkGrantable(ctx context.Context, actorID, orgID string, role domain.Role) error {
	if !role.Valid() {
		return apperr.BadRequest("invalid role " + string(role))
	}
	if role == domain.RoleOwner {
		return s.guard.RequireRole(ctx, actorID, orgID, []string{string(domain.RoleOwner)}, true)
	}
	return nil
}

// joinableOrg is org for operations that add people. Suspended organizations accept no new members.
func (s *MembershipService) joinableOrg(ctx context.Context, orgID string) (*orgdomain.Org, error) {
	org, err := s.org(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.Suspended() {
		return nil, apperr.Forbidden("organization is suspended")
	}
	return org, nil
}

func (s *MembershipService) org(ctx context.Context, orgID string) (*orgdomain.Org, error) {
	org, err := s.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, apperr.NotFound("organization not found")
	}
	return org, nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
