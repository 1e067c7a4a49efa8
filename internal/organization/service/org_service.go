package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"saas-control-plane/backend/internal/events"
	membershipdomain "saas-control-plane/backend/internal/membership/domain"
	notificationdomain "saas-control-plane/backend/internal/notification/domain"
	orgdomain "saas-control-plane/backend/internal/organization/domain"
	"saas-control-plane/backend/internal/platform/apperr"
)

// OrgRepo is the minimal organization repository needed by the org service.
type OrgRepo interface {
	GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error)
	CreateOrganization(ctx context.Context, o *orgdomain.Org) error
}

// MembershipRepo is the minimal membership repository needed by the org service.
type MembershipRepo interface {
	CreateMembership(ctx context.Context, m *membershipdomain.Membership) error
}

// TxRunner runs fn inside a transaction carried on ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Invalidator drops cached role sets for a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// OrgService creates organizations and posts announcements to their members.
type OrgService struct {
	orgs        OrgRepo
	memberships MembershipRepo
	tx          TxRunner
	bus         Publisher
	roles       Invalidator
}

// NewOrgService returns an OrgService with the given dependencies.
func NewOrgService(orgs OrgRepo, memberships MembershipRepo, tx TxRunner, bus Publisher, roles Invalidator) *OrgService {
	return &OrgService{orgs: orgs, memberships: memberships, tx: tx, bus: bus, roles: roles}
}

// Create creates the organization with actorID as its owner and publishes organization.created.
func (s *OrgService) Create(ctx context.Context, actorID, name string) (*orgdomain.Org, error) {
	if actorID == "" {
		return nil, apperr.Unauthenticated("authentication required")
	}
	now := time.Now().UTC()
	org := &orgdomain.Org{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Status:    orgdomain.OrgStatusActive,
		CreatedBy: actorID,
		CreatedAt: now,
	}
	if err := org.Validate(); err != nil {
		return nil, apperr.BadRequest(err.Error())
	}
	if err := s.roles.Invalidate(ctx, actorID); err != nil {
		return nil, err
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.orgs.CreateOrganization(ctx, org); err != nil {
			return err
		}
		owner := &membershipdomain.Membership{
			ID:       uuid.New().String(),
			UserID:   actorID,
			OrgID:    org.ID,
			Role:     membershipdomain.RoleOwner,
			JoinedAt: now,
		}
		if err := s.memberships.CreateMembership(ctx, owner); err != nil {
			return err
		}
		return s.bus.Publish(ctx, events.New(actorID, org.ID, events.OrganizationCreatedPayload{
			OrgID: org.ID, Name: org.Name, OwnerID: actorID,
		}))
	})
	if err != nil {
		return nil, err
	}
	if err := s.roles.Invalidate(ctx, actorID); err != nil {
		return nil, err
	}
	return org, nil
}

// Get returns the organization or NotFound.
func (s *OrgService) Get(ctx context.Context, id string) (*orgdomain.Org, error) {
	org, err := s.orgs.GetOrganizationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, apperr.NotFound("organization not found")
	}
	return org, nil
}

// Announcement is the input to Announce.
type Announcement struct {
	Title    string
	Message  string
	Priority notificationdomain.Priority
}

// Announce publishes system.announcement for every member of the organization. It returns the announcement ID.
func (s *OrgService) Announce(ctx context.Context, actorID, orgID string, a Announcement) (string, error) {
	a.Title = strings.TrimSpace(a.Title)
	a.Message = strings.TrimSpace(a.Message)
	if a.Title == "" {
		return "", apperr.BadRequest("title is required")
	}
	if a.Priority == "" {
		a.Priority = notificationdomain.PriorityNormal
	}
	if !a.Priority.Valid() {
		return "", apperr.BadRequest("invalid priority " + string(a.Priority))
	}
	if _, err := s.Get(ctx, orgID); err != nil {
		return "", err
	}
	id := uuid.New().String()
	err := s.bus.Publish(ctx, events.New(actorID, orgID, events.SystemAnnouncementPayload{
		AnnouncementID: id,
		OrgID:          orgID,
		Title:          a.Title,
		Message:        a.Message,
		Priority:       string(a.Priority),
		PostedBy:       actorID,
	}))
	if err != nil {
		return "", err
	}
	return id, nil
}
