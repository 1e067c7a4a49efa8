package service

import (
	"context"
	"fmt"

	"saas-control-plane/backend/internal/events"
	"saas-control-plane/backend/internal/membership/domain"
	"saas-control-plane/backend/internal/platform/apperr"
)

// LastOwnerListenerID is the bus listener ID of the last-owner invariant.
const LastOwnerListenerID = "membership.last-owner-guard"

// OwnerCounter counts an organization's owners, on the transaction carried by ctx when there is one.
type OwnerCounter interface {
	CountOwnersByOrg(ctx context.Context, orgID string) (int64, error)
}

// Subscriber registers bus listeners.
type Subscriber interface {
	Subscribe(name events.Name, listenerID string, h events.Handler, opts ...events.SubscribeOption) error
}

// RegisterInvariants subscribes the blocking listeners that keep every organization with at least one
// owner. They run inside the publisher's transaction, after the change and before commit, so a
// violation rolls the change back.
func RegisterInvariants(bus Subscriber, owners OwnerCounter) error {
	guard := &lastOwnerGuard{owners: owners}
	if err := bus.Subscribe(events.MemberLeft, LastOwnerListenerID, guard.onMemberLeft, events.Blocking()); err != nil {
		return err
	}
	return bus.Subscribe(events.MemberRoleChanged, LastOwnerListenerID, guard.onRoleChanged, events.Blocking())
}

type lastOwnerGuard struct {
	owners OwnerCounter
}

func (g *lastOwnerGuard) onMemberLeft(ctx context.Context, e events.Event) error {
	p, err := events.PayloadAs[events.MemberLeftPayload](e)
	if err != nil {
		return err
	}
	if p.Role != string(domain.RoleOwner) {
		return nil
	}
	return g.check(ctx, p.OrgID)
}

func (g *lastOwnerGuard) onRoleChanged(ctx context.Context, e events.Event) error {
	p, err := events.PayloadAs[events.MemberRoleChangedPayload](e)
	if err != nil {
		return err
	}
	if p.OldRole != string(domain.RoleOwner) || p.NewRole == string(domain.RoleOwner) {
		return nil
	}
	return g.check(ctx, p.OrgID)
}

func (g *lastOwnerGuard) check(ctx context.Context, orgID string) error {
	n, err := g.owners.CountOwnersByOrg(ctx, orgID)
	if err != nil {
		return fmt.Errorf("count owners: %w", err)
	}
	if n == 0 {
		return apperr.Conflict("an organization must keep at least one owner")
	}
	return nil
}
