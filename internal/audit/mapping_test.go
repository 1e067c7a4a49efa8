package audit

import (
	"testing"

	"saas-control-plane/backend/internal/events"
)

func TestFromEvent(t *testing.T) {
	tests := []struct {
		name       string
		event      events.Event
		action     string
		targetType string
		targetID   string
		orgID      string
		actorID    string
	}{
		{
			"invited member",
			events.New("owner", "org-1", events.MemberJoinedPayload{MembershipID: "m1", OrgID: "org-1", UserID: "u", Role: "admin", InvitedBy: "owner"}),
			ActionMemberInvited, "membership", "m1", "org-1", "owner",
		},
		{
			"self-service join",
			events.New("u", "org-1", events.MemberJoinedPayload{MembershipID: "m1", OrgID: "org-1", UserID: "u", Role: "member"}),
			ActionMemberJoined, "membership", "m1", "org-1", "u",
		},
		{
			"removed member",
			events.New("admin", "org-1", events.MemberLeftPayload{MembershipID: "m1", OrgID: "org-1", UserID: "u", RemovedBy: "admin"}),
			ActionMemberRemoved, "membership", "m1", "org-1", "admin",
		},
		{
			"member left",
			events.New("u", "org-1", events.MemberLeftPayload{MembershipID: "m1", OrgID: "org-1", UserID: "u", RemovedBy: "u"}),
			ActionMemberLeft, "membership", "m1", "org-1", "u",
		},
		{
			"organization created",
			events.New("u", "", events.OrganizationCreatedPayload{OrgID: "org-2", Name: "Acme", OwnerID: "u"}),
			ActionOrganizationCreated, "organization", "org-2", "org-2", "u",
		},
		{
			"role granted is global",
			events.New("root", "", events.RoleGrantedPayload{UserID: "u", RoleSlug: "support", GrantedBy: "root"}),
			ActionRoleGranted, "user", "u", "", "root",
		},
		{
			"denied permission",
			events.New("", "org-1", events.AuthorizationDeniedPayload{UserID: "u", OrgID: "org-1", Resource: "billing", Action: "manage"}),
			ActionAuthorizationDenied, "permission", "billing:manage", "org-1", "u",
		},
		{
			"denied roles",
			events.New("u", "org-1", events.AuthorizationDeniedPayload{UserID: "u", OrgID: "org-1", RequiredRoles: []string{"owner", "admin"}, Mode: "any"}),
			ActionAuthorizationDenied, "role", "owner,admin", "org-1", "u",
		},
		{
			"subscription",
			events.New("u", "org-1", events.SubscriptionCreatedPayload{SubscriptionID: "s1", OrgID: "org-1", Plan: "pro"}),
			ActionSubscriptionCreated, "subscription", "s1", "org-1", "u",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := FromEvent(tt.event)
			if !ok {
				t.Fatal("event not audited")
			}
			if e.Action != tt.action || e.TargetType != tt.targetType || e.TargetID != tt.targetID {
				t.Errorf("entry = %s %s/%s, want %s %s/%s", e.Action, e.TargetType, e.TargetID, tt.action, tt.targetType, tt.targetID)
			}
			if e.OrgID != tt.orgID || e.ActorID != tt.actorID {
				t.Errorf("org/actor = %q/%q, want %q/%q", e.OrgID, e.ActorID, tt.orgID, tt.actorID)
			}
			if !e.OccurredAt.Equal(tt.event.OccurredAt) {
				t.Errorf("OccurredAt = %v, want event time", e.OccurredAt)
			}
		})
	}
}

func TestFromEvent_IgnoresUnaudited(t *testing.T) {
	for _, e := range []events.Event{
		events.New("u", "org-1", events.MentionedPayload{OrgID: "org-1", MentionedUserID: "v"}),
		events.New("u", "org-1", events.SystemAnnouncementPayload{AnnouncementID: "a", OrgID: "org-1"}),
	} {
		if _, ok := FromEvent(e); ok {
			t.Errorf("%s should not be audited", e.Name)
		}
	}
}

func TestAuditedEvents_AllMapped(t *testing.T) {
	samples := map[events.Name]events.Payload{
		events.UserCreated:         events.UserCreatedPayload{UserID: "u"},
		events.OrganizationCreated: events.OrganizationCreatedPayload{OrgID: "o"},
		events.InvitationCreated:   events.InvitationCreatedPayload{InvitationID: "i"},
		events.MemberJoined:        events.MemberJoinedPayload{MembershipID: "m"},
		events.MemberLeft:          events.MemberLeftPayload{MembershipID: "m"},
		events.MemberRoleChanged:   events.MemberRoleChangedPayload{MembershipID: "m"},
		events.RoleGranted:         events.RoleGrantedPayload{UserID: "u"},
		events.RoleRevoked:         events.RoleRevokedPayload{UserID: "u"},
		events.SubscriptionCreated: events.SubscriptionCreatedPayload{SubscriptionID: "s"},
		events.AuthorizationDenied: events.AuthorizationDeniedPayload{UserID: "u"},
	}
	for _, name := range AuditedEvents {
		p, ok := samples[name]
		if !ok {
			t.Errorf("no sample for %s", name)
			continue
		}
		if _, ok := FromEvent(events.New("", "", p)); !ok {
			t.Errorf("%s is subscribed but not mapped", name)
		}
	}
}
