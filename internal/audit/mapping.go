package audit

import (
	"strings"

	"saas-control-plane/backend/internal/events"
)

// Actions recorded in the audit log.
const (
	ActionUserCreated         = "user_created"
	ActionOrganizationCreated = "organization_created"
	ActionInvitationCreated   = "invitation_created"
	ActionMemberInvited       = "member_invited"
	ActionMemberJoined        = "member_joined"
	ActionMemberRemoved       = "member_removed"
	ActionMemberLeft          = "member_left"
	ActionMemberRoleChanged   = "member_role_changed"
	ActionRoleGranted         = "role_granted"
	ActionRoleRevoked         = "role_revoked"
	ActionSubscriptionCreated = "subscription_created"
	ActionAuthorizationDenied = "authorization_denied"
)

// AuditedEvents lists the events the listener set subscribes to.
var AuditedEvents = []events.Name{
	events.UserCreated,
	events.OrganizationCreated,
	events.InvitationCreated,
	events.MemberJoined,
	events.MemberLeft,
	events.MemberRoleChanged,
	events.RoleGranted,
	events.RoleRevoked,
	events.SubscriptionCreated,
	events.AuthorizationDenied,
}

// FromEvent builds the audit entry for e. It returns false for events that are not audited.
func FromEvent(e events.Event) (Entry, bool) {
	entry := Entry{OrgID: e.OrgID, ActorID: e.ActorID, OccurredAt: e.OccurredAt}
	switch p := e.Payload.(type) {
	case events.UserCreatedPayload:
		entry.Action, entry.TargetType, entry.TargetID = ActionUserCreated, "user", p.UserID
		entry.Metadata = map[string]any{"email": p.Email}
	case events.OrganizationCreatedPayload:
		entry.OrgID = p.OrgID
		entry.Action, entry.TargetType, entry.TargetID = ActionOrganizationCreated, "organization", p.OrgID
		entry.Metadata = map[string]any{"name": p.Name, "owner_id": p.OwnerID}
	case events.InvitationCreatedPayload:
		entry.OrgID = p.OrgID
		entry.Action, entry.TargetType, entry.TargetID = ActionInvitationCreated, "invitation", p.InvitationID
		entry.Metadata = map[string]any{"email": p.Email, "role": p.Role, "expires_at": p.ExpiresAt}
	case events.MemberJoinedPayload:
		entry.OrgID = p.OrgID
		entry.Action = ActionMemberJoined
		if p.InvitedBy != "" {
			entry.Action = ActionMemberInvited
		}
		entry.TargetType, entry.TargetID = "membership", p.MembershipID
		entry.Metadata = map[string]any{"user_id": p.UserID, "role": p.Role}
		if p.InvitedBy != "" {
			entry.Metadata["invited_by"] = p.InvitedBy
		}
	case events.MemberLeftPayload:
		entry.OrgID = p.OrgID
		entry.Action = ActionMemberLeft
		if p.Removed() {
			entry.Action = ActionMemberRemoved
		}
		entry.TargetType, entry.TargetID = "membership", p.MembershipID
		entry.Metadata = map[string]any{"user_id": p.UserID, "role": p.Role}
	case events.MemberRoleChangedPayload:
		entry.OrgID = p.OrgID
		entry.Action, entry.TargetType, entry.TargetID = ActionMemberRoleChanged, "membership", p.MembershipID
		entry.Metadata = map[string]any{"user_id": p.UserID, "old_role": p.OldRole, "new_role": p.NewRole}
	case events.RoleGrantedPayload:
		entry.Action, entry.TargetType, entry.TargetID = ActionRoleGranted, "user", p.UserID
		entry.Metadata = map[string]any{"role": p.RoleSlug}
	case events.RoleRevokedPayload:
		entry.Action, entry.TargetType, entry.TargetID = ActionRoleRevoked, "user", p.UserID
		entry.Metadata = map[string]any{"role": p.RoleSlug}
	case events.SubscriptionCreatedPayload:
		entry.OrgID = p.OrgID
		entry.Action, entry.TargetType, entry.TargetID = ActionSubscriptionCreated, "subscription", p.SubscriptionID
		entry.Metadata = map[string]any{"plan": p.Plan}
	case events.AuthorizationDeniedPayload:
		entry.OrgID = p.OrgID
		if entry.ActorID == "" {
			entry.ActorID = p.UserID
		}
		entry.Action = ActionAuthorizationDenied
		if p.Resource != "" {
			entry.TargetType, entry.TargetID = "permission", p.Resource+":"+p.Action
		} else {
			entry.TargetType, entry.TargetID = "role", strings.Join(p.RequiredRoles, ",")
		}
		entry.Metadata = map[string]any{"user_id": p.UserID}
		if len(p.RequiredRoles) > 0 {
			entry.Metadata["required_roles"] = p.RequiredRoles
			entry.Metadata["mode"] = p.Mode
		}
		if p.Reason != "" {
			entry.Metadata["reason"] = p.Reason
		}
	default:
		return Entry{}, false
	}
	return entry, true
}
