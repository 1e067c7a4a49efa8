package server

import (
	"time"

	auditdomain "saas-control-plane/backend/internal/audit/domain"
	membershipdomain "saas-control-plane/backend/internal/membership/domain"
	notificationdomain "saas-control-plane/backend/internal/notification/domain"
	orgdomain "saas-control-plane/backend/internal/organization/domain"
	policydomain "saas-control-plane/backend/internal/policy/domain"
	rbacdomain "saas-control-plane/backend/internal/rbac/domain"
)

type orgJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func toOrgJSON(o *orgdomain.Org) orgJSON {
	return orgJSON{ID: o.ID, Name: o.Name, Status: string(o.Status), CreatedBy: o.CreatedBy, CreatedAt: o.CreatedAt}
}

type membershipJSON struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	OrgID     string    `json:"org_id"`
	Role      string    `json:"role"`
	InvitedBy string    `json:"invited_by,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

func toMembershipJSON(m *membershipdomain.Membership) membershipJSON {
	return membershipJSON{
		ID:        m.ID,
		UserID:    m.UserID,
		OrgID:     m.OrgID,
		Role:      string(m.Role),
		InvitedBy: m.InvitedBy,
		JoinedAt:  m.JoinedAt,
	}
}

func toMembershipsJSON(ms []*membershipdomain.Membership) []membershipJSON {
	out := make([]membershipJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMembershipJSON(m))
	}
	return out
}

// invitationJSON never carries the token; it is only delivered to the invitee by email.
type invitationJSON struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	InvitedBy string    `json:"invited_by"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func toInvitationJSON(i *membershipdomain.Invitation) invitationJSON {
	return invitationJSON{
		ID:        i.ID,
		OrgID:     i.OrgID,
		Email:     i.Email,
		Role:      string(i.Role),
		InvitedBy: i.InvitedBy,
		ExpiresAt: i.ExpiresAt,
		CreatedAt: i.CreatedAt,
	}
}

type notificationJSON struct {
	ID        string                       `json:"id"`
	OrgID     string                       `json:"org_id,omitempty"`
	Type      string                       `json:"type"`
	Priority  string                       `json:"priority"`
	Title     string                       `json:"title"`
	Message   string                       `json:"message"`
	Data      map[string]any               `json:"data,omitempty"`
	Actions   []notificationdomain.Action  `json:"actions,omitempty"`
	Channels  []notificationdomain.Channel `json:"channels"`
	ReadAt    *time.Time                   `json:"read_at,omitempty"`
	CreatedAt time.Time                    `json:"created_at"`
}

func toNotificationJSON(n *notificationdomain.Notification) notificationJSON {
	return notificationJSON{
		ID:        n.ID,
		OrgID:     n.OrgID,
		Type:      string(n.Type),
		Priority:  string(n.Priority),
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		Actions:   n.Actions,
		Channels:  n.Channels,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

type userRoleJSON struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	GrantedBy string    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

func toUserRoleJSON(g *rbacdomain.UserRole) userRoleJSON {
	return userRoleJSON{UserID: g.UserID, Role: g.RoleSlug, GrantedBy: g.GrantedBy, GrantedAt: g.GrantedAt}
}

type policyJSON struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Rules     string    `json:"rules"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

func toPolicyJSON(p *policydomain.Policy) policyJSON {
	return policyJSON{ID: p.ID, OrgID: p.OrgID, Rules: p.Rules, Enabled: p.Enabled, CreatedAt: p.CreatedAt}
}

type auditLogJSON struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	IP         string    `json:"ip,omitempty"`
	Metadata   string    `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAuditLogJSON(l *auditdomain.AuditLog) auditLogJSON {
	return auditLogJSON{
		ID:         l.ID,
		OrgID:      l.OrgID,
		ActorID:    l.ActorID,
		Action:     l.Action,
		TargetType: l.TargetType,
		TargetID:   l.TargetID,
		IP:         l.IP,
		Metadata:   l.Metadata,
		CreatedAt:  l.CreatedAt,
	}
}
