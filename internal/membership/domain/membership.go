package domain

import (
	"time"
)

// Membership links a user to an organization with a role.
type Membership struct {
	ID        string
	UserID    string
	OrgID     string
	Role      Role
	InvitedBy string
	JoinedAt  time.Time
}

// Role is the single organization-scoped role carried by a membership.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the membership roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}
