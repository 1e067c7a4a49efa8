package domain

import "time"

// Invitation is a pending email invitation to join an organization.
type Invitation struct {
	ID         string
	OrgID      string
	Email      string
	Role       Role
	InvitedBy  string
	Token      string
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// Pending reports whether the invitation can still be accepted at now.
func (i *Invitation) Pending(now time.Time) bool {
	return i.AcceptedAt == nil && now.Before(i.ExpiresAt)
}
