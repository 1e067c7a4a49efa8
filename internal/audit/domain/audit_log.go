package domain

import "time"

// AuditLog is an immutable record of a security-relevant action.
type AuditLog struct {
	ID         string
	OrgID      string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	IP         string
	// Metadata is a JSON object, or empty.
	Metadata  string
	DedupKey  string
	CreatedAt time.Time
}

// Filter narrows ListByOrg. Zero fields match everything.
type Filter struct {
	ActorID string
	Action  string
	Limit   int
	Offset  int
}
