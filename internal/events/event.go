// Package events is the in-process domain event bus: a fixed catalog of event names, typed payloads,
// and a Bus that runs blocking listeners inline and best-effort listeners on a bounded worker pool.
package events

import (
	"crypto/rand"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// Name identifies an event type, e.g. "organization.member_joined".
type Name string

// Known event names. Subscribe and Publish reject anything else.
const (
	UserCreated         Name = "user.created"
	OrganizationCreated Name = "organization.created"
	InvitationCreated   Name = "organization.invitation_created"
	MemberJoined        Name = "organization.member_joined"
	MemberLeft          Name = "organization.member_left"
	MemberRoleChanged   Name = "organization.member_role_changed"
	RoleGranted         Name = "role.granted"
	RoleRevoked         Name = "role.revoked"
	SubscriptionCreated Name = "subscription.created"
	Mentioned           Name = "notification.mention"
	SystemAnnouncement  Name = "system.announcement"
	AuthorizationDenied Name = "authorization.denied"
)

var known = map[Name]bool{
	UserCreated:         true,
	OrganizationCreated: true,
	InvitationCreated:   true,
	MemberJoined:        true,
	MemberLeft:          true,
	MemberRoleChanged:   true,
	RoleGranted:         true,
	RoleRevoked:         true,
	SubscriptionCreated: true,
	Mentioned:           true,
	SystemAnnouncement:  true,
	AuthorizationDenied: true,
}

// Known reports whether n is a registered event name.
func Known(n Name) bool { return known[n] }

// Names returns every registered event name, sorted.
func Names() []Name {
	out := make([]Name, 0, len(known))
	for n := range known {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Payload is the typed body of an event.
type Payload interface {
	// EventName is the event this payload belongs to.
	EventName() Name
	// Key identifies the underlying occurrence. Two publications of the same occurrence share a Key.
	Key() string
}

// Event is an immutable notice that something happened. It is not persisted by the bus.
type Event struct {
	ID         string
	Name       Name
	OccurredAt time.Time
	OrgID      string
	ActorID    string
	Payload    Payload
}

// New builds an event for p with a fresh ULID and the current time.
func New(actorID, orgID string, p Payload) Event {
	now := time.Now().UTC()
	return Event{
		ID:         ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Name:       p.EventName(),
		OccurredAt: now,
		OrgID:      orgID,
		ActorID:    actorID,
		Payload:    p,
	}
}

// PayloadAs returns e.Payload as T, or an error if the payload has another type.
func PayloadAs[T Payload](e Event) (T, error) {
	p, ok := e.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("events: %s carries %T, want %T", e.Name, e.Payload, zero)
	}
	return p, nil
}
