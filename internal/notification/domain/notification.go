package domain

import "time"

// Channel is a delivery surface.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Channels lists every channel in display order.
func Channels() []Channel { return []Channel{ChannelInApp, ChannelEmail, ChannelPush} }

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelPush:
		return true
	}
	return false
}

// External reports whether c is delivered by the outbound delivery service.
func (c Channel) External() bool { return c == ChannelEmail || c == ChannelPush }

// Type is a notification type, the unit users set preferences on.
type Type string

const (
	TypeInvitation          Type = "org.invitation"
	TypeMemberJoined        Type = "org.member_joined"
	TypeMemberLeft          Type = "org.member_left"
	TypeMention             Type = "notification.mention"
	TypeAnnouncement        Type = "system.announcement"
	TypeSubscriptionCreated Type = "billing.subscription_created"
	TypeWelcome             Type = "user.welcome"
)

// Types lists every notification type.
func Types() []Type {
	return []Type{
		TypeInvitation, TypeMemberJoined, TypeMemberLeft, TypeMention,
		TypeAnnouncement, TypeSubscriptionCreated, TypeWelcome,
	}
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range Types() {
		if t == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Action is a call to action rendered with the notification.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Notification is a message to one user. Only ReadAt changes after creation.
type Notification struct {
	ID       string
	UserID   string
	OrgID    string
	Type     Type
	Priority Priority
	Title    string
	Message  string
	Data     map[string]any
	Actions  []Action
	// Channels is the delivery fan-out resolved when the notification was created.
	Channels  []Channel
	DedupKey  string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// IsRead reports whether the notification has been read.
func (n *Notification) IsRead() bool { return n.ReadAt != nil }

// Preference is an explicit per-user, per-type, per-channel choice. Absence means the default policy applies.
type Preference struct {
	UserID  string
	Type    Type
	Channel Channel
	Enabled bool
}

// ListFilter narrows List.
type ListFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}
