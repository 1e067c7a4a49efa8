package domain

// TypeDefaults is the delivery surface and priority of a notification type.
type TypeDefaults struct {
	Channels []Channel
	Priority Priority
}

// ChannelPolicy is the default-enable table used when a user has no explicit preference row.
// Channels in OptIn are disabled until the user enables them; every other channel is enabled.
type ChannelPolicy struct {
	OptIn map[Channel]bool
	Types map[Type]TypeDefaults
}

// DefaultChannelPolicy returns the built-in table: in_app and email on, push opt-in.
func DefaultChannelPolicy() *ChannelPolicy {
	all := []Channel{ChannelInApp, ChannelEmail, ChannelPush}
	inAppEmail := []Channel{ChannelInApp, ChannelEmail}
	return &ChannelPolicy{
		OptIn: map[Channel]bool{ChannelPush: true},
		Types: map[Type]TypeDefaults{
			TypeInvitation:          {Channels: all, Priority: PriorityHigh},
			TypeMemberJoined:        {Channels: inAppEmail, Priority: PriorityNormal},
			TypeMemberLeft:          {Channels: inAppEmail, Priority: PriorityNormal},
			TypeMention:             {Channels: all, Priority: PriorityNormal},
			TypeAnnouncement:        {Channels: all, Priority: PriorityHigh},
			TypeSubscriptionCreated: {Channels: inAppEmail, Priority: PriorityNormal},
			TypeWelcome:             {Channels: inAppEmail, Priority: PriorityLow},
		},
	}
}

// WithOptIn returns a copy of p whose opt-in set is exactly channels. Unknown channels are ignored.
func (p *ChannelPolicy) WithOptIn(channels ...Channel) *ChannelPolicy {
	out := &ChannelPolicy{OptIn: make(map[Channel]bool), Types: p.Types}
	for _, c := range channels {
		if c.Valid() {
			out.OptIn[c] = true
		}
	}
	return out
}

// DefaultEnabled reports whether ch is on for a user without a preference row.
func (p *ChannelPolicy) DefaultEnabled(ch Channel) bool { return !p.OptIn[ch] }

// Defaults returns the type's delivery surface. Unknown types get in_app only at normal priority.
func (p *ChannelPolicy) Defaults(t Type) TypeDefaults {
	if d, ok := p.Types[t]; ok {
		return d
	}
	return TypeDefaults{Channels: []Channel{ChannelInApp}, Priority: PriorityNormal}
}

// Enabled reports whether ch is on for type t given the user's explicit preferences for t.
// Channels outside the type's surface are never enabled.
func (p *ChannelPolicy) Enabled(t Type, ch Channel, explicit map[Channel]bool) bool {
	offered := false
	for _, c := range p.Defaults(t).Channels {
		if c == ch {
			offered = true
			break
		}
	}
	if !offered {
		return false
	}
	if v, ok := explicit[ch]; ok {
		return v
	}
	return p.DefaultEnabled(ch)
}

// Resolve returns the enabled channels for type t, in the type's channel order.
func (p *ChannelPolicy) Resolve(t Type, explicit map[Channel]bool) []Channel {
	var out []Channel
	for _, c := range p.Defaults(t).Channels {
		if p.Enabled(t, c, explicit) {
			out = append(out, c)
		}
	}
	return out
}
