package dispatcher

import (
	"fmt"

	"saas-control-plane/backend/internal/events"
	"saas-control-plane/backend/internal/notification/domain"
)

// target is one recipient of a notification. Address-only targets (invitations to people without
// an account) carry an Email and no UserID.
type target struct {
	UserID string
	Email  string
}

// message is the rendered content shared by every recipient of one event.
type message struct {
	Type    domain.Type
	OrgID   string
	Title   string
	Message string
	Data    map[string]any
	Actions []domain.Action
	// Priority overrides the type default when set.
	Priority domain.Priority
	// EmailOnly limits delivery to email regardless of preferences.
	EmailOnly bool
}

// audience names who receives a message; members are resolved at dispatch time.
type audience int

const (
	audienceExplicit audience = iota
	audienceOwnersAndAdmins
	audienceOwners
	audienceAllMembers
)

type plan struct {
	msg     message
	who     audience
	targets []target
	// exclude is dropped from resolved audiences (usually the actor).
	exclude string
}

func orgLink(orgID string) []domain.Action {
	return []domain.Action{{Label: "Open organization", URL: "/orgs/" + orgID}}
}

func orgLabel(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

// planFor maps an event to its notification plan. It returns false for events that notify no one.
func planFor(e events.Event) (plan, bool) {
	switch p := e.Payload.(type) {
	case events.MemberJoinedPayload:
		org := orgLabel(p.OrgName, p.OrgID)
		if p.InvitedBy != "" {
			return plan{
				who:     audienceExplicit,
				targets: []target{{UserID: p.UserID}},
				msg: message{
					Type:    domain.TypeInvitation,
					OrgID:   p.OrgID,
					Title:   "You were added to " + org,
					Message: fmt.Sprintf("You have been added to %s as %s.", org, p.Role),
					Data:    map[string]any{"org_id": p.OrgID, "role": p.Role, "invited_by": p.InvitedBy},
					Actions: orgLink(p.OrgID),
				},
			}, true
		}
		return plan{
			who:     audienceOwnersAndAdmins,
			exclude: p.UserID,
			msg: message{
				Type:    domain.TypeMemberJoined,
				OrgID:   p.OrgID,
				Title:   "New member in " + org,
				Message: fmt.Sprintf("A new member joined %s as %s.", org, p.Role),
				Data:    map[string]any{"org_id": p.OrgID, "user_id": p.UserID, "role": p.Role},
				Actions: orgLink(p.OrgID),
			},
		}, true
	case events.MemberLeftPayload:
		org := orgLabel(p.OrgName, p.OrgID)
		text := fmt.Sprintf("A member left %s.", org)
		if p.Removed() {
			text = fmt.Sprintf("A member was removed from %s.", org)
		}
		return plan{
			who:     audienceOwnersAndAdmins,
			exclude: e.ActorID,
			msg: message{
				Type:    domain.TypeMemberLeft,
				OrgID:   p.OrgID,
				Title:   "Member left " + org,
				Message: text,
				Data:    map[string]any{"org_id": p.OrgID, "user_id": p.UserID, "removed_by": p.RemovedBy},
			},
		}, true
	case events.InvitationCreatedPayload:
		org := orgLabel(p.OrgName, p.OrgID)
		return plan{
			who:     audienceExplicit,
			targets: []target{{Email: p.Email}},
			msg: message{
				Type:      domain.TypeInvitation,
				OrgID:     p.OrgID,
				Title:     "Invitation to join " + org,
				Message:   fmt.Sprintf("You have been invited to join %s as %s.", org, p.Role),
				Data:      map[string]any{"org_id": p.OrgID, "role": p.Role, "expires_at": p.ExpiresAt},
				Actions:   []domain.Action{{Label: "Accept invitation", URL: "/invitations/" + p.Token}},
				EmailOnly: true,
			},
		}, true
	case events.MentionedPayload:
		if p.MentionedUserID == "" || p.MentionedUserID == p.AuthorID {
			return plan{}, false
		}
		return plan{
			who:     audienceExplicit,
			targets: []target{{UserID: p.MentionedUserID}},
			msg: message{
				Type:    domain.TypeMention,
				OrgID:   p.OrgID,
				Title:   "You were mentioned",
				Message: p.Excerpt,
				Data:    map[string]any{"author_id": p.AuthorID, "subject_type": p.SubjectType, "subject_id": p.SubjectID},
			},
		}, true
	case events.SystemAnnouncementPayload:
		return plan{
			who: audienceAllMembers,
			msg: message{
				Type:     domain.TypeAnnouncement,
				OrgID:    p.OrgID,
				Title:    p.Title,
				Message:  p.Message,
				Priority: domain.Priority(p.Priority),
				Data:     map[string]any{"announcement_id": p.AnnouncementID, "posted_by": p.PostedBy},
			},
		}, true
	case events.SubscriptionCreatedPayload:
		return plan{
			who: audienceOwners,
			msg: message{
				Type:    domain.TypeSubscriptionCreated,
				OrgID:   p.OrgID,
				Title:   "Subscription started",
				Message: fmt.Sprintf("Your organization is now on the %s plan.", p.Plan),
				Data:    map[string]any{"subscription_id": p.SubscriptionID, "plan": p.Plan},
			},
		}, true
	case events.UserCreatedPayload:
		title := "Welcome"
		if p.Name != "" {
			title = "Welcome, " + p.Name
		}
		return plan{
			who:     audienceExplicit,
			targets: []target{{UserID: p.UserID}},
			msg: message{
				Type:    domain.TypeWelcome,
				Title:   title,
				Message: "Your account is ready.",
			},
		}, true
	}
	return plan{}, false
}
