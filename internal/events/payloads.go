package events

import "time"

// UserCreatedPayload is published after a user registers.
type UserCreatedPayload struct {
	UserID string
	Email  string
	Name   string
}

func (UserCreatedPayload) EventName() Name { return UserCreated }
func (p UserCreatedPayload) Key() string { return "user:" + p.UserID }

// OrganizationCreatedPayload is published after an organization and its owner membership are created.
type OrganizationCreatedPayload struct {
	OrgID   string
	Name    string
	OwnerID string
}

func (OrganizationCreatedPayload) EventName() Name { return OrganizationCreated }
func (p OrganizationCreatedPayload) Key() string { return "org:" + p.OrgID }

// InvitationCreatedPayload is published when an email invitation is issued to someone who may not have an account.
type InvitationCreatedPayload struct {
	InvitationID string
	OrgID        string
	OrgName      string
	Email        string
	Role         string
	InvitedBy    string
	Token        string
	ExpiresAt    time.Time
}

func (InvitationCreatedPayload) EventName() Name { return InvitationCreated }
func (p InvitationCreatedPayload) Key() string { return "invitation:" + p.InvitationID }

// MemberJoinedPayload is published when a membership is created. InvitedBy is empty for self-service joins.
type MemberJoinedPayload struct {
	MembershipID string
	OrgID        string
	OrgName      string
	UserID       string
	Role         string
	InvitedBy    string
}

func (MemberJoinedPayload) EventName() Name { return MemberJoined }
func (p MemberJoinedPayload) Key() string { return "membership:" + p.MembershipID + ":joined" }

// MemberLeftPayload is published when a membership is deleted. RemovedBy equals UserID when the member left.
type MemberLeftPayload struct {
	MembershipID string
	OrgID        string
	OrgName      string
	UserID       string
	Role         string
	RemovedBy    string
}

func (MemberLeftPayload) EventName() Name { return MemberLeft }
func (p MemberLeftPayload) Key() string { return "membership:" + p.MembershipID + ":left" }

// Removed reports whether someone other than the member ended the membership.
func (p MemberLeftPayload) Removed() bool { return p.RemovedBy != "" && p.RemovedBy != p.UserID }

// MemberRoleChangedPayload is published when a membership's role changes.
type MemberRoleChangedPayload struct {
	MembershipID string
	OrgID        string
	UserID       string
	OldRole      string
	NewRole      string
	ChangedBy    string
}

func (MemberRoleChangedPayload) EventName() Name { return MemberRoleChanged }
func (p MemberRoleChangedPayload) Key() string {
	return "membership:" + p.MembershipID + ":role:" + p.OldRole + ">" + p.NewRole
}

// RoleGrantedPayload is published when a global role is granted.
type RoleGrantedPayload struct {
	UserID    string
	RoleSlug  string
	GrantedBy string
}

func (RoleGrantedPayload) EventName() Name { return RoleGranted }
func (p RoleGrantedPayload) Key() string { return "user-role:" + p.UserID + ":" + p.RoleSlug + ":granted" }

// RoleRevokedPayload is published when a global role is revoked.
type RoleRevokedPayload struct {
	UserID    string
	RoleSlug  string
	RevokedBy string
}

func (RoleRevokedPayload) EventName() Name { return RoleRevoked }
func (p RoleRevokedPayload) Key() string { return "user-role:" + p.UserID + ":" + p.RoleSlug + ":revoked" }

// SubscriptionCreatedPayload is published by the billing collaborator when an organization subscribes to a plan.
type SubscriptionCreatedPayload struct {
	SubscriptionID string
	OrgID          string
	Plan           string
	CreatedBy      string
}

func (SubscriptionCreatedPayload) EventName() Name { return SubscriptionCreated }
func (p SubscriptionCreatedPayload) Key() string { return "subscription:" + p.SubscriptionID }

// MentionedPayload is published when a user is mentioned in some subject (comment, document, ...).
type MentionedPayload struct {
	OrgID           string
	MentionedUserID string
	AuthorID        string
	SubjectType     string
	SubjectID       string
	Excerpt         string
}

func (MentionedPayload) EventName() Name { return Mentioned }
func (p MentionedPayload) Key() string {
	return "mention:" + p.SubjectType + ":" + p.SubjectID + ":" + p.MentionedUserID
}

// SystemAnnouncementPayload is published when an announcement is posted to every member of an organization.
type SystemAnnouncementPayload struct {
	AnnouncementID string
	OrgID          string
	Title          string
	Message        string
	Priority       string
	PostedBy       string
}

func (SystemAnnouncementPayload) EventName() Name { return SystemAnnouncement }
func (p SystemAnnouncementPayload) Key() string { return "announcement:" + p.AnnouncementID }

// AuthorizationDeniedPayload is published when a guard refuses a request.
type AuthorizationDeniedPayload struct {
	UserID        string
	OrgID         string
	Resource      string
	Action        string
	RequiredRoles []string
	Mode          string
	Reason        string
}

func (AuthorizationDeniedPayload) EventName() Name { return AuthorizationDenied }
func (p AuthorizationDeniedPayload) Key() string {
	return "denied:" + p.UserID + ":" + p.OrgID + ":" + p.Resource + ":" + p.Action
}
