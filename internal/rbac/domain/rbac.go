package domain

import (
	"strings"
	"time"
)

// Wildcard matches any resource or action in a permission slug.
const Wildcard = "*"

// Permission is an atomic allowed action on a resource. Slug is "resource:action".
type Permission struct {
	ID       string
	Slug     string
	Name     string
	Resource string
	Action   string
}

// PermissionSlug builds the canonical slug for (resource, action).
func PermissionSlug(resource, action string) string {
	return resource + ":" + action
}

// ParsePermissionSlug splits "resource:action". ok is false when the slug is malformed.
func ParsePermissionSlug(slug string) (resource, action string, ok bool) {
	resource, action, ok = strings.Cut(slug, ":")
	if !ok || resource == "" || action == "" {
		return "", "", false
	}
	return resource, action, true
}

// Scope says where a role can be assigned.
type Scope string

const (
	// ScopeGlobal roles are granted directly to a user (UserRole) and apply in every organization.
	ScopeGlobal Scope = "global"
	// ScopeOrganization roles are carried by a Membership.
	ScopeOrganization Scope = "organization"
)

// Role is a named bundle of permissions.
type Role struct {
	ID          string
	Slug        string
	Name        string
	Scope       Scope
	IsSystem    bool
	Permissions []string
}

// Well-known role slugs.
const (
	RoleSuperAdmin = "super-admin"
	RoleSupport    = "support"
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
	RoleMember     = "member"
	RoleViewer     = "viewer"
)

// UserRole is a global role grant to a user, independent of organization.
type UserRole struct {
	UserID    string
	RoleSlug  string
	GrantedBy string
	GrantedAt time.Time
}

// PermissionSet is a de-duplicated set of permission slugs.
type PermissionSet map[string]struct{}

// Add inserts slug.
func (s PermissionSet) Add(slug string) { s[slug] = struct{}{} }

// Has reports whether slug is in the set verbatim.
func (s PermissionSet) Has(slug string) bool {
	_, ok := s[slug]
	return ok
}

// Allows reports whether the set grants (resource, action), honouring "*" and "resource:*".
func (s PermissionSet) Allows(resource, action string) bool {
	return s.Has(Wildcard) ||
		s.Has(PermissionSlug(resource, Wildcard)) ||
		s.Has(PermissionSlug(resource, action))
}
