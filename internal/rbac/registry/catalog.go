package registry

import "saas-control-plane/backend/internal/rbac/domain"

// Resources and actions in the built-in catalog.
const (
	ResourceOrganization = "organization"
	ResourceMember       = "member"
	ResourceInvitation   = "invitation"
	ResourceNotification = "notification"
	ResourceAuditLog     = "audit_log"
	ResourceBilling      = "billing"
	ResourcePolicy       = "policy"
	ResourceRole         = "role"
	ResourceUser         = "user"
)

func perm(resource, action, name string) domain.Permission {
	slug := domain.PermissionSlug(resource, action)
	return domain.Permission{ID: "perm_" + resource + "_" + action, Slug: slug, Name: name, Resource: resource, Action: action}
}

// BuiltinPermissions is the static permission catalog.
func BuiltinPermissions() []domain.Permission {
	return []domain.Permission{
		perm(ResourceOrganization, "read", "View organization"),
		perm(ResourceOrganization, "update", "Update organization settings"),
		perm(ResourceOrganization, "delete", "Delete organization"),
		perm(ResourceMember, "read", "List members"),
		perm(ResourceMember, "invite", "Invite members"),
		perm(ResourceMember, "remove", "Remove members"),
		perm(ResourceMember, "update_role", "Change member roles"),
		perm(ResourceInvitation, "create", "Send invitations"),
		perm(ResourceInvitation, "revoke", "Revoke invitations"),
		perm(ResourceNotification, "read", "Read own notifications"),
		perm(ResourceNotification, "broadcast", "Send announcements to the organization"),
		perm(ResourceAuditLog, "read", "Read audit log"),
		perm(ResourceBilling, "read", "View billing"),
		perm(ResourceBilling, "manage", "Manage subscription"),
		perm(ResourcePolicy, "read", "View access policies"),
		perm(ResourcePolicy, "manage", "Manage access policies"),
		perm(ResourceRole, "manage", "Grant and revoke global roles"),
		perm(ResourceUser, "read", "View any user"),
	}
}

// BuiltinRoles is the static role catalog. All built-in roles are system roles.
func BuiltinRoles() []domain.Role {
	return []domain.Role{
		{
			ID: "role_super_admin", Slug: domain.RoleSuperAdmin, Name: "Super admin",
			Scope: domain.ScopeGlobal, IsSystem: true,
			Permissions: []string{domain.Wildcard},
		},
		{
			ID: "role_support", Slug: domain.RoleSupport, Name: "Support",
			Scope: domain.ScopeGlobal, IsSystem: true,
			Permissions: []string{"organization:read", "member:read", "audit_log:read", "user:read"},
		},
		{
			ID: "role_owner", Slug: domain.RoleOwner, Name: "Owner",
			Scope: domain.ScopeOrganization, IsSystem: true,
			Permissions: []string{
				"organization:*", "member:*", "invitation:*", "notification:*",
				"audit_log:read", "billing:*", "policy:*",
			},
		},
		{
			ID: "role_admin", Slug: domain.RoleAdmin, Name: "Admin",
			Scope: domain.ScopeOrganization, IsSystem: true,
			Permissions: []string{
				"organization:read", "organization:update",
				"member:read", "member:invite", "member:remove",
				"invitation:create", "invitation:revoke",
				"notification:read", "notification:broadcast",
				"audit_log:read", "billing:read", "policy:read", "policy:manage",
			},
		},
		{
			ID: "role_member", Slug: domain.RoleMember, Name: "Member",
			Scope: domain.ScopeOrganization, IsSystem: true,
			Permissions: []string{"organization:read", "member:read", "notification:read"},
		},
		{
			ID: "role_viewer", Slug: domain.RoleViewer, Name: "Viewer",
			Scope: domain.ScopeOrganization, IsSystem: true,
			Permissions: []string{"organization:read", "notification:read"},
		},
	}
}
