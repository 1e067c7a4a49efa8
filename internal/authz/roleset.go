package authz

import rbacdomain "saas-control-plane/backend/internal/rbac/domain"

// RoleSet is a user's effective roles within one organization: global grants plus the membership role.
type RoleSet struct {
	Global []string `json:"global,omitempty"`
	Org    string   `json:"org,omitempty"`
}

// Has reports whether slug is in the effective set. The empty slug is never held.
func (rs RoleSet) Has(slug string) bool {
	if slug == "" {
		return false
	}
	if rs.Org == slug {
		return true
	}
	for _, g := range rs.Global {
		if g == slug {
			return true
		}
	}
	return false
}

// SuperAdmin reports whether the set carries the global super-admin grant.
func (rs RoleSet) SuperAdmin() bool {
	for _, g := range rs.Global {
		if g == rbacdomain.RoleSuperAdmin {
			return true
		}
	}
	return false
}

// Slugs returns the de-duplicated effective role slugs, global grants first.
func (rs RoleSet) Slugs() []string {
	out := make([]string, 0, len(rs.Global)+1)
	seen := make(map[string]bool, len(rs.Global)+1)
	for _, g := range rs.Global {
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	if rs.Org != "" && !seen[rs.Org] {
		out = append(out, rs.Org)
	}
	return out
}
