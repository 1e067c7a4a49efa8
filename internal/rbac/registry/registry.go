// Package registry holds the permission and role catalog shared by memberships, global role grants
// and the authorization evaluator.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/rbac/domain"
)

// Registry is the permission and role catalog. Safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	permissions map[string]domain.Permission
	resources   map[string]bool
	roles       map[string]domain.Role
}

// New validates perms and roles and returns a Registry holding them.
// Permission slugs and (resource, action) pairs must be unique, role slugs must be unique,
// and every permission a role references must exist.
func New(perms []domain.Permission, roles []domain.Role) (*Registry, error) {
	r := &Registry{
		permissions: make(map[string]domain.Permission, len(perms)),
		resources:   make(map[string]bool),
		roles:       make(map[string]domain.Role, len(roles)),
	}
	pairs := make(map[string]string, len(perms))
	for _, p := range perms {
		res, act, ok := domain.ParsePermissionSlug(p.Slug)
		if !ok || res != p.Resource || act != p.Action {
			return nil, fmt.Errorf("registry: permission %q does not match %s:%s", p.Slug, p.Resource, p.Action)
		}
		if _, dup := r.permissions[p.Slug]; dup {
			return nil, fmt.Errorf("registry: duplicate permission slug %q", p.Slug)
		}
		pair := p.Resource + "\x00" + p.Action
		if other, dup := pairs[pair]; dup {
			return nil, fmt.Errorf("registry: permissions %q and %q share resource and action", other, p.Slug)
		}
		pairs[pair] = p.Slug
		r.permissions[p.Slug] = p
		r.resources[p.Resource] = true
	}
	for _, role := range roles {
		if err := r.addRole(role); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns a Registry with the built-in catalog. It panics if the catalog is invalid.
func Default() *Registry {
	r, err := New(BuiltinPermissions(), BuiltinRoles())
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) addRole(role domain.Role) error {
	if role.Slug == "" {
		return fmt.Errorf("registry: role slug is required")
	}
	if role.Scope != domain.ScopeGlobal && role.Scope != domain.ScopeOrganization {
		return fmt.Errorf("registry: role %q has invalid scope %q", role.Slug, role.Scope)
	}
	if _, dup := r.roles[role.Slug]; dup {
		return apperr.Conflict(fmt.Sprintf("role %q already exists", role.Slug))
	}
	for _, slug := range role.Permissions {
		if !r.knownPermission(slug) {
			return apperr.NotFound(fmt.Sprintf("role %q references unknown permission %q", role.Slug, slug))
		}
	}
	role.Permissions = append([]string(nil), role.Permissions...)
	r.roles[role.Slug] = role
	return nil
}

func (r *Registry) knownPermission(slug string) bool {
	if slug == domain.Wildcard {
		return true
	}
	if _, ok := r.permissions[slug]; ok {
		return true
	}
	res, act, ok := domain.ParsePermissionSlug(slug)
	return ok && act == domain.Wildcard && r.resources[res]
}

// Define adds a custom, non-system role. Existing slugs (system or not) are a Conflict.
func (r *Registry) Define(role domain.Role) error {
	role.IsSystem = false
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addRole(role)
}

// Remove deletes a custom role. System roles are Forbidden; unknown slugs are NotFound.
func (r *Registry) Remove(slug string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[slug]
	if !ok {
		return apperr.NotFound(fmt.Sprintf("role %q not found", slug))
	}
	if role.IsSystem {
		return apperr.Forbidden(fmt.Sprintf("role %q is a system role", slug))
	}
	delete(r.roles, slug)
	return nil
}

// Role returns the role for slug.
func (r *Registry) Role(slug string) (domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[slug]
	if ok {
		role.Permissions = append([]string(nil), role.Permissions...)
	}
	return role, ok
}

// Permission returns the permission for slug.
func (r *Registry) Permission(slug string) (domain.Permission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.permissions[slug]
	return p, ok
}

// Roles returns every role sorted by slug.
func (r *Registry) Roles() []domain.Role {
	r.mu.RLock()
	out := make([]domain.Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// IsGlobal reports whether slug is a registered global-scope role.
func (r *Registry) IsGlobal(slug string) bool {
	role, ok := r.Role(slug)
	return ok && role.Scope == domain.ScopeGlobal
}

// Closure returns the de-duplicated permissions reachable from roleSlugs. Unknown slugs contribute nothing.
func (r *Registry) Closure(roleSlugs []string) domain.PermissionSet {
	set := make(domain.PermissionSet)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, slug := range roleSlugs {
		role, ok := r.roles[slug]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			set.Add(p)
		}
	}
	return set
}
