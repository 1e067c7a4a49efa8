// Package authz answers whether a user may act within an organization. The effective role set is the
// user's global grants plus their membership role; a global super-admin grant bypasses every check.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	membershipdomain "saas-control-plane/backend/internal/membership/domain"
	"saas-control-plane/backend/internal/platform/apperr"
	policyengine "saas-control-plane/backend/internal/policy/engine"
	rbacdomain "saas-control-plane/backend/internal/rbac/domain"
	"saas-control-plane/backend/internal/rbac/registry"
)

// Mode selects how a list of required roles is matched against the effective role set.
type Mode int

const (
	// ModeAll requires every listed role.
	ModeAll Mode = iota + 1
	// ModeAny requires at least one listed role.
	ModeAny
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeAny:
		return "any"
	}
	return "unknown"
}

// conjunction joins required roles in Forbidden messages.
func (m Mode) conjunction() string {
	if m == ModeAll {
		return " et "
	}
	return " ou "
}

// ModeFor maps a requireAll flag to a Mode.
func ModeFor(requireAll bool) Mode {
	if requireAll {
		return ModeAll
	}
	return ModeAny
}

// MembershipGetter returns a user's membership in an org, or nil when there is none.
type MembershipGetter interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error)
}

// GrantLister returns a user's global role grants.
type GrantLister interface {
	ListByUser(ctx context.Context, userID string) ([]*rbacdomain.UserRole, error)
}

// Denial describes a refused guard check.
type Denial struct {
	UserID        string
	OrgID         string
	Resource      string
	Action        string
	RequiredRoles []string
	Mode          string
	Reason        string
}

// DenialReporter receives guard denials. Implementations must not block.
type DenialReporter interface {
	ReportDenial(ctx context.Context, d Denial)
}

// Options configures optional Evaluator collaborators.
type Options struct {
	// Cache defaults to NopCache.
	Cache Cache
	// Policy, when set, can veto RBAC allows from Can for org-scoped checks.
	Policy  policyengine.Evaluator
	Denials DenialReporter
	Logger  *slog.Logger
}

// Evaluator is safe for concurrent use.
type Evaluator struct {
	memberships MembershipGetter
	grants      GrantLister
	registry    *registry.Registry
	cache       Cache
	policy      policyengine.Evaluator
	denials     DenialReporter
	logger      *slog.Logger

	sf singleflight.Group
}

// NewEvaluator returns an Evaluator over the given stores and role catalog.
func NewEvaluator(memberships MembershipGetter, grants GrantLister, reg *registry.Registry, opts Options) *Evaluator {
	if opts.Cache == nil {
		opts.Cache = NopCache{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Evaluator{
		memberships: memberships,
		grants:      grants,
		registry:    reg,
		cache:       opts.Cache,
		policy:      opts.Policy,
		denials:     opts.Denials,
		logger:      opts.Logger,
	}
}

// HasAnyRole reports whether the user holds at least one of roles in orgID.
func (e *Evaluator) HasAnyRole(ctx context.Context, userID, orgID string, roles []string) (bool, error) {
	return e.evaluate(ctx, userID, orgID, roles, ModeAny)
}

// HasAllRoles reports whether the user holds every one of roles in orgID.
func (e *Evaluator) HasAllRoles(ctx context.Context, userID, orgID string, roles []string) (bool, error) {
	return e.evaluate(ctx, userID, orgID, roles, ModeAll)
}

// RequireRole is the guard form of HasAnyRole/HasAllRoles: a mismatch is a Forbidden error naming
// the required roles, and is reported to the DenialReporter.
func (e *Evaluator) RequireRole(ctx context.Context, userID, orgID string, roles []string, requireAll bool) error {
	mode := ModeFor(requireAll)
	ok, err := e.evaluate(ctx, userID, orgID, roles, mode)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	e.report(ctx, Denial{UserID: userID, OrgID: orgID, RequiredRoles: roles, Mode: mode.String()})
	return &apperr.Error{
		Kind:          apperr.ErrForbidden,
		Message:       "Permissions insuffisantes. Rôles requis : " + strings.Join(roles, mode.conjunction()),
		RequiredRoles: append([]string(nil), roles...),
	}
}

func (e *Evaluator) evaluate(ctx context.Context, userID, orgID string, roles []string, mode Mode) (bool, error) {
	if userID == "" {
		return false, apperr.Unauthenticated("Authentification requise")
	}
	if orgID == "" {
		return false, apperr.BadRequest("Identifiant d'organisation requis")
	}
	if len(roles) == 0 {
		return false, apperr.BadRequest("Aucun rôle requis fourni")
	}
	for _, r := range roles {
		if r == "" {
			return false, apperr.BadRequest("Rôle requis vide")
		}
	}
	rs, err := e.RoleSet(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	if rs.SuperAdmin() {
		return true, nil
	}
	switch mode {
	case ModeAll:
		for _, r := range roles {
			if !rs.Has(r) {
				return false, nil
			}
		}
		return true, nil
	case ModeAny:
		for _, r := range roles {
			if rs.Has(r) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("authz: unknown mode %d", mode)
}

// Can reports whether the user's permission closure allows resource:action in orgID. An empty orgID
// evaluates global grants only. For org-scoped allows the org policy overlay may still deny.
func (e *Evaluator) Can(ctx context.Context, userID, orgID, resource, action string) (bool, error) {
	ok, _, err := e.can(ctx, userID, orgID, resource, action)
	return ok, err
}

// RequirePermission is the guard form of Can.
func (e *Evaluator) RequirePermission(ctx context.Context, userID, orgID, resource, action string) error {
	ok, reason, err := e.can(ctx, userID, orgID, resource, action)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	e.report(ctx, Denial{UserID: userID, OrgID: orgID, Resource: resource, Action: action, Reason: reason})
	msg := "Permissions insuffisantes. Permission requise : " + rbacdomain.PermissionSlug(resource, action)
	if reason != "" {
		msg += " (" + reason + ")"
	}
	return apperr.Forbidden(msg)
}

func (e *Evaluator) can(ctx context.Context, userID, orgID, resource, action string) (bool, string, error) {
	if userID == "" {
		return false, "", apperr.Unauthenticated("Authentification requise")
	}
	if resource == "" || action == "" {
		return false, "", apperr.BadRequest("Ressource et action requises")
	}
	rs, err := e.RoleSet(ctx, userID, orgID)
	if err != nil {
		return false, "", err
	}
	if rs.SuperAdmin() {
		return true, "", nil
	}
	slugs := rs.Slugs()
	if !e.registry.Closure(slugs).Allows(resource, action) {
		return false, "", nil
	}
	if e.policy == nil || orgID == "" {
		return true, "", nil
	}
	d, err := e.policy.EvaluateAccess(ctx, policyengine.AccessRequest{
		UserID: userID, OrgID: orgID, Resource: resource, Action: action, Roles: slugs,
	})
	if err != nil {
		return false, "", fmt.Errorf("authz: policy overlay: %w", err)
	}
	if d.Deny {
		return false, d.Reason, nil
	}
	return true, "", nil
}

// RoleSet resolves the effective role set, using the cache when possible. Concurrent misses for the
// same key share one load.
func (e *Evaluator) RoleSet(ctx context.Context, userID, orgID string) (RoleSet, error) {
	gen, err := e.cache.Generation(ctx, userID)
	if err != nil {
		e.logger.Warn("authz: cache unavailable, loading roles from store", "user_id", userID, "error", err)
		return e.load(ctx, userID, orgID)
	}
	rs, ok, err := e.cache.Get(ctx, userID, orgID, gen)
	if err != nil {
		e.logger.Warn("authz: cache read failed", "user_id", userID, "org_id", orgID, "error", err)
	} else if ok {
		return rs, nil
	}

	key := fmt.Sprintf("%s|%s|%d", userID, orgID, gen)
	v, err, _ := e.sf.Do(key, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		rs, err := e.load(loadCtx, userID, orgID)
		if err != nil {
			return RoleSet{}, err
		}
		if err := e.cache.Set(loadCtx, userID, orgID, gen, rs); err != nil {
			e.logger.Warn("authz: cache write failed", "user_id", userID, "org_id", orgID, "error", err)
		}
		return rs, nil
	})
	if err != nil {
		return RoleSet{}, err
	}
	return v.(RoleSet), nil
}

func (e *Evaluator) load(ctx context.Context, userID, orgID string) (RoleSet, error) {
	grants, err := e.grants.ListByUser(ctx, userID)
	if err != nil {
		return RoleSet{}, fmt.Errorf("authz: load global roles: %w", err)
	}
	var rs RoleSet
	for _, g := range grants {
		rs.Global = append(rs.Global, g.RoleSlug)
	}
	if orgID == "" {
		return rs, nil
	}
	m, err := e.memberships.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return RoleSet{}, fmt.Errorf("authz: load membership: %w", err)
	}
	if m != nil {
		rs.Org = string(m.Role)
	}
	return rs, nil
}

// Invalidate drops every cached role set of userID. Call it before and after committing a
// membership or role-grant change for the user.
func (e *Evaluator) Invalidate(ctx context.Context, userID string) error {
	if err := e.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("authz: invalidate %s: %w", userID, err)
	}
	return nil
}

func (e *Evaluator) report(ctx context.Context, d Denial) {
	if e.denials == nil {
		return
	}
	e.denials.ReportDenial(ctx, d)
}
