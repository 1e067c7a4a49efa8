package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/policy/domain"
)

// PolicyRepo is the subset of the policy repository used by PolicyService.
type PolicyRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Policy, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	Update(ctx context.Context, p *domain.Policy) error
	Delete(ctx context.Context, id string) error
}

// Validator compiles Rego rules. Implemented by *engine.OPAEvaluator.
type Validator interface {
	Validate(rules string) error
}

// PolicyService manages an organization's Rego overlay policies.
type PolicyService struct {
	policies  PolicyRepo
	validator Validator
	now       func() time.Time
}

// NewPolicyService returns a PolicyService. Rules are compiled with validator before they are stored.
func NewPolicyService(policies PolicyRepo, validator Validator) *PolicyService {
	return &PolicyService{policies: policies, validator: validator, now: func() time.Time { return time.Now().UTC() }}
}

// List returns the organization's policies.
func (s *PolicyService) List(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return s.policies.ListByOrg(ctx, orgID)
}

// Create stores a new policy after validating its rules.
func (s *PolicyService) Create(ctx context.Context, orgID, rules string, enabled bool) (*domain.Policy, error) {
	p := &domain.Policy{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		Rules:     rules,
		Enabled:   enabled,
		CreatedAt: s.now(),
	}
	if err := s.validate(p); err != nil {
		return nil, err
	}
	if err := s.policies.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// PolicyUpdate carries the fields to change; nil fields keep their value.
type PolicyUpdate struct {
	Rules   *string
	Enabled *bool
}

// Update changes a policy of orgID. Policies of other organizations are NotFound.
func (s *PolicyService) Update(ctx context.Context, orgID, id string, u PolicyUpdate) (*domain.Policy, error) {
	p, err := s.get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if u.Rules != nil {
		p.Rules = *u.Rules
	}
	if u.Enabled != nil {
		p.Enabled = *u.Enabled
	}
	if err := s.validate(p); err != nil {
		return nil, err
	}
	if err := s.policies.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a policy of orgID.
func (s *PolicyService) Delete(ctx context.Context, orgID, id string) error {
	if _, err := s.get(ctx, orgID, id); err != nil {
		return err
	}
	return s.policies.Delete(ctx, id)
}

func (s *PolicyService) get(ctx context.Context, orgID, id string) (*domain.Policy, error) {
	if id == "" {
		return nil, apperr.BadRequest("policy id is required")
	}
	p, err := s.policies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.OrgID != orgID {
		return nil, apperr.NotFound("policy not found")
	}
	return p, nil
}

func (s *PolicyService) validate(p *domain.Policy) error {
	if err := p.Validate(); err != nil {
		return apperr.BadRequest(err.Error())
	}
	if s.validator == nil {
		return nil
	}
	if err := s.validator.Validate(p.Rules); err != nil {
		return apperr.BadRequest(err.Error())
	}
	return nil
}
