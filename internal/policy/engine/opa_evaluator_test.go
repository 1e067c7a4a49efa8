package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"saas-control-plane/backend/internal/policy/domain"
	"saas-control-plane/backend/internal/policy/repository"
)

// mockPolicyRepo implements repository.Repository for tests.
type mockPolicyRepo struct {
	policies map[string][]*domain.Policy
	err      error
}

var _ repository.Repository = (*mockPolicyRepo)(nil)

func (m *mockPolicyRepo) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	return nil, nil
}

func (m *mockPolicyRepo) ListByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return m.policies[orgID], nil
}

func (m *mockPolicyRepo) GetEnabledPoliciesByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.policies == nil {
		return nil, nil
	}
	return m.policies[orgID], nil
}

func (m *mockPolicyRepo) Create(ctx context.Context, p *domain.Policy) error {
	return nil
}

func (m *mockPolicyRepo) Update(ctx context.Context, p *domain.Policy) error {
	return nil
}

func (m *mockPolicyRepo) Delete(ctx context.Context, id string) error {
	return nil
}

const ownerOnlyBilling = `package saas.authz

deny if {
	input.resource == "billing"
	not owner
}

owner if {
	some r in input.roles
	r == "owner"
}

reason := "billing is restricted to owners" if {
	input.resource == "billing"
}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	// HealthCheck does not use the policy repo.
	e := NewOPAEvaluator(nil, quietLogger())
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_EvaluateAccess(t *testing.T) {
	repo := &mockPolicyRepo{policies: map[string][]*domain.Policy{
		"org-1": {{ID: "p1", OrgID: "org-1", Rules: ownerOnlyBilling, Enabled: true}},
	}}
	e := NewOPAEvaluator(repo, quietLogger())

	tests := []struct {
		name   string
		req    AccessRequest
		deny   bool
		reason string
	}{
		{"admin on billing denied", AccessRequest{UserID: "u", OrgID: "org-1", Resource: "billing", Action: "read", Roles: []string{"admin"}}, true, "billing is restricted to owners"},
		{"owner on billing allowed", AccessRequest{UserID: "u", OrgID: "org-1", Resource: "billing", Action: "read", Roles: []string{"owner"}}, false, ""},
		{"other resource allowed", AccessRequest{UserID: "u", OrgID: "org-1", Resource: "member", Action: "read", Roles: []string{"admin"}}, false, ""},
		{"org without policies", AccessRequest{UserID: "u", OrgID: "org-2", Resource: "billing", Action: "read", Roles: []string{"admin"}}, false, ""},
		{"no org", AccessRequest{UserID: "u", Resource: "billing", Action: "read"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.EvaluateAccess(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("EvaluateAccess: %v", err)
			}
			if d.Deny != tt.deny || d.Reason != tt.reason {
				t.Errorf("decision = %+v, want deny=%v reason=%q", d, tt.deny, tt.reason)
			}
		})
	}
}

func TestOPAEvaluator_EvaluateAccess_FailuresDoNotDeny(t *testing.T) {
	req := AccessRequest{UserID: "u", OrgID: "org-1", Resource: "billing", Action: "read"}
	tests := []struct {
		name string
		repo *mockPolicyRepo
	}{
		{"repo error", &mockPolicyRepo{err: errors.New("db down")}},
		{"invalid rego", &mockPolicyRepo{policies: map[string][]*domain.Policy{
			"org-1": {{ID: "p1", OrgID: "org-1", Rules: "package saas.authz\n\ndeny if {", Enabled: true}},
		}}},
		{"disabled policy ignored", &mockPolicyRepo{policies: map[string][]*domain.Policy{
			"org-1": {{ID: "p1", OrgID: "org-1", Rules: ownerOnlyBilling, Enabled: false}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewOPAEvaluator(tt.repo, quietLogger()).EvaluateAccess(context.Background(), req)
			if err != nil || d.Deny {
				t.Errorf("EvaluateAccess = %+v, %v; want no denial", d, err)
			}
		})
	}
}

func TestOPAEvaluator_Validate(t *testing.T) {
	e := NewOPAEvaluator(nil, quietLogger())
	if err := e.Validate(ownerOnlyBilling); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
	if err := e.Validate("package other\n\ndeny := true\n"); err == nil {
		t.Error("Validate should reject a foreign package")
	}
	if err := e.Validate("package saas.authz\n\ndeny if {"); err == nil {
		t.Error("Validate should reject unparsable rules")
	}
	if err := e.Validate("package saas.authz\n\ndefault deny := true\n"); err == nil {
		t.Error("Validate should reject a second default for deny")
	}
}
