package service

import (
	"context"
	"errors"
	"testing"

	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/policy/domain"
	"saas-control-plane/backend/internal/policy/engine"
)

// mockPolicyRepo is an in-memory PolicyRepo.
type mockPolicyRepo struct {
	policies map[string]*domain.Policy
}

func newMockPolicyRepo() *mockPolicyRepo {
	return &mockPolicyRepo{policies: map[string]*domain.Policy{}}
}

func (m *mockPolicyRepo) GetByID(_ context.Context, id string) (*domain.Policy, error) {
	p, ok := m.policies[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockPolicyRepo) ListByOrg(_ context.Context, orgID string) ([]*domain.Policy, error) {
	var out []*domain.Policy
	for _, p := range m.policies {
		if p.OrgID == orgID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPolicyRepo) Create(_ context.Context, p *domain.Policy) error {
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *mockPolicyRepo) Update(_ context.Context, p *domain.Policy) error {
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *mockPolicyRepo) Delete(_ context.Context, id string) error {
	delete(m.policies, id)
	return nil
}

const denyDeletes = `package saas.authz

deny if input.action == "delete"

reason := "deletes are frozen" if input.action == "delete"
`

func TestPolicyService_CreateValidatesRego(t *testing.T) {
	repo := newMockPolicyRepo()
	svc := NewPolicyService(repo, engine.NewOPAEvaluator(nil, nil))
	ctx := context.Background()

	p, err := svc.Create(ctx, "org-1", denyDeletes, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == "" || !p.Enabled || len(repo.policies) != 1 {
		t.Errorf("created = %+v", p)
	}

	tests := []struct {
		name  string
		rules string
	}{
		{"empty", "  "},
		{"syntax error", "package saas.authz\n\ndeny if {"},
		{"wrong package", "package other\n\ndeny := true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, "org-1", tt.rules, true); !errors.Is(err, apperr.ErrBadRequest) {
				t.Errorf("Create = %v, want BadRequest", err)
			}
		})
	}
}

func TestPolicyService_UpdateAndDeleteScopedToOrg(t *testing.T) {
	repo := newMockPolicyRepo()
	svc := NewPolicyService(repo, nil)
	ctx := context.Background()
	p, err := svc.Create(ctx, "org-1", denyDeletes, true)
	if err != nil {
		t.Fatal(err)
	}

	disabled := false
	got, err := svc.Update(ctx, "org-1", p.ID, PolicyUpdate{Enabled: &disabled})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Enabled || got.Rules != denyDeletes {
		t.Errorf("updated = %+v", got)
	}

	if _, err := svc.Update(ctx, "org-2", p.ID, PolicyUpdate{Enabled: &disabled}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Update from other org = %v, want NotFound", err)
	}
	if err := svc.Delete(ctx, "org-2", p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete from other org = %v, want NotFound", err)
	}
	if err := svc.Delete(ctx, "org-1", p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(repo.policies) != 0 {
		t.Error("policy not deleted")
	}
}
