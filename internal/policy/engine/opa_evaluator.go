package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"saas-control-plane/backend/internal/policy/repository"
)

const policyPackage = "data.saas.authz"

// Default Rego policy: never denies. Org policies add deny and reason rules to the same package.
const defaultRegoPolicy = `package saas.authz

default deny := false

default reason := ""
`

// OPAEvaluator evaluates org access policies using OPA Rego.
type OPAEvaluator struct {
	policyRepo repository.Repository
	logger     *slog.Logger
}

// NewOPAEvaluator returns an OPA-based policy evaluator.
func NewOPAEvaluator(policyRepo repository.Repository, logger *slog.Logger) *OPAEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &OPAEvaluator{policyRepo: policyRepo, logger: logger}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not call the policy repo or database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": defaultRegoPolicy})
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	d, err := evaluate(ctx, compiler, buildInput(AccessRequest{Resource: "organization", Action: "read"}))
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if d.Deny {
		return fmt.Errorf("default policy denied a baseline request")
	}
	return nil
}

// Validate reports whether rules compile as a saas.authz module together with the default policy.
func (e *OPAEvaluator) Validate(rules string) error {
	mod, err := ast.ParseModule("policy.rego", rules)
	if err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}
	if got := mod.Package.Path.String(); got != policyPackage {
		return fmt.Errorf("policy must declare package saas.authz, got %s", got)
	}
	if _, err := ast.CompileModules(map[string]string{
		"policy_0.rego": defaultRegoPolicy,
		"policy_1.rego": rules,
	}); err != nil {
		return fmt.Errorf("compile policy: %w", err)
	}
	return nil
}

// EvaluateAccess loads the org's enabled policies and evaluates deny. Orgs without policies are never
// denied. Load, compile and evaluation failures are logged and treated as no objection.
func (e *OPAEvaluator) EvaluateAccess(ctx context.Context, req AccessRequest) (Decision, error) {
	if req.OrgID == "" || e.policyRepo == nil {
		return Decision{}, nil
	}
	enabled, err := e.policyRepo.GetEnabledPoliciesByOrg(ctx, req.OrgID)
	if err != nil {
		e.logger.Error("policy: failed to load policies", "org_id", req.OrgID, "error", err)
		return Decision{}, nil
	}
	modules := map[string]string{"policy_0.rego": defaultRegoPolicy}
	for _, p := range enabled {
		if p.Enabled && p.Rules != "" {
			modules[fmt.Sprintf("policy_%d.rego", len(modules))] = p.Rules
		}
	}
	if len(modules) == 1 {
		return Decision{}, nil
	}

	compiler, err := ast.CompileModules(modules)
	if err != nil {
		e.logger.Error("policy: compile failed, ignoring org policies", "org_id", req.OrgID, "error", err)
		return Decision{}, nil
	}
	d, err := evaluate(ctx, compiler, buildInput(req))
	if err != nil {
		e.logger.Error("policy: evaluation failed, ignoring org policies", "org_id", req.OrgID, "error", err)
		return Decision{}, nil
	}
	return d, nil
}

func buildInput(req AccessRequest) map[string]interface{} {
	roles := make([]interface{}, len(req.Roles))
	for i, r := range req.Roles {
		roles[i] = r
	}
	return map[string]interface{}{
		"user":     map[string]interface{}{"id": req.UserID},
		"org":      map[string]interface{}{"id": req.OrgID},
		"roles":    roles,
		"resource": req.Resource,
		"action":   req.Action,
		"time":     time.Now().UTC().Format(time.RFC3339),
	}
}

func evaluate(ctx context.Context, compiler *ast.Compiler, input map[string]interface{}) (Decision, error) {
	q := rego.New(
		rego.Query(policyPackage+".deny"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return Decision{}, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("policy query returned no result")
	}
	deny, _ := rs[0].Expressions[0].Value.(bool)
	if !deny {
		return Decision{}, nil
	}

	out := Decision{Deny: true}
	reasonQuery := rego.New(
		rego.Query(policyPackage+".reason"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	if rrs, err := reasonQuery.Eval(ctx); err == nil && len(rrs) > 0 && len(rrs[0].Expressions) > 0 {
		if s, ok := rrs[0].Expressions[0].Value.(string); ok {
			out.Reason = s
		}
	}
	return out, nil
}
