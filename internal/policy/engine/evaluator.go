package engine

import "context"

// AccessRequest is the input to an org policy decision. Roles is the caller's effective role set.
type AccessRequest struct {
	UserID   string
	OrgID    string
	Resource string
	Action   string
	Roles    []string
}

// Decision is the overlay result. Deny turns an RBAC allow into a denial.
type Decision struct {
	Deny   bool
	Reason string
}

// Evaluator evaluates org policies layered over RBAC using OPA or other engines.
type Evaluator interface {
	// EvaluateAccess evaluates the org's enabled policies for req. It only ever narrows access:
	// an RBAC denial is never turned into an allow.
	EvaluateAccess(ctx context.Context, req AccessRequest) (Decision, error)
}
