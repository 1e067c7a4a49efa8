package domain

import (
	"errors"
	"strings"
	"time"
)

// Policy is an org-level Rego module layered over RBAC. Rules must declare package saas.authz and may
// contribute to the deny and reason rules.
type Policy struct {
	ID        string
	OrgID     string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}

// Validate checks the fields the repository requires. Rego compilation is checked by the engine.
func (p *Policy) Validate() error {
	if p.OrgID == "" {
		return errors.New("policy org is required")
	}
	if strings.TrimSpace(p.Rules) == "" {
		return errors.New("policy rules are required")
	}
	return nil
}
