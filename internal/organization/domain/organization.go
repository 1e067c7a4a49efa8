package domain

import (
	"errors"
	"time"
)

// Org represents an organization/tenant.
type Org struct {
	ID        string
	Name      string
	Status    OrgStatus
	CreatedBy string
	CreatedAt time.Time
}

type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
)

// Suspended reports whether the organization is suspended. Suspended organizations keep their data
// and members but accept no new ones.
func (o *Org) Suspended() bool { return o.Status == OrgStatusSuspended }

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	if o.Name == "" {
		return errors.New("name is required")
	}
	if len(o.Name) > 200 {
		return errors.New("name must be at most 200 characters")
	}
	if o.Status == "" {
		o.Status = OrgStatusActive
	}
	return nil
}
