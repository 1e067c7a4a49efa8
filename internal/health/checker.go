// Package health runs readiness checks against the service's dependencies.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is implemented by the OPA evaluator.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc reports a dependency as healthy by returning nil.
type CheckFunc func(ctx context.Context) error

// Status values reported by Report.
const (
	StatusOK        = "ok"
	StatusUnhealthy = "unhealthy"
)

// Report is the outcome of one Check run.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool { return r.Status == StatusOK }

// DefaultTimeout bounds each check.
const DefaultTimeout = 2 * time.Second

type namedCheck struct {
	name string
	fn   CheckFunc
}

// Checker is safe for concurrent use once all checks are added.
type Checker struct {
	timeout time.Duration
	checks  []namedCheck
}

// NewChecker returns a Checker with "database" and "policy_engine" checks for the non-nil arguments.
func NewChecker(db Pinger, policy PolicyChecker) *Checker {
	c := &Checker{timeout: DefaultTimeout}
	if db != nil {
		c.Add("database", db.PingContext)
	}
	if policy != nil {
		c.Add("policy_engine", policy.HealthCheck)
	}
	return c
}

// Add registers a named check.
func (c *Checker) Add(name string, fn CheckFunc) {
	c.checks = append(c.checks, namedCheck{name: name, fn: fn})
}

// Check runs every check concurrently. A Checker without checks is healthy.
func (c *Checker) Check(ctx context.Context) Report {
	rep := Report{Status: StatusOK, Checks: make(map[string]string, len(c.checks))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, nc := range c.checks {
		wg.Add(1)
		go func(nc namedCheck) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			res := StatusOK
			if err := nc.fn(cctx); err != nil {
				res = StatusUnhealthy + ": " + err.Error()
			}
			mu.Lock()
			rep.Checks[nc.name] = res
			if res != StatusOK {
				rep.Status = StatusUnhealthy
			}
			mu.Unlock()
		}(nc)
	}
	wg.Wait()
	return rep
}

// Names returns the registered check names, sorted.
func (c *Checker) Names() []string {
	out := make([]string, 0, len(c.checks))
	for _, nc := range c.checks {
		out = append(out, nc.name)
	}
	sort.Strings(out)
	return out
}
