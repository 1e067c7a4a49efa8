package authz

import (
	"context"
	"log/slog"

	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/events"
)

// Publisher is the subset of *events.Bus used to report denials.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// EventDenialReporter publishes each denial as an authorization.denied event, which the audit
// listener set records.
type EventDenialReporter struct {
	bus    Publisher
	logger *slog.Logger
}

// NewEventDenialReporter returns a DenialReporter publishing to bus.
func NewEventDenialReporter(bus Publisher, logger *slog.Logger) *EventDenialReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventDenialReporter{bus: bus, logger: logger}
}

func (r *EventDenialReporter) ReportDenial(ctx context.Context, d Denial) {
	e := events.New(d.UserID, d.OrgID, events.AuthorizationDeniedPayload{
		UserID:        d.UserID,
		OrgID:         d.OrgID,
		Resource:      d.Resource,
		Action:        d.Action,
		RequiredRoles: d.RequiredRoles,
		Mode:          d.Mode,
		Reason:        d.Reason,
	})
	// Denials usually abort the surrounding transaction; report outside it.
	if err := r.bus.Publish(db.WithoutTx(ctx), e); err != nil {
		r.logger.Warn("authz: failed to report denial", "user_id", d.UserID, "org_id", d.OrgID, "error", err)
	}
}
