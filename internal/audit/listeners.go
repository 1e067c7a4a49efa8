package audit

import (
	"context"
	"errors"
	"sync"

	"saas-control-plane/backend/internal/events"
)

// ListenerID is the bus listener id of the audit set.
const ListenerID = "audit"

// Subscriber is the bus surface Register needs.
type Subscriber interface {
	Subscribe(name events.Name, listenerID string, h events.Handler, opts ...events.SubscribeOption) error
}

// Listeners turns domain events into audit records.
type Listeners struct {
	logger *Logger
	once   sync.Once
	err    error
}

// NewListeners returns a listener set writing through logger.
func NewListeners(logger *Logger) *Listeners {
	return &Listeners{logger: logger}
}

// Register subscribes the set to every audited event as a best-effort listener.
// Calls after the first return the first call's result.
func (l *Listeners) Register(bus Subscriber) error {
	l.once.Do(func() {
		var errs []error
		for _, name := range AuditedEvents {
			if err := bus.Subscribe(name, ListenerID, l.Handle); err != nil {
				errs = append(errs, err)
			}
		}
		l.err = errors.Join(errs...)
	})
	return l.err
}

// Handle records e. Events that are not audited are ignored.
func (l *Listeners) Handle(ctx context.Context, e events.Event) error {
	entry, ok := FromEvent(e)
	if !ok {
		return nil
	}
	return l.logger.Record(ctx, entry)
}
