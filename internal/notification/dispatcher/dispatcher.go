// Package dispatcher turns domain events into notifications, honoring each recipient's
// per-channel preferences.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"saas-control-plane/backend/internal/events"
	membershipdomain "saas-control-plane/backend/internal/membership/domain"
	"saas-control-plane/backend/internal/notification/delivery"
	"saas-control-plane/backend/internal/notification/domain"
)

// ListenerID is the bus listener id of the dispatcher.
const ListenerID = "notification-dispatcher"

// DispatchedEvents lists the events the dispatcher subscribes to.
var DispatchedEvents = []events.Name{
	events.UserCreated,
	events.InvitationCreated,
	events.MemberJoined,
	events.MemberLeft,
	events.Mentioned,
	events.SystemAnnouncement,
	events.SubscriptionCreated,
}

// Store persists in-app notifications.
type Store interface {
	Create(ctx context.Context, n *domain.Notification) (bool, error)
}

// PreferenceLookup returns a user's explicit choices for one type.
type PreferenceLookup interface {
	PreferencesFor(ctx context.Context, userID string, t domain.Type) (map[domain.Channel]bool, error)
}

// MemberLister lists an organization's memberships.
type MemberLister interface {
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*membershipdomain.Membership, error)
}

// Queue schedules external deliveries.
type Queue interface {
	Enqueue(ctx context.Context, job delivery.Job) error
}

// Subscriber is the bus surface Register needs.
type Subscriber interface {
	Subscribe(name events.Name, listenerID string, h events.Handler, opts ...events.SubscribeOption) error
}

// Options configures a Dispatcher. Zero values select defaults.
type Options struct {
	Policy *domain.ChannelPolicy
	Logger *slog.Logger
	// FanOut bounds concurrent recipients per event.
	FanOut int
}

// Dispatcher is the notification listener.
type Dispatcher struct {
	store   Store
	prefs   PreferenceLookup
	members MemberLister
	queue   Queue
	policy  *domain.ChannelPolicy
	logger  *slog.Logger
	fanOut  int
	now     func() time.Time
}

// New returns a Dispatcher. queue may be nil, in which case external channels are skipped.
func New(store Store, prefs PreferenceLookup, members MemberLister, queue Queue, opts Options) *Dispatcher {
	if opts.Policy == nil {
		opts.Policy = domain.DefaultChannelPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FanOut <= 0 {
		opts.FanOut = 8
	}
	return &Dispatcher{
		store:   store,
		prefs:   prefs,
		members: members,
		queue:   queue,
		policy:  opts.Policy,
		logger:  opts.Logger,
		fanOut:  opts.FanOut,
		now:     time.Now,
	}
}

// Register subscribes the dispatcher as a best-effort listener.
func (d *Dispatcher) Register(bus Subscriber) error {
	var errs []error
	for _, name := range DispatchedEvents {
		if err := bus.Subscribe(name, ListenerID, d.Handle); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DedupKey identifies the occurrence behind e. Republishing the same occurrence yields the same key.
func DedupKey(e events.Event) string {
	return string(e.Name) + ":" + e.Payload.Key()
}

// Handle delivers e to every target. A failing recipient does not stop the others; their errors are joined.
func (d *Dispatcher) Handle(ctx context.Context, e events.Event) error {
	p, ok := planFor(e)
	if !ok {
		return nil
	}
	targets, err := d.resolve(ctx, p)
	if err != nil {
		return fmt.Errorf("dispatcher: resolve %s recipients: %w", e.Name, err)
	}
	key := DedupKey(e)

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(d.fanOut)
	for _, t := range targets {
		g.Go(func() error {
			if err := d.deliver(ctx, p.msg, t, key); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("recipient %s: %w", recipient(t), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (d *Dispatcher) resolve(ctx context.Context, p plan) ([]target, error) {
	if p.who == audienceExplicit {
		return p.targets, nil
	}
	members, err := d.members.ListMembershipsByOrg(ctx, p.msg.OrgID)
	if err != nil {
		return nil, err
	}
	var out []target
	for _, m := range members {
		if m.UserID == p.exclude {
			continue
		}
		switch p.who {
		case audienceOwners:
			if m.Role != membershipdomain.RoleOwner {
				continue
			}
		case audienceOwnersAndAdmins:
			if m.Role != membershipdomain.RoleOwner && m.Role != membershipdomain.RoleAdmin {
				continue
			}
		}
		out = append(out, target{UserID: m.UserID})
	}
	return out, nil
}

// channels returns the channels msg reaches for t. Address-only targets get email.
func (d *Dispatcher) channels(ctx context.Context, msg message, t target) ([]domain.Channel, error) {
	if t.UserID == "" {
		return []domain.Channel{domain.ChannelEmail}, nil
	}
	explicit, err := d.prefs.PreferencesFor(ctx, t.UserID, msg.Type)
	if err != nil {
		return nil, err
	}
	if msg.EmailOnly {
		if d.policy.Enabled(msg.Type, domain.ChannelEmail, explicit) {
			return []domain.Channel{domain.ChannelEmail}, nil
		}
		return nil, nil
	}
	return d.policy.Resolve(msg.Type, explicit), nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg message, t target, key string) error {
	channels, err := d.channels(ctx, msg, t)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return nil
	}
	priority := msg.Priority
	if !priority.Valid() {
		priority = d.policy.Defaults(msg.Type).Priority
	}

	var notificationID string
	for _, ch := range channels {
		if ch != domain.ChannelInApp {
			continue
		}
		n := &domain.Notification{
			ID:        uuid.New().String(),
			UserID:    t.UserID,
			OrgID:     msg.OrgID,
			Type:      msg.Type,
			Priority:  priority,
			Title:     msg.Title,
			Message:   msg.Message,
			Data:      msg.Data,
			Actions:   msg.Actions,
			Channels:  channels,
			DedupKey:  key,
			CreatedAt: d.now().UTC(),
		}
		created, err := d.store.Create(ctx, n)
		if err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		if !created {
			d.logger.DebugContext(ctx, "dispatcher: duplicate notification skipped", "user_id", t.UserID, "type", msg.Type, "dedup_key", key)
			return nil
		}
		notificationID = n.ID
	}

	var errs []error
	for _, ch := range channels {
		if !ch.External() {
			continue
		}
		if d.queue == nil {
			d.logger.DebugContext(ctx, "dispatcher: no delivery queue, skipping", "channel", ch, "type", msg.Type)
			continue
		}
		err := d.queue.Enqueue(ctx, delivery.Job{
			Channel:        ch,
			UserID:         t.UserID,
			Email:          t.Email,
			OrgID:          msg.OrgID,
			NotificationID: notificationID,
			Type:           msg.Type,
			Priority:       priority,
			Title:          msg.Title,
			Message:        msg.Message,
			Data:           msg.Data,
			Actions:        msg.Actions,
			DedupKey:       key,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

func recipient(t target) string {
	if t.UserID != "" {
		return t.UserID
	}
	return t.Email
}
