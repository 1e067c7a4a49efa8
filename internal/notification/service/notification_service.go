package service

import (
	"context"
	"time"

	"saas-control-plane/backend/internal/notification/domain"
	"saas-control-plane/backend/internal/platform/apperr"
)

// NotificationRepo is the minimal notification repository needed by the service.
type NotificationRepo interface {
	ListByUser(ctx context.Context, userID string, f domain.ListFilter) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
}

// PreferenceRepo is the minimal preference repository needed by the service.
type PreferenceRepo interface {
	ListPreferences(ctx context.Context, userID string) ([]*domain.Preference, error)
	UpsertPreference(ctx context.Context, p *domain.Preference) error
}

// EffectivePreference is one cell of a user's preference matrix.
type EffectivePreference struct {
	Type    domain.Type    `json:"type"`
	Channel domain.Channel `json:"channel"`
	Enabled bool           `json:"enabled"`
	// Explicit is true when the user has a preference row for the cell.
	Explicit bool `json:"explicit"`
}

// NotificationService exposes a user's notifications and delivery preferences.
type NotificationService struct {
	notifications NotificationRepo
	prefs         PreferenceRepo
	policy        *domain.ChannelPolicy
	now           func() time.Time
}

// NewNotificationService returns a NotificationService. A nil policy selects domain.DefaultChannelPolicy.
func NewNotificationService(notifications NotificationRepo, prefs PreferenceRepo, policy *domain.ChannelPolicy) *NotificationService {
	if policy == nil {
		policy = domain.DefaultChannelPolicy()
	}
	return &NotificationService{notifications: notifications, prefs: prefs, policy: policy, now: time.Now}
}

func (s *NotificationService) List(ctx context.Context, userID string, f domain.ListFilter) ([]*domain.Notification, error) {
	if userID == "" {
		return nil, apperr.Unauthenticated("")
	}
	return s.notifications.ListByUser(ctx, userID, f)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperr.Unauthenticated("")
	}
	return s.notifications.CountUnread(ctx, userID)
}

// MarkRead sets readAt on the user's notification. Marking an already-read notification is a no-op;
// a notification owned by someone else is NotFound.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) (*domain.Notification, error) {
	if userID == "" {
		return nil, apperr.Unauthenticated("")
	}
	if id == "" {
		return nil, apperr.BadRequest("notification id is required")
	}
	n, err := s.notifications.MarkRead(ctx, id, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, apperr.NotFound("notification not found")
	}
	return n, nil
}

// MarkAllRead marks every unread notification of the user as read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperr.Unauthenticated("")
	}
	return s.notifications.MarkAllRead(ctx, userID, s.now().UTC())
}

// GetPreferences returns the effective preference matrix: every channel each type offers,
// with the user's explicit choice where one exists and the default policy elsewhere.
func (s *NotificationService) GetPreferences(ctx context.Context, userID string) ([]EffectivePreference, error) {
	if userID == "" {
		return nil, apperr.Unauthenticated("")
	}
	rows, err := s.prefs.ListPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	explicit := make(map[domain.Type]map[domain.Channel]bool)
	for _, p := range rows {
		if explicit[p.Type] == nil {
			explicit[p.Type] = make(map[domain.Channel]bool)
		}
		explicit[p.Type][p.Channel] = p.Enabled
	}
	var out []EffectivePreference
	for _, t := range domain.Types() {
		for _, ch := range s.policy.Defaults(t).Channels {
			_, isExplicit := explicit[t][ch]
			out = append(out, EffectivePreference{
				Type:     t,
				Channel:  ch,
				Enabled:  s.policy.Enabled(t, ch, explicit[t]),
				Explicit: isExplicit,
			})
		}
	}
	return out, nil
}

// SetPreference records an explicit choice for (type, channel).
func (s *NotificationService) SetPreference(ctx context.Context, userID string, t domain.Type, ch domain.Channel, enabled bool) error {
	if userID == "" {
		return apperr.Unauthenticated("")
	}
	if !t.Valid() {
		return apperr.New(apperr.ErrBadRequest, "unknown notification type %q", t)
	}
	if !ch.Valid() {
		return apperr.New(apperr.ErrBadRequest, "unknown notification channel %q", ch)
	}
	if !s.offers(t, ch) {
		return apperr.New(apperr.ErrBadRequest, "%s notifications are not delivered by %s", t, ch)
	}
	return s.prefs.UpsertPreference(ctx, &domain.Preference{UserID: userID, Type: t, Channel: ch, Enabled: enabled})
}

func (s *NotificationService) offers(t domain.Type, ch domain.Channel) bool {
	for _, c := range s.policy.Defaults(t).Channels {
		if c == ch {
			return true
		}
	}
	return false
}
