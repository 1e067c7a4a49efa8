package repository

import (
	"context"
	"time"

	"saas-control-plane/backend/internal/notification/domain"
)

// Repository defines persistence for notifications.
type Repository interface {
	// Create stores n unless one with the same (user, type, dedup key) exists. It reports whether a row was written.
	Create(ctx context.Context, n *domain.Notification) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID string, f domain.ListFilter) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	// MarkRead sets read_at to at unless it is already set, and returns the notification, or nil if the
	// user has no notification with that id.
	MarkRead(ctx context.Context, id, userID string, at time.Time) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
}

// PreferenceRepository defines persistence for explicit notification preferences.
type PreferenceRepository interface {
	ListPreferences(ctx context.Context, userID string) ([]*domain.Preference, error)
	// PreferencesFor returns the user's explicit choices for one type, keyed by channel.
	PreferencesFor(ctx context.Context, userID string, t domain.Type) (map[domain.Channel]bool, error)
	UpsertPreference(ctx context.Context, p *domain.Preference) error
}
