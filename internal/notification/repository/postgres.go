package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/notification/domain"
)

const (
	notificationColumns = `id, user_id, org_id, type, priority, title, message, data, actions, channels, dedup_key, read_at, created_at`

	defaultLimit = 50
	maxLimit     = 200
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a notification repository that uses the given db for persistence.
// It also implements PreferenceRepository.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the notification. The notification must have ID and DedupKey set.
func (r *PostgresRepository) Create(ctx context.Context, n *domain.Notification) (bool, error) {
	data, err := marshalJSON(n.Data, "{}")
	if err != nil {
		return false, err
	}
	actions, err := marshalJSON(n.Actions, "[]")
	if err != nil {
		return false, err
	}
	channels, err := marshalJSON(n.Channels, "[]")
	if err != nil {
		return false, err
	}
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`insert into notifications (`+notificationColumns+`)
		 values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 on conflict (user_id, type, dedup_key) do nothing`,
		n.ID, n.UserID, nullString(n.OrgID), string(n.Type), string(n.Priority), n.Title, n.Message,
		data, actions, channels, n.DedupKey, n.ReadAt, n.CreatedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetByID returns the notification for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `select `+notificationColumns+` from notifications where id = $1`, id)
	return scanNotificationRow(row)
}

// ListByUser returns the user's notifications, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, f domain.ListFilter) ([]*domain.Notification, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	q := `select ` + notificationColumns + ` from notifications where user_id = $1`
	if f.UnreadOnly {
		q += ` and read_at is null`
	}
	q += ` order by created_at desc, id desc limit $2 offset $3`
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, q, userID, limit, max(f.Offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountUnread returns the number of unread notifications for the user.
func (r *PostgresRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := db.Conn(ctx, r.db).QueryRowContext(ctx,
		`select count(*) from notifications where user_id = $1 and read_at is null`, userID).Scan(&n)
	return n, err
}

func (r *PostgresRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) (*domain.Notification, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx,
		`update notifications set read_at = coalesce(read_at, $3)
		 where id = $1 and user_id = $2 returning `+notificationColumns, id, userID, at)
	return scanNotificationRow(row)
}

// MarkAllRead marks every unread notification of the user as read and returns how many changed.
func (r *PostgresRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`update notifications set read_at = $2 where user_id = $1 and read_at is null`, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListPreferences returns every explicit preference row of the user.
func (r *PostgresRepository) ListPreferences(ctx context.Context, userID string) ([]*domain.Preference, error) {
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx,
		`select user_id, type, channel, enabled from notification_preferences where user_id = $1 order by type, channel`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Preference
	for rows.Next() {
		var p domain.Preference
		var t, ch string
		if err := rows.Scan(&p.UserID, &t, &ch, &p.Enabled); err != nil {
			return nil, err
		}
		p.Type, p.Channel = domain.Type(t), domain.Channel(ch)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) PreferencesFor(ctx context.Context, userID string, t domain.Type) (map[domain.Channel]bool, error) {
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx,
		`select channel, enabled from notification_preferences where user_id = $1 and type = $2`, userID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.Channel]bool)
	for rows.Next() {
		var ch string
		var enabled bool
		if err := rows.Scan(&ch, &enabled); err != nil {
			return nil, err
		}
		out[domain.Channel(ch)] = enabled
	}
	return out, rows.Err()
}

// UpsertPreference creates or replaces the (user, type, channel) preference.
func (r *PostgresRepository) UpsertPreference(ctx context.Context, p *domain.Preference) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`insert into notification_preferences (user_id, type, channel, enabled, updated_at)
		 values ($1, $2, $3, $4, $5)
		 on conflict (user_id, type, channel) do update set enabled = excluded.enabled, updated_at = excluded.updated_at`,
		p.UserID, string(p.Type), string(p.Channel), p.Enabled, time.Now().UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotificationRow(row rowScanner) (*domain.Notification, error) {
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	var orgID sql.NullString
	var t, priority string
	var data, actions, channels []byte
	var readAt sql.NullTime
	if err := row.Scan(&n.ID, &n.UserID, &orgID, &t, &priority, &n.Title, &n.Message,
		&data, &actions, &channels, &n.DedupKey, &readAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.OrgID = orgID.String
	n.Type, n.Priority = domain.Type(t), domain.Priority(priority)
	if readAt.Valid {
		at := readAt.Time
		n.ReadAt = &at
	}
	if err := unmarshalJSON(data, &n.Data); err != nil {
		return nil, fmt.Errorf("notification %s data: %w", n.ID, err)
	}
	if err := unmarshalJSON(actions, &n.Actions); err != nil {
		return nil, fmt.Errorf("notification %s actions: %w", n.ID, err)
	}
	if err := unmarshalJSON(channels, &n.Channels); err != nil {
		return nil, fmt.Errorf("notification %s channels: %w", n.ID, err)
	}
	return &n, nil
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func unmarshalJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
