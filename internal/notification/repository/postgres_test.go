package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"saas-control-plane/backend/internal/notification/domain"
)

var notificationCols = []string{"id", "user_id", "org_id", "type", "priority", "title", "message", "data", "actions", "channels", "dedup_key", "read_at", "created_at"}

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewPostgresRepository(conn), mock
}

func TestCreate_EncodesJSONAndReportsDedup(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	n := &domain.Notification{
		ID: "n1", UserID: "user-1", Type: domain.TypeWelcome, Priority: domain.PriorityLow,
		Title: "Welcome", Message: "Hello", Channels: []domain.Channel{domain.ChannelInApp},
		DedupKey: "user.created:user:user-1", CreatedAt: created,
	}
	mock.ExpectExec("insert into notifications").
		WithArgs("n1", "user-1", nil, "user.welcome", "low", "Welcome", "Hello",
			"{}", "[]", `["in_app"]`, "user.created:user:user-1", nil, created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("on conflict \\(user_id, type, dedup_key\\) do nothing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if ok, err := repo.Create(context.Background(), n); err != nil || !ok {
		t.Fatalf("Create = %v, %v", ok, err)
	}
	if ok, err := repo.Create(context.Background(), n); err != nil || ok {
		t.Fatalf("duplicate Create = %v, %v, want false, nil", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkRead_KeepsFirstReadAt(t *testing.T) {
	repo, mock := newMock(t)
	first := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)
	mock.ExpectQuery(`update notifications set read_at = coalesce\(read_at, \$3\)`).
		WithArgs("n1", "user-1", later).
		WillReturnRows(sqlmock.NewRows(notificationCols).AddRow(
			"n1", "user-1", "org-1", "org.invitation", "high", "t", "m",
			[]byte(`{"org_id":"org-1"}`), []byte(`[{"label":"Open","url":"/orgs/org-1"}]`), []byte(`["in_app","email"]`),
			"k", first, first))

	n, err := repo.MarkRead(context.Background(), "n1", "user-1", later)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n == nil || n.ReadAt == nil || !n.ReadAt.Equal(first) {
		t.Fatalf("notification = %+v", n)
	}
	if n.Data["org_id"] != "org-1" || len(n.Actions) != 1 || n.Actions[0].URL != "/orgs/org-1" || len(n.Channels) != 2 {
		t.Errorf("decoded JSON = %+v", n)
	}
}

func TestMarkRead_OtherUserIsNil(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("update notifications").
		WithArgs("n1", "intruder", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(notificationCols))

	n, err := repo.MarkRead(context.Background(), "n1", "intruder", time.Now())
	if err != nil || n != nil {
		t.Fatalf("MarkRead = %+v, %v, want nil, nil", n, err)
	}
}

func TestListByUser_UnreadOnly(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(`where user_id = \$1 and read_at is null order by created_at desc, id desc limit \$2 offset \$3`).
		WithArgs("user-1", defaultLimit, 0).
		WillReturnRows(sqlmock.NewRows(notificationCols).AddRow(
			"n1", "user-1", nil, "user.welcome", "low", "t", "m", []byte(`{}`), []byte(`[]`), []byte(`["in_app"]`), "k", nil, time.Now()))

	list, err := repo.ListByUser(context.Background(), "user-1", domain.ListFilter{UnreadOnly: true})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 1 || list[0].IsRead() || list[0].OrgID != "" {
		t.Fatalf("list = %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountUnreadAndMarkAllRead(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("select count").WithArgs("user-1").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec("update notifications set read_at = \\$2 where user_id = \\$1 and read_at is null").
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.CountUnread(context.Background(), "user-1")
	if err != nil || n != 3 {
		t.Fatalf("CountUnread = %d, %v", n, err)
	}
	changed, err := repo.MarkAllRead(context.Background(), "user-1", time.Now())
	if err != nil || changed != 3 {
		t.Fatalf("MarkAllRead = %d, %v", changed, err)
	}
}

func TestPreferences(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("select channel, enabled from notification_preferences").
		WithArgs("user-1", "org.invitation").
		WillReturnRows(sqlmock.NewRows([]string{"channel", "enabled"}).AddRow("email", false).AddRow("push", true))
	mock.ExpectExec("on conflict \\(user_id, type, channel\\) do update").
		WithArgs("user-1", "org.invitation", "email", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	prefs, err := repo.PreferencesFor(context.Background(), "user-1", domain.TypeInvitation)
	if err != nil {
		t.Fatalf("PreferencesFor: %v", err)
	}
	if prefs[domain.ChannelEmail] || !prefs[domain.ChannelPush] {
		t.Errorf("prefs = %v", prefs)
	}
	if _, ok := prefs[domain.ChannelInApp]; ok {
		t.Error("in_app has no row and must be absent")
	}
	err = repo.UpsertPreference(context.Background(), &domain.Preference{
		UserID: "user-1", Type: domain.TypeInvitation, Channel: domain.ChannelEmail, Enabled: true,
	})
	if err != nil {
		t.Fatalf("UpsertPreference: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
