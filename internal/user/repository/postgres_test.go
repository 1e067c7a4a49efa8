package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/user/domain"
)

var userCols = []string{"id", "email", "name", "status", "created_at", "updated_at"}

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewPostgresRepository(conn), mock
}

func TestGetByEmail_CaseInsensitive(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`where lower\(email\) = \$1`).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("user-1", "ada@example.com", nil, "active", now, now))

	u, err := repo.GetByEmail(context.Background(), "Ada@Example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if u == nil || u.ID != "user-1" || u.Name != "" || u.DisplayName() != "ada@example.com" {
		t.Errorf("user = %+v", u)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("from users where id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := repo.GetByID(context.Background(), "missing")
	if err != nil || u != nil {
		t.Errorf("GetByID = %+v, %v; want nil, nil", u, err)
	}
}

func TestCreate_DuplicateEmailIsConflict(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("insert into users").
		WithArgs("user-1", "ada@example.com", "Ada", "active", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	now := time.Now()
	err := repo.Create(context.Background(), &domain.User{
		ID: "user-1", Email: "ada@example.com", Name: "Ada", Status: domain.UserStatusActive, CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("Create = %v, want Conflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
