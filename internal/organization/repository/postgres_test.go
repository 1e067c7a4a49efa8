package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"saas-control-plane/backend/internal/organization/domain"
	"saas-control-plane/backend/internal/platform/apperr"
)

var orgCols = []string{"id", "name", "status", "created_by", "created_at"}

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewPostgresRepository(conn), mock
}

func TestGetOrganizationByID(t *testing.T) {
	repo, mock := newMock(t)
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	mock.ExpectQuery("from organizations where id").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows(orgCols).AddRow("org-1", "Acme", "active", nil, created))

	o, err := repo.GetOrganizationByID(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("GetOrganizationByID: %v", err)
	}
	if o == nil || o.Name != "Acme" || o.Status != domain.OrgStatusActive || o.CreatedBy != "" || !o.CreatedAt.Equal(created) {
		t.Errorf("org = %+v", o)
	}
}

func TestGetOrganizationByID_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("from organizations where id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(orgCols))

	o, err := repo.GetOrganizationByID(context.Background(), "missing")
	if err != nil || o != nil {
		t.Errorf("GetOrganizationByID = %+v, %v; want nil, nil", o, err)
	}
}

func TestCreateOrganization(t *testing.T) {
	tests := []struct {
		name    string
		dbErr   error
		wantErr error
	}{
		{"ok", nil, nil},
		{"duplicate", &pgconn.PgError{Code: "23505"}, apperr.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMock(t)
			exp := mock.ExpectExec("insert into organizations").
				WithArgs("org-1", "Acme", "active", "user-1", sqlmock.AnyArg())
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err := repo.CreateOrganization(context.Background(), &domain.Org{
				ID: "org-1", Name: "Acme", Status: domain.OrgStatusActive, CreatedBy: "user-1", CreatedAt: time.Now(),
			})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("CreateOrganization: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateOrganization = %v, want %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("expectations: %v", err)
			}
		})
	}
}

func TestUpdateOrganization_MissingIsNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("update organizations").
		WithArgs("org-1", "Renamed", "suspended").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateOrganization(context.Background(), &domain.Org{ID: "org-1", Name: "Renamed", Status: domain.OrgStatusSuspended})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("UpdateOrganization = %v, want NotFound", err)
	}
}
