package repository

import (
	"context"
	"database/sql"
	"errors"

	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/organization/domain"
	"saas-control-plane/backend/internal/platform/apperr"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an organization repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	var (
		o         domain.Org
		status    string
		createdBy sql.NullString
	)
	err := db.Conn(ctx, r.db).QueryRowContext(ctx,
		`select id, name, status, created_by, created_at from organizations where id = $1`, id).
		Scan(&o.ID, &o.Name, &status, &createdBy, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	o.Status = domain.OrgStatus(status)
	o.CreatedBy = createdBy.String
	return &o, nil
}

// CreateOrganization persists the organization. The organization must have ID set.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, o *domain.Org) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`insert into organizations (id, name, status, created_by, created_at) values ($1, $2, $3, $4, $5)`,
		o.ID, o.Name, string(o.Status), sql.NullString{String: o.CreatedBy, Valid: o.CreatedBy != ""}, o.CreatedAt)
	return apperr.FromDB(err, "organization already exists")
}

// UpdateOrganization updates name and status. A missing organization is NotFound.
func (r *PostgresRepository) UpdateOrganization(ctx context.Context, o *domain.Org) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`update organizations set name = $2, status = $3 where id = $1`, o.ID, o.Name, string(o.Status))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("organization not found")
	}
	return nil
}
