package repository

import (
	"context"
	"database/sql"

	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/rbac/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user_roles repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// ListByUser returns the user's global role grants ordered by grant time.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.UserRole, error) {
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx,
		`select user_id, role_slug, granted_by, granted_at from user_roles where user_id = $1 order by granted_at, role_slug`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.UserRole
	for rows.Next() {
		var (
			ur        domain.UserRole
			grantedBy sql.NullString
		)
		if err := rows.Scan(&ur.UserID, &ur.RoleSlug, &grantedBy, &ur.GrantedAt); err != nil {
			return nil, err
		}
		ur.GrantedBy = grantedBy.String
		out = append(out, &ur)
	}
	return out, rows.Err()
}

// Grant inserts the grant. Granting a role the user already holds is a Conflict.
func (r *PostgresRepository) Grant(ctx context.Context, ur *domain.UserRole) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`insert into user_roles (user_id, role_slug, granted_by, granted_at) values ($1, $2, $3, $4)`,
		ur.UserID, ur.RoleSlug, sql.NullString{String: ur.GrantedBy, Valid: ur.GrantedBy != ""}, ur.GrantedAt)
	return apperr.FromDB(err, "user already holds role "+ur.RoleSlug)
}

// Revoke deletes the grant. Revoking a role the user does not hold is NotFound.
func (r *PostgresRepository) Revoke(ctx context.Context, userID, roleSlug string) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`delete from user_roles where user_id = $1 and role_slug = $2`, userID, roleSlug)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("role grant not found")
	}
	return nil
}
