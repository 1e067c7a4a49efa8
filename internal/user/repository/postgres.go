package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/user/domain"
)

const userColumns = `id, email, name, status, created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `select `+userColumns+` from users where lower(email) = $1`, strings.ToLower(email))
	return scanUser(row)
}

// Create persists the user. The user must have ID set. A duplicate email is a Conflict.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`insert into users (`+userColumns+`) values ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, nullString(u.Name), string(u.Status), u.CreatedAt, u.UpdatedAt)
	return apperr.FromDB(err, "a user with this email already exists")
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u      domain.User
		name   sql.NullString
		status string
	)
	if err := row.Scan(&u.ID, &u.Email, &name, &status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Name = name.String
	u.Status = domain.UserStatus(status)
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
