package repository

import (
	"context"
	"database/sql"
	"errors"

	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/platform/apperr"
	"saas-control-plane/backend/internal/policy/domain"
)

const policyColumns = `id, org_id, rules, enabled, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the policy for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	var p domain.Policy
	err := db.Conn(ctx, r.db).QueryRowContext(ctx,
		`select `+policyColumns+` from policies where id = $1`, id).
		Scan(&p.ID, &p.OrgID, &p.Rules, &p.Enabled, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListByOrg returns all policies for the given org. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return r.list(ctx, `select `+policyColumns+` from policies where org_id = $1 order by created_at, id`, orgID)
}

// GetEnabledPoliciesByOrg returns the org's enabled policies in creation order.
func (r *PostgresRepository) GetEnabledPoliciesByOrg(ctx context.Context, orgID string) ([]*domain.Policy, error) {
	return r.list(ctx, `select `+policyColumns+` from policies where org_id = $1 and enabled order by created_at, id`, orgID)
}

func (r *PostgresRepository) list(ctx context.Context, query, orgID string) ([]*domain.Policy, error) {
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Create persists the policy to the database. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`insert into policies (id, org_id, rules, enabled, created_at) values ($1, $2, $3, $4, $5)`,
		p.ID, p.OrgID, p.Rules, p.Enabled, p.CreatedAt)
	return apperr.FromDB(err, "policy already exists")
}

// Update replaces rules and the enabled flag. A missing policy is NotFound.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.Policy) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`update policies set rules = $2, enabled = $3 where id = $1`, p.ID, p.Rules, p.Enabled)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("policy not found")
	}
	return nil
}

// Delete removes the policy. A missing policy is NotFound.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx, `delete from policies where id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("policy not found")
	}
	return nil
}
