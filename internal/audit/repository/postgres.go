package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"saas-control-plane/backend/internal/audit/domain"
	"saas-control-plane/backend/internal/db"
)

const (
	auditColumns = `id, org_id, actor_id, action, target_type, target_id, ip, metadata, dedup_key, created_at`

	defaultLimit = 50
	maxLimit     = 500
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `select `+auditColumns+` from audit_logs where id = $1`, id)
	a, err := scanAuditLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListByOrg returns audit logs for the given org, newest first.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, f domain.Filter) ([]*domain.AuditLog, error) {
	var b strings.Builder
	b.WriteString(`select ` + auditColumns + ` from audit_logs where org_id = $1`)
	args := []any{orgID}
	if f.ActorID != "" {
		args = append(args, f.ActorID)
		b.WriteString(` and actor_id = $` + strconv.Itoa(len(args)))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		b.WriteString(` and action = $` + strconv.Itoa(len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	args = append(args, limit, max(f.Offset, 0))
	b.WriteString(` order by created_at desc, id desc limit $` + strconv.Itoa(len(args)-1) + ` offset $` + strconv.Itoa(len(args)))

	rows, err := db.Conn(ctx, r.db).QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create persists the audit log. The audit log must have ID and DedupKey set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) (bool, error) {
	var meta any
	if a.Metadata != "" {
		meta = a.Metadata
	}
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`insert into audit_logs (`+auditColumns+`) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 on conflict (dedup_key) do nothing`,
		a.ID, a.OrgID, nullString(a.ActorID), a.Action, a.TargetType, a.TargetID, a.IP, meta, a.DedupKey, a.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*domain.AuditLog, error) {
	var a domain.AuditLog
	var actor, meta sql.NullString
	if err := row.Scan(&a.ID, &a.OrgID, &actor, &a.Action, &a.TargetType, &a.TargetID, &a.IP, &meta, &a.DedupKey, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ActorID = actor.String
	a.Metadata = meta.String
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
