package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/membership/domain"
	"saas-control-plane/backend/internal/platform/apperr"
)

const membershipColumns = `id, user_id, org_id, role, invited_by, joined_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a membership repository that uses the given db for persistence.
// It also implements InvitationRepository.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetMembershipByID returns the membership for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetMembershipByID(ctx context.Context, id string) (*domain.Membership, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `select `+membershipColumns+` from memberships where id = $1`, id)
	return scanMembershipRow(row)
}

// GetMembershipByUserAndOrg returns the membership for the given user and org, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx,
		`select `+membershipColumns+` from memberships where user_id = $1 and org_id = $2`, userID, orgID)
	return scanMembershipRow(row)
}

// ListMembershipsByOrg returns all memberships for the given org ordered by join time.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx,
		`select `+membershipColumns+` from memberships where org_id = $1 order by joined_at, id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateMembership persists the membership. The membership must have ID set.
// A second membership for the same (user, org) is a Conflict.
func (r *PostgresRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`insert into memberships (`+membershipColumns+`) values ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.OrgID, string(m.Role), nullString(m.InvitedBy), m.JoinedAt)
	return apperr.FromDB(err, "user is already a member of this organization")
}

// DeleteByUserAndOrg removes the membership. A missing membership is NotFound.
func (r *PostgresRepository) DeleteByUserAndOrg(ctx context.Context, userID, orgID string) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`delete from memberships where user_id = $1 and org_id = $2`, userID, orgID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("membership not found")
	}
	return nil
}

// UpdateRole sets the role and returns the updated membership, or nil if no membership exists.
func (r *PostgresRepository) UpdateRole(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx,
		`update memberships set role = $3 where user_id = $1 and org_id = $2 returning `+membershipColumns,
		userID, orgID, string(role))
	return scanMembershipRow(row)
}

// CountOwnersByOrg returns how many owners the org has.
func (r *PostgresRepository) CountOwnersByOrg(ctx context.Context, orgID string) (int64, error) {
	var n int64
	err := db.Conn(ctx, r.db).QueryRowContext(ctx,
		`select count(*) from memberships where org_id = $1 and role = 'owner'`, orgID).Scan(&n)
	return n, err
}

func scanMembershipRow(row *sql.Row) (*domain.Membership, error) {
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func scanMembership(s rowScanner) (*domain.Membership, error) {
	var (
		m         domain.Membership
		role      string
		invitedBy sql.NullString
	)
	if err := s.Scan(&m.ID, &m.UserID, &m.OrgID, &role, &invitedBy, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	m.InvitedBy = invitedBy.String
	return &m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const invitationColumns = `id, org_id, email, role, invited_by, token, expires_at, accepted_at, created_at`

// CreateInvitation persists a pending invitation. A second pending invitation for the same email is a Conflict.
func (r *PostgresRepository) CreateInvitation(ctx context.Context, inv *domain.Invitation) error {
	_, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`insert into invitations (`+invitationColumns+`) values ($1, $2, $3, $4, $5, $6, $7, null, $8)`,
		inv.ID, inv.OrgID, inv.Email, string(inv.Role), inv.InvitedBy, inv.Token, inv.ExpiresAt, inv.CreatedAt)
	return apperr.FromDB(err, "an invitation for this email is already pending")
}

// GetInvitationByToken returns the invitation for token, or nil if not found.
func (r *PostgresRepository) GetInvitationByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	row := db.Conn(ctx, r.db).QueryRowContext(ctx, `select `+invitationColumns+` from invitations where token = $1`, token)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inv, err
}

// MarkInvitationAccepted sets accepted_at once. Accepting an already accepted or missing invitation is NotFound.
func (r *PostgresRepository) MarkInvitationAccepted(ctx context.Context, id string) error {
	res, err := db.Conn(ctx, r.db).ExecContext(ctx,
		`update invitations set accepted_at = $2 where id = $1 and accepted_at is null`, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("invitation not found")
	}
	return nil
}

// ListPendingInvitations returns unaccepted, unexpired invitations for the org.
func (r *PostgresRepository) ListPendingInvitations(ctx context.Context, orgID string) ([]*domain.Invitation, error) {
	rows, err := db.Conn(ctx, r.db).QueryContext(ctx,
		`select `+invitationColumns+` from invitations where org_id = $1 and accepted_at is null and expires_at > now() order by created_at`,
		orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvitation(s rowScanner) (*domain.Invitation, error) {
	var (
		inv      domain.Invitation
		role     string
		accepted sql.NullTime
	)
	if err := s.Scan(&inv.ID, &inv.OrgID, &inv.Email, &role, &inv.InvitedBy, &inv.Token, &inv.ExpiresAt, &accepted, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.Role = domain.Role(role)
	if accepted.Valid {
		t := accepted.Time
		inv.AcceptedAt = &t
	}
	return &inv, nil
}
