// seed inserts development sample data for local testing and prints bearer tokens for the seeded users.
// Idempotent: skips inserts if the dev admin (admin@example.com) already exists.
// Without JWT_PRIVATE_KEY a throwaway signing key is generated and its public key printed for JWT_PUBLIC_KEY.
package main

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"saas-control-plane/backend/internal/config"
	"saas-control-plane/backend/internal/db"
	"saas-control-plane/backend/internal/db/migrate"
	membershipdomain "saas-control-plane/backend/internal/membership/domain"
	membershiprepo "saas-control-plane/backend/internal/membership/repository"
	orgdomain "saas-control-plane/backend/internal/organization/domain"
	orgrepo "saas-control-plane/backend/internal/organization/repository"
	policydomain "saas-control-plane/backend/internal/policy/domain"
	"saas-control-plane/backend/internal/policy/engine"
	policyrepo "saas-control-plane/backend/internal/policy/repository"
	rbacdomain "saas-control-plane/backend/internal/rbac/domain"
	rbacrepo "saas-control-plane/backend/internal/rbac/repository"
	"saas-control-plane/backend/internal/security"
	userdomain "saas-control-plane/backend/internal/user/domain"
	userrepo "saas-control-plane/backend/internal/user/repository"
)

// samplePolicy is seeded disabled; enable it through PATCH /v1/orgs/{orgID}/policies/{policyID}.
const samplePolicy = `package saas.authz

deny if {
	input.resource == "billing"
	input.action == "delete"
}

reason := "billing cannot be deleted from the dev org" if deny
`

const (
	devAdminID     = "dev-user-admin"
	devAdminEmail  = "admin@example.com"
	devOwnerID     = "dev-user-owner"
	devOwnerEmail  = "owner@example.com"
	devMemberID    = "dev-user-member"
	devMemberEmail = "member@example.com"
	devOrgID       = "dev-org-001"
	devPolicyID    = "dev-policy-001"
	devMembership1 = "dev-membership-001"
	devMembership2 = "dev-membership-002"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if err := migrate.Run(cfg.DatabaseURL, migrate.DirectionUp); err != nil {
		return err
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)
	existing, err := users.GetByEmail(ctx, devAdminEmail)
	if err != nil {
		return fmt.Errorf("seed check: %w", err)
	}
	if existing != nil {
		logger.Info("seed already applied, skipping inserts", "email", devAdminEmail)
	} else {
		if err := seed(ctx, db.NewTxManager(conn), conn, users); err != nil {
			return err
		}
		logger.Info("seed completed")
	}
	return printTokens(cfg)
}

func seed(ctx context.Context, tx *db.TxManager, conn *sql.DB, users *userrepo.PostgresRepository) error {
	orgs := orgrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	grants := rbacrepo.NewPostgresRepository(conn)
	policies := policyrepo.NewPostgresRepository(conn)

	if err := engine.NewOPAEvaluator(nil, nil).Validate(samplePolicy); err != nil {
		return fmt.Errorf("sample policy: %w", err)
	}

	now := time.Now().UTC()
	return tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, u := range []*userdomain.User{
			{ID: devAdminID, Email: devAdminEmail, Name: "Dev Admin"},
			{ID: devOwnerID, Email: devOwnerEmail, Name: "Dev Owner"},
			{ID: devMemberID, Email: devMemberEmail, Name: "Dev Member"},
		} {
			u.Status = userdomain.UserStatusActive
			u.CreatedAt, u.UpdatedAt = now, now
			if err := users.Create(ctx, u); err != nil {
				return fmt.Errorf("create user %s: %w", u.Email, err)
			}
		}

		if err := grants.Grant(ctx, &rbacdomain.UserRole{
			UserID:    devAdminID,
			RoleSlug:  rbacdomain.RoleSuperAdmin,
			GrantedAt: now,
		}); err != nil {
			return fmt.Errorf("grant super-admin: %w", err)
		}

		if err := orgs.CreateOrganization(ctx, &orgdomain.Org{
			ID:        devOrgID,
			Name:      "Acme Dev",
			Status:    orgdomain.OrgStatusActive,
			CreatedBy: devOwnerID,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("create org: %w", err)
		}

		for _, m := range []*membershipdomain.Membership{
			{ID: devMembership1, UserID: devOwnerID, OrgID: devOrgID, Role: membershipdomain.RoleOwner, JoinedAt: now},
			{ID: devMembership2, UserID: devMemberID, OrgID: devOrgID, Role: membershipdomain.RoleMember, InvitedBy: devOwnerID, JoinedAt: now},
		} {
			if err := memberships.CreateMembership(ctx, m); err != nil {
				return fmt.Errorf("create membership %s: %w", m.ID, err)
			}
		}

		if err := policies.Create(ctx, &policydomain.Policy{
			ID:        devPolicyID,
			OrgID:     devOrgID,
			Rules:     samplePolicy,
			Enabled:   false,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("create policy: %w", err)
		}
		return nil
	})
}

func printTokens(cfg *config.Config) error {
	var signer crypto.Signer
	if cfg.JWTPrivateKey != "" {
		key, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return err
		}
		signer = key
	} else {
		key, err := security.GenerateSigningKey()
		if err != nil {
			return err
		}
		signer = key
		pub, err := security.EncodePublicKeyPEM(key.Public())
		if err != nil {
			return err
		}
		fmt.Printf("JWT_PUBLIC_KEY for the generated key:\n%s\n", pub)
	}
	tokens := security.NewTokenProvider(signer, nil, cfg.JWTIssuer, cfg.JWTAudience, 24*time.Hour)
	for _, u := range []struct{ id, email, label string }{
		{devAdminID, devAdminEmail, "super-admin"},
		{devOwnerID, devOwnerEmail, "owner of " + devOrgID},
		{devMemberID, devMemberEmail, "member of " + devOrgID},
	} {
		token, _, err := tokens.IssueAccess(u.id, u.email)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s):\n  Authorization: Bearer %s\n", u.email, u.label, token)
	}
	return nil
}
