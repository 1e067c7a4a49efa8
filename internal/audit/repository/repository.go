package repository

import (
	"context"

	"saas-control-plane/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs. Records are append-only.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	ListByOrg(ctx context.Context, orgID string, f domain.Filter) ([]*domain.AuditLog, error)
	// Create stores entry unless a record with the same DedupKey exists. It reports whether a row was written.
	Create(ctx context.Context, entry *domain.AuditLog) (bool, error)
}
