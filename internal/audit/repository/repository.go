package repository

import (
	"context"

	"refresh-session-service/internal/audit/domain"
)

// Repository defines append-only persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error)
}
