package repository

import (
	"context"
	"errors"
	"time"

	auditdomain "refresh-session-service/internal/audit/domain"
	"refresh-session-service/internal/session/domain"
)

// ErrDuplicateFingerprint is returned when a session is created with a fingerprint that already exists.
var ErrDuplicateFingerprint = errors.New("refresh session fingerprint already exists")

// Repository defines persistence for refresh sessions. Lookups return (nil, nil) when no row
// matches; errors are reserved for storage failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// WithinTx runs fn as one unit of work: every effect made through tx becomes visible together
	// when fn returns nil, and none does when fn returns an error.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the storage handle handed to a unit of work.
type Tx interface {
	// GetByIDForUpdate reads the session and locks it until the unit of work ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// Revoke sets revoked_at (and replaced_by when non-empty) only if the session is not revoked yet.
	// It reports whether this call performed the revocation.
	Revoke(ctx context.Context, id string, at time.Time, replacedBy string) (bool, error)
	// RevokeAllByUser revokes every unrevoked session of the user and returns them as revoked.
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]*domain.Session, error)
	AppendAudit(ctx context.Context, a *auditdomain.AuditLog) error
}
