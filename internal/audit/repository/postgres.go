package repository

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"refresh-session-service/internal/audit/domain"
	"refresh-session-service/internal/db"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an audit log repository over q, which may be the pool or a
// transaction owned by the caller.
func NewPostgresRepository(q db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: q}
}

type auditRow struct {
	ID            string    `db:"id"`
	UserID        *string   `db:"user_id"`
	Action        string    `db:"action"`
	EntityName    *string   `db:"entity_name"`
	EntityID      *string   `db:"entity_id"`
	DataJSON      *string   `db:"data_json"`
	CorrelationID *string   `db:"correlation_id"`
	CreatedAt     time.Time `db:"created_at"`
}

const insertAuditLog = `
INSERT INTO audit_logs (id, user_id, action, entity_name, entity_id, data_json, correlation_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`

// Create appends the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.Exec(ctx, insertAuditLog,
		a.ID, nullString(a.UserID), a.Action, nullString(a.EntityName), nullString(a.EntityID),
		nullString(a.DataJSON), nullString(a.CorrelationID), a.CreatedAt)
	return err
}

const listAuditLogsByUser = `
SELECT id, user_id, action, entity_name, entity_id, data_json::text AS data_json, correlation_id, created_at
FROM audit_logs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

// ListByUser returns audit logs for the user, newest first. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	var rows []auditRow
	if err := pgxscan.Select(ctx, r.db, &rows, listAuditLogsByUser, userID, limit, offset); err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (row *auditRow) toDomain() *domain.AuditLog {
	return &domain.AuditLog{
		ID:            row.ID,
		UserID:        deref(row.UserID),
		Action:        row.Action,
		EntityName:    deref(row.EntityName),
		EntityID:      deref(row.EntityID),
		DataJSON:      deref(row.DataJSON),
		CorrelationID: deref(row.CorrelationID),
		CreatedAt:     row.CreatedAt,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
