package repository

import (
	"context"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	auditdomain "refresh-session-service/internal/audit/domain"
	auditrepo "refresh-session-service/internal/audit/repository"
	"refresh-session-service/internal/db"
	"refresh-session-service/internal/session/domain"
)

// fingerprintConstraint is the unique constraint on refresh_sessions.token_hash.
const fingerprintConstraint = "refresh_sessions_token_hash_key"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a refresh session repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

type sessionRow struct {
	ID             string     `db:"id"`
	UserID         string     `db:"user_id"`
	TokenHash      string     `db:"token_hash"`
	AccessTokenJti *string    `db:"access_token_jti"`
	CreatedAt      time.Time  `db:"created_at"`
	ExpiresAt      time.Time  `db:"expires_at"`
	RevokedAt      *time.Time `db:"revoked_at"`
	ReplacedBy     *string    `db:"replaced_by"`
	Device         *string    `db:"device"`
	IPAddress      *string    `db:"ip_address"`
	UserAgent      *string    `db:"user_agent"`
}

const sessionColumns = `id, user_id, token_hash, access_token_jti, created_at, expires_at,
	revoked_at, replaced_by, device, ip_address, user_agent`

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return getOne(ctx, r.pool, `SELECT `+sessionColumns+` FROM refresh_sessions WHERE id = $1`, id)
}

// GetByFingerprint returns the session whose token hash is fingerprint, or nil if not found.
func (r *PostgresRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Session, error) {
	return getOne(ctx, r.pool, `SELECT `+sessionColumns+` FROM refresh_sessions WHERE token_hash = $1`, fingerprint)
}

// ListActiveByUser returns the user's unrevoked, unexpired sessions, newest first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	var rows []sessionRow
	err := pgxscan.Select(ctx, r.pool, &rows, `SELECT `+sessionColumns+` FROM refresh_sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

// Create persists the session outside any caller-owned transaction.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	return insertSession(ctx, r.pool, s)
}

// WithinTx runs fn in a read-committed transaction; the session and audit writes made through
// tx commit or roll back together.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&postgresTx{tx: tx, audit: auditrepo.NewPostgresRepository(tx)})
	})
}

type postgresTx struct {
	tx    pgx.Tx
	audit *auditrepo.PostgresRepository
}

func (t *postgresTx) GetByIDForUpdate(ctx context.Context, id string) (*domain.Session, error) {
	return getOne(ctx, t.tx, `SELECT `+sessionColumns+` FROM refresh_sessions WHERE id = $1 FOR UPDATE`, id)
}

func (t *postgresTx) Create(ctx context.Context, s *domain.Session) error {
	return insertSession(ctx, t.tx, s)
}

func (t *postgresTx) Revoke(ctx context.Context, id string, at time.Time, replacedBy string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE refresh_sessions SET revoked_at = $2, replaced_by = $3
		WHERE id = $1 AND revoked_at IS NULL`, id, at, nullString(replacedBy))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *postgresTx) RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]*domain.Session, error) {
	var rows []sessionRow
	err := pgxscan.Select(ctx, t.tx, &rows, `UPDATE refresh_sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
		RETURNING `+sessionColumns, userID, at)
	if err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

func (t *postgresTx) AppendAudit(ctx context.Context, a *auditdomain.AuditLog) error {
	return t.audit.Create(ctx, a)
}

func getOne(ctx context.Context, q db.DBTX, query string, arg any) (*domain.Session, error) {
	var row sessionRow
	if err := pgxscan.Get(ctx, q, &row, query, arg); err != nil {
		if pgxscan.NotFound(err) || errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func insertSession(ctx context.Context, q db.DBTX, s *domain.Session) error {
	_, err := q.Exec(ctx, `INSERT INTO refresh_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.UserID, s.Fingerprint, nullString(s.AccessTokenID), s.CreatedAt, s.ExpiresAt,
		s.RevokedAt, nullString(s.ReplacedBy), nullString(s.Device), nullString(s.IPAddress), nullString(s.UserAgent))
	if db.IsUniqueViolation(err, fingerprintConstraint) {
		return ErrDuplicateFingerprint
	}
	return err
}

func rowsToDomain(rows []sessionRow) []*domain.Session {
	out := make([]*domain.Session, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}

func (row *sessionRow) toDomain() *domain.Session {
	return &domain.Session{
		ID:            row.ID,
		UserID:        row.UserID,
		Fingerprint:   row.TokenHash,
		AccessTokenID: deref(row.AccessTokenJti),
		CreatedAt:     row.CreatedAt,
		ExpiresAt:     row.ExpiresAt,
		RevokedAt:     row.RevokedAt,
		ReplacedBy:    deref(row.ReplacedBy),
		DeviceMetadata: domain.DeviceMetadata{
			Device:    deref(row.Device),
			IPAddress: deref(row.IPAddress),
			UserAgent: deref(row.UserAgent),
		},
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
