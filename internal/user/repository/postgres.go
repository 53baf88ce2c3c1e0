package repository

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"refresh-session-service/internal/db"
	"refresh-session-service/internal/user/domain"
)

const emailConstraint = "users_email_key"

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a user repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

type userRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      *string   `db:"name"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT id, email, name, status, created_at, updated_at FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
// Emails are compared case-insensitively.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT id, email, name, status, created_at, updated_at FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var row userRow
	if err := pgxscan.Get(ctx, r.pool, &row, query, arg); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	var name *string
	if u.Name != "" {
		name = &u.Name
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO users (id, email, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, name, string(u.Status), u.CreatedAt, u.UpdatedAt)
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *PostgresRepository) ListRoleNames(ctx context.Context, userID string) ([]string, error) {
	var roles []string
	err := pgxscan.Select(ctx, r.pool, &roles,
		`SELECT role_name FROM user_roles WHERE user_id = $1 ORDER BY role_name`, userID)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *PostgresRepository) AssignRole(ctx context.Context, userID, role string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO roles (name) VALUES ($1) ON CONFLICT DO NOTHING`, role); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, role)
		return err
	})
}

func (row *userRow) toDomain() *domain.User {
	name := ""
	if row.Name != nil {
		name = *row.Name
	}
	return &domain.User{
		ID:        row.ID,
		Email:     row.Email,
		Name:      name,
		Status:    domain.UserStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
