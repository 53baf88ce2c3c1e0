// Package store selects the persistence backend shared by the binaries: Postgres when a DSN is
// configured, in-memory otherwise.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"refresh-session-service/internal/db"
	identityrepo "refresh-session-service/internal/identity/repository"
	sessionrepo "refresh-session-service/internal/session/repository"
	userrepo "refresh-session-service/internal/user/repository"
)

// Stores bundles the repositories of one backend.
type Stores struct {
	Users      userrepo.Repository
	Identities identityrepo.Repository
	Sessions   sessionrepo.Repository
	// Pool is nil for the in-memory backend.
	Pool *pgxpool.Pool
}

// Open connects to Postgres at dsn, or returns fresh in-memory stores when dsn is empty.
// In-memory state is lost on restart.
func Open(ctx context.Context, dsn string) (*Stores, error) {
	if dsn == "" {
		return &Stores{
			Users:      userrepo.NewMemoryRepository(),
			Identities: identityrepo.NewMemoryRepository(),
			Sessions:   sessionrepo.NewMemoryRepository(),
		}, nil
	}
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Stores{
		Users:      userrepo.NewPostgresRepository(pool),
		Identities: identityrepo.NewPostgresRepository(pool),
		Sessions:   sessionrepo.NewPostgresRepository(pool),
		Pool:       pool,
	}, nil
}

// InMemory reports whether s uses the in-memory backend.
func (s *Stores) InMemory() bool {
	return s.Pool == nil
}

// Close releases the connection pool, if any.
func (s *Stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}
