package repository

import (
	"context"
	"sync"

	"refresh-session-service/internal/identity/domain"
)

// MemoryRepository is an in-memory identity Repository for tests and local runs.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.Identity
}

// NewMemoryRepository returns an empty in-memory identity repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Identity)}
}

func (r *MemoryRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.m {
		if i.UserID == userID && i.Provider == provider {
			c := *i
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *i
	r.m[i.ID] = &c
	return nil
}
