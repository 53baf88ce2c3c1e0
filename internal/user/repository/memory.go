package repository

import (
	"context"
	"slices"
	"strings"
	"sync"

	"refresh-session-service/internal/user/domain"
)

// MemoryRepository is an in-memory user Repository for tests and local runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.User
	roles map[string][]string
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*domain.User),
		roles: make(map[string][]string),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneUser(r.byID[id]), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}
	r.byID[u.ID] = cloneUser(u)
	return nil
}

// SetStatus changes the user's status. Unknown ids are ignored.
func (r *MemoryRepository) SetStatus(id string, status domain.UserStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.Status = status
	}
}

func (r *MemoryRepository) ListRoleNames(ctx context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.roles[userID]), nil
}

func (r *MemoryRepository) AssignRole(ctx context.Context, userID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	roles := r.roles[userID]
	if !slices.Contains(roles, role) {
		roles = append(roles, role)
		slices.Sort(roles)
		r.roles[userID] = roles
	}
	return nil
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
