package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	auditdomain "refresh-session-service/internal/audit/domain"
	"refresh-session-service/internal/session/domain"
)

// MemoryRepository is an in-memory Repository for tests and local runs. A unit of work holds the
// repository lock for its whole duration and stages its writes until fn returns nil.
type MemoryRepository struct {
	mu            sync.Mutex
	byID          map[string]*domain.Session
	byFingerprint map[string]string
	audit         []*auditdomain.AuditLog
}

// NewMemoryRepository returns an empty in-memory refresh session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:          make(map[string]*domain.Session),
		byFingerprint: make(map[string]string),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneSession(r.byID[id]), nil
}

func (r *MemoryRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byFingerprint[fingerprint]
	if !ok {
		return nil, nil
	}
	return cloneSession(r.byID[id]), nil
}

func (r *MemoryRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.byID {
		if s.UserID == userID && s.IsUsable(now) {
			out = append(out, cloneSession(s))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byFingerprint[s.Fingerprint]; ok {
		return ErrDuplicateFingerprint
	}
	r.put(cloneSession(s))
	return nil
}

func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, staged: make(map[string]*domain.Session)}
	if err := fn(tx); err != nil {
		return err
	}
	for _, s := range tx.staged {
		r.put(s)
	}
	r.audit = append(r.audit, tx.audit...)
	return nil
}

// AuditLogs returns a copy of the committed audit entries in append order.
func (r *MemoryRepository) AuditLogs() []*auditdomain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*auditdomain.AuditLog, len(r.audit))
	for i, a := range r.audit {
		c := *a
		out[i] = &c
	}
	return out
}

func (r *MemoryRepository) put(s *domain.Session) {
	r.byID[s.ID] = s
	r.byFingerprint[s.Fingerprint] = s.ID
}

// memoryTx runs under the repository lock. staged holds every session written in this unit of
// work, keyed by id, and shadows the committed maps.
type memoryTx struct {
	repo   *MemoryRepository
	staged map[string]*domain.Session
	audit  []*auditdomain.AuditLog
}

func (t *memoryTx) get(id string) *domain.Session {
	if s, ok := t.staged[id]; ok {
		return s
	}
	return t.repo.byID[id]
}

func (t *memoryTx) GetByIDForUpdate(ctx context.Context, id string) (*domain.Session, error) {
	return cloneSession(t.get(id)), nil
}

func (t *memoryTx) Create(ctx context.Context, s *domain.Session) error {
	if _, ok := t.repo.byFingerprint[s.Fingerprint]; ok {
		return ErrDuplicateFingerprint
	}
	for _, staged := range t.staged {
		if staged.Fingerprint == s.Fingerprint {
			return ErrDuplicateFingerprint
		}
	}
	t.staged[s.ID] = cloneSession(s)
	return nil
}

func (t *memoryTx) Revoke(ctx context.Context, id string, at time.Time, replacedBy string) (bool, error) {
	cur := t.get(id)
	if cur == nil || cur.IsRevoked() {
		return false, nil
	}
	s := cloneSession(cur)
	s.RevokedAt = &at
	s.ReplacedBy = replacedBy
	t.staged[id] = s
	return true, nil
}

func (t *memoryTx) RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]*domain.Session, error) {
	var out []*domain.Session
	for id, cur := range t.repo.byID {
		if _, ok := t.staged[id]; ok {
			continue
		}
		if cur.UserID == userID && !cur.IsRevoked() {
			s := cloneSession(cur)
			s.RevokedAt = &at
			t.staged[id] = s
			out = append(out, cloneSession(s))
		}
	}
	for _, s := range t.staged {
		if s.UserID == userID && !s.IsRevoked() {
			s.RevokedAt = &at
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func (t *memoryTx) AppendAudit(ctx context.Context, a *auditdomain.AuditLog) error {
	c := *a
	t.audit = append(t.audit, &c)
	return nil
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.RevokedAt != nil {
		at := *s.RevokedAt
		c.RevokedAt = &at
	}
	return &c
}
