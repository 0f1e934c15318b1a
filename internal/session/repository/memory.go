package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"auth-session/backend/internal/session/domain"
)

// MemoryRepository is an in-process Repository for tests and single-instance development.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session)}
}

func clone(s *domain.Session) *domain.Session {
	c := *s
	if s.LastUsedAt != nil {
		t := *s.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

func (m *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = clone(s)
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return clone(s), nil
	}
	return nil, nil
}

func (m *MemoryRepository) FindByRefreshTokenHash(ctx context.Context, hash string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hash == "" {
		return nil, nil
	}
	for _, s := range m.sessions {
		if s.RefreshTokenHash == hash {
			return clone(s), nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, clone(s))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryRepository) FindAll(ctx context.Context, limit, offset int32) ([]*domain.Session, error) {
	m.mu.Lock()
	all := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, clone(s))
	}
	m.mu.Unlock()
	sortNewestFirst(all)
	if int(offset) >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && int(limit) < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryRepository) Count(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if userID == "" || s.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) Update(ctx context.Context, id string, c Changes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if c.ExpectRefreshTokenHash != nil && s.RefreshTokenHash != *c.ExpectRefreshTokenHash {
		return ErrNotFound
	}
	if c.RefreshTokenHash != nil {
		s.RefreshTokenHash = *c.RefreshTokenHash
	}
	if c.IsActive != nil {
		s.IsActive = *c.IsActive
	}
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		s.LastUsedAt = &t
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = *c.ExpiresAt
	}
	return nil
}

func (m *MemoryRepository) DeleteByID(ctx context.Context, id string) (int64, error) {
	return m.deleteWhere(func(s *domain.Session) bool { return s.ID == id }), nil
}

func (m *MemoryRepository) DeleteByRefreshTokenHash(ctx context.Context, hash string) (int64, error) {
	if hash == "" {
		return 0, nil
	}
	return m.deleteWhere(func(s *domain.Session) bool { return s.RefreshTokenHash == hash }), nil
}

func (m *MemoryRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	return m.deleteWhere(func(s *domain.Session) bool { return s.UserID == userID }), nil
}

func (m *MemoryRepository) DeleteExpired(ctx context.Context, now, pendingBefore time.Time) (int64, error) {
	return m.deleteWhere(func(s *domain.Session) bool {
		return s.IsExpired(now) || (s.IsPending() && !s.CreatedAt.After(pendingBefore))
	}), nil
}

func (m *MemoryRepository) deleteWhere(pred func(*domain.Session) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if pred(s) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func sortNewestFirst(list []*domain.Session) {
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}
