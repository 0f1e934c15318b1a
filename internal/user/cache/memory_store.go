package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	val       []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store for single-instance deployments and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

// Set implements Store. The value is copied.
func (s *MemoryStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	cp := append([]byte(nil), val...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{val: cp, expiresAt: s.nowF().Add(ttl)}
	return nil
}

// Get implements Store. Expired entries are removed on read.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		if cur, still := s.m[key]; still && !cur.expiresAt.After(s.nowF()) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.val, true, nil
}

// Del implements Store.
func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}
