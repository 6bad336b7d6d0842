// Package memory provides process-local implementations of the lock store
// and counter cache, used by tests and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curator-agent/internal/store"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

type countEntry struct {
	count     int
	expiresAt time.Time
}

// Store implements store.LockStore and store.CounterCache with in-process
// maps guarded by a mutex.
type Store struct {
	mu     sync.Mutex
	locks  map[string]lockEntry
	counts map[string]countEntry
	now    func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		locks:  make(map[string]lockEntry),
		counts: make(map[string]countEntry),
		now:    time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// TryAcquire implements store.LockStore.
func (s *Store) TryAcquire(_ context.Context, genreID string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, held := s.locks[genreID]; held && entry.expiresAt.After(now) {
		return "", false, nil
	}

	token := uuid.NewString()
	s.locks[genreID] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Release implements store.LockStore.
func (s *Store) Release(_ context.Context, genreID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, held := s.locks[genreID]
	if !held || entry.token != token || !entry.expiresAt.After(s.now()) {
		return false, nil
	}
	delete(s.locks, genreID)
	return true, nil
}

// Refresh implements store.CounterCache.
func (s *Store) Refresh(_ context.Context, genreID string, count int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[genreID] = countEntry{count: count, expiresAt: s.now().Add(ttl)}
	return nil
}

// Get implements store.CounterCache.
func (s *Store) Get(_ context.Context, genreID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.counts[genreID]
	if !ok || !entry.expiresAt.After(s.now()) {
		return 0, false, nil
	}
	return entry.count, true, nil
}

var (
	_ store.LockStore    = (*Store)(nil)
	_ store.CounterCache = (*Store)(nil)
)
