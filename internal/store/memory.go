package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haloverify/verifysvc/internal/domain"
)

// MemoryStore is the reference SessionStore: a map guarded by a single
// mutex plus a scheduled sweeper that evicts expired entries. It is meant
// for the development profile and for tests, not for a multi-process
// deployment.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*memoryEntry
	clock  func() time.Time
	stopCh chan struct{}
}

type memoryEntry struct {
	record    domain.Session
	expiresAt time.Time
}

// NewMemoryStore starts a store with a background sweeper running every
// interval (no sweeper when interval is not positive); callers should call
// Close when done (tests included).
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		byID:   make(map[uuid.UUID]*memoryEntry),
		clock:  time.Now,
		stopCh: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.byID {
		if now.After(e.expiresAt) {
			delete(s.byID, id)
		}
	}
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() {
	close(s.stopCh)
}

func (s *MemoryStore) Create(_ context.Context, record domain.Session, ttl time.Duration) (uuid.UUID, error) {
	id := uuid.New()
	now := s.clock()
	record.SessionID = id
	record.CreatedAt = now
	record.ExpiresAt = now.Add(ttl)
	record.Version = 1

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = &memoryEntry{record: record.Clone(), expiresAt: record.ExpiresAt}
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (domain.Session, error) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok || now.After(e.expiresAt) {
		return domain.Session{}, ErrNotFound
	}
	return e.record.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, mutator Mutator) (domain.Session, error) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok || now.After(e.expiresAt) {
		return domain.Session{}, ErrNotFound
	}

	next, err := applyMutator(e.record, mutator)
	if err != nil {
		return domain.Session{}, err
	}
	expiresAt := next.ExpiresAt
	if expiresAt.Before(e.expiresAt) {
		// ExpiresAt may only extend, never shrink; a mutator that tries to
		// shrink it (it shouldn't) is clamped rather than trusted.
		expiresAt = e.expiresAt
		next.ExpiresAt = expiresAt
	}
	s.byID[id] = &memoryEntry{record: next.Clone(), expiresAt: expiresAt}
	return next.Clone(), nil
}
