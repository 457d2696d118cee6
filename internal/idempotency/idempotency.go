// Package idempotency remembers which webhook deliveries were already
// handled so a redelivered event does not apply twice.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Store marks event ids as processed for a TTL.
type Store interface {
	// MarkProcessed returns true if id was newly marked, false if it was
	// already processed and has not expired.
	MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error)
	// Forget drops the mark so a failed delivery can be retried.
	Forget(ctx context.Context, id string) error
	Close() error
}

// MemoryStore is a single-instance Store with a background sweep.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	now       func() time.Time
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryStore starts a sweep every interval; interval <= 0 disables it.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if interval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(interval)
	}
	return s
}

func (s *MemoryStore) MarkProcessed(_ context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.entries[id]; ok && now.Before(exp) {
		return false, nil
	}
	s.entries[id] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Forget(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

// Len returns the number of tracked ids, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, id)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
