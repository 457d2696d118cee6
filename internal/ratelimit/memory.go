package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	start time.Time
	count int64
}

// MemoryStore keeps counters in process memory. Expired buckets are swept
// by a background goroutine until Stop is called.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	clock   Clock
	maxAge  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store. cleanupInterval <= 0 disables the sweeper;
// buckets older than maxAge are dropped on each sweep.
func NewMemoryStore(clock Clock, cleanupInterval, maxAge time.Duration) *MemoryStore {
	if clock == nil {
		clock = SystemClock
	}
	s := &MemoryStore{
		buckets: make(map[string]*bucket),
		clock:   clock,
		maxAge:  maxAge,
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.sweepLoop(cleanupInterval)
	}
	return s
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || !now.Before(b.start.Add(window)) {
		s.buckets[key] = &bucket{start: now, count: 1}
		return 1, nil
	}
	b.count++
	return b.count, nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	cutoff := s.clock.Now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range s.buckets {
		if b.start.Before(cutoff) {
			delete(s.buckets, k)
		}
	}
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Stop shuts the sweeper down. Safe to call more than once.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
