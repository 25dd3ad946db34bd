package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval bounds how often Allow walks every key to drop idle windows.
const sweepInterval = time.Minute

// InMemoryStore is a per-process sliding window. Counts are not shared
// between replicas; use RedisStore for that.
type InMemoryStore struct {
	mu        sync.Mutex
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

// window holds hits in arrival order for one key.
type window struct {
	hits   []time.Time
	length time.Duration
}

type InMemoryOption func(*InMemoryStore)

func WithMemoryClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSweep = s.now()
	return s
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, length time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	w.length = length
	w.hits = prune(w.hits, now.Add(-length))

	if len(w.hits) >= limit {
		resetAt := now.Add(length)
		if len(w.hits) > 0 {
			resetAt = w.hits[0].Add(length)
		} else {
			delete(s.windows, key)
		}
		return &Result{
			Allowed:    false,
			Limit:      limit,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(resetAt, now),
		}, nil
	}

	w.hits = append(w.hits, now)
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.hits),
		ResetAt:   w.hits[0].Add(length),
	}, nil
}

// sweep drops every key whose newest hit has left its window. Callers hold mu.
func (s *InMemoryStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for key, w := range s.windows {
		if n := len(w.hits); n == 0 || !w.hits[n-1].After(now.Add(-w.length)) {
			delete(s.windows, key)
		}
	}
}

// prune drops timestamps at or before cutoff. hits is in arrival order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(hits); i++ {
		if hits[i].After(cutoff) {
			break
		}
	}
	return hits[i:]
}
