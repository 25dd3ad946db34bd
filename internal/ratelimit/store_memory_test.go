package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 3
	testWindow = time.Minute
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore(WithMemoryClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestAllowsUpToLimit() {
	for i := range testLimit {
		res, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(testLimit-i-1, res.Remaining)
	}

	res, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Zero(res.Remaining)
	s.Equal(60, res.RetryAfter)
}

func (s *InMemoryStoreSuite) TestWindowSlides() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
		s.Require().NoError(err)
	}

	s.now = s.now.Add(40 * time.Second)
	res, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(20, res.RetryAfter)

	s.now = s.now.Add(20 * time.Second)
	res, err = s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *InMemoryStoreSuite) TestKeysAreIndependent() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, "a", testLimit, testWindow)
		s.Require().NoError(err)
	}
	res, err := s.store.Allow(s.ctx, "b", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *InMemoryStoreSuite) TestConcurrentCallersNeverExceedLimit() {
	const callers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.Allow(s.ctx, "shared", 10, testWindow)
			s.NoError(err)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(10, allowed)
}

func (s *InMemoryStoreSuite) TestIdleKeysAreSwept() {
	for i := range 20 {
		_, err := s.store.Allow(s.ctx, fmt.Sprintf("ip:198.51.100.%d", i), testLimit, testWindow)
		s.Require().NoError(err)
	}
	s.Len(s.store.windows, 20)

	s.now = s.now.Add(testWindow + sweepInterval)
	_, err := s.store.Allow(s.ctx, "ip:203.0.113.7", testLimit, testWindow)
	s.Require().NoError(err)

	s.Len(s.store.windows, 1)
	s.Contains(s.store.windows, "ip:203.0.113.7")
}

func (s *InMemoryStoreSuite) TestSweepKeepsLiveWindows() {
	_, err := s.store.Allow(s.ctx, "short", testLimit, time.Second)
	s.Require().NoError(err)
	_, err = s.store.Allow(s.ctx, "long", testLimit, time.Hour)
	s.Require().NoError(err)

	s.now = s.now.Add(2 * sweepInterval)
	_, err = s.store.Allow(s.ctx, "other", testLimit, testWindow)
	s.Require().NoError(err)

	s.NotContains(s.store.windows, "short")
	s.Contains(s.store.windows, "long")
}
