package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

const (
	testLimit  = 3
	testWindow = time.Minute
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type InMemoryBucketStoreSuite struct {
	suite.Suite
	clock *fakeClock
	store *InMemoryBucketStore
	ctx   context.Context
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s.store = NewInMemoryBucketStore(WithClock(s.clock.Now))
	s.ctx = context.Background()
}

func (s *InMemoryBucketStoreSuite) TestAllowUpToLimit() {
	for i := range testLimit {
		result, err := s.store.Allow(s.ctx, "mint:10.0.0.1", testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit-i-1, result.Remaining)
	}

	result, err := s.store.Allow(s.ctx, "mint:10.0.0.1", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(0, result.Remaining)
	s.Equal(60, result.RetryAfter)
}

func (s *InMemoryBucketStoreSuite) TestKeysAreIndependent() {
	for range testLimit {
		_, err := s.store.Allow(s.ctx, "mint:10.0.0.1", testLimit, testWindow)
		s.Require().NoError(err)
	}
	result, err := s.store.Allow(s.ctx, "mint:10.0.0.2", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestWindowSlides() {
	_, _ = s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.clock.Advance(30 * time.Second)
	_, _ = s.store.Allow(s.ctx, "k", testLimit, testWindow)
	_, _ = s.store.Allow(s.ctx, "k", testLimit, testWindow)

	result, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(30, result.RetryAfter, "oldest request leaves the window in 30s")

	s.clock.Advance(30 * time.Second)
	result, err = s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestReset() {
	for range testLimit {
		_, _ = s.store.Allow(s.ctx, "k", testLimit, testWindow)
	}
	s.Require().NoError(s.store.Reset(s.ctx, "k"))

	result, err := s.store.Allow(s.ctx, "k", testLimit, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestConcurrentCallersShareTheBudget() {
	const callers = 50
	var wg sync.WaitGroup
	allowed := make(chan bool, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(s.ctx, "k", 10, testWindow)
			s.NoError(err)
			allowed <- result.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	n := 0
	for ok := range allowed {
		if ok {
			n++
		}
	}
	s.Equal(10, n)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	now := time.Unix(0, 0)
	if got := retryAfter(now, now.Add(1500*time.Millisecond)); got != 2 {
		t.Fatalf("retryAfter = %d, want 2", got)
	}
	if got := retryAfter(now, now); got != 1 {
		t.Fatalf("retryAfter = %d, want 1", got)
	}
}
