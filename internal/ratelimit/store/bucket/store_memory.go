package bucket

import (
	"context"
	"sync"
	"time"

	"mintgate/internal/ratelimit/models"
)

// InMemoryBucketStore is a sliding-window limiter local to one process.
// Use RedisStore when several instances share the budget.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*slidingWindow
	clock   func() time.Time
}

type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

type MemoryOption func(*InMemoryBucketStore)

// WithClock injects the time source.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *InMemoryBucketStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryBucketStore(opts ...MemoryOption) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		buckets: make(map[string]*slidingWindow),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow records one request for key if it fits in the window.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	sw := s.buckets[key]
	if sw == nil {
		sw = &slidingWindow{window: window}
		s.buckets[key] = sw
	}
	sw.cleanup(now)

	if len(sw.timestamps) >= limit {
		resetAt := sw.timestamps[0].Add(window)
		return &models.Result{
			Allowed:    false,
			Limit:      limit,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(now, resetAt),
		}, nil
	}

	sw.timestamps = append(sw.timestamps, now)
	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(sw.timestamps),
		ResetAt:   sw.timestamps[0].Add(window),
	}, nil
}

// Reset clears the window for key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

func (sw *slidingWindow) cleanup(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
}

// retryAfter rounds up so clients never retry before the window frees a slot.
func retryAfter(now, resetAt time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 1
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
