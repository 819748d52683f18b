//go:build integration

package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mintgate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.store = NewRedisStore(s.redis.Client, "mintgate:ratelimit:")
}

func (s *RedisStoreSuite) TestAllowUpToLimit() {
	for i := range 3 {
		result, err := s.store.Allow(s.ctx, "mint:10.0.0.1", 3, time.Minute)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2-i, result.Remaining)
	}

	result, err := s.store.Allow(s.ctx, "mint:10.0.0.1", 3, time.Minute)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Positive(result.RetryAfter)

	count, err := s.redis.Client.ZCard(s.ctx, "mintgate:ratelimit:mint:10.0.0.1").Result()
	s.Require().NoError(err)
	s.Equal(int64(3), count, "denied requests do not consume a slot")
}

func (s *RedisStoreSuite) TestConcurrentCallersShareTheBudget() {
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.store.Allow(s.ctx, "k", 5, time.Minute)
			s.NoError(err)
			if result != nil && result.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(5, allowed)
}

func (s *RedisStoreSuite) TestReset() {
	_, err := s.store.Allow(s.ctx, "k", 1, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(s.ctx, "k"))

	result, err := s.store.Allow(s.ctx, "k", 1, time.Minute)
	s.Require().NoError(err)
	s.True(result.Allowed)
}
