//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mintgate/internal/platform/config"
	"mintgate/pkg/testutil/containers"
)

type RedisIntegrationSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	ctx   context.Context
}

func TestRedisIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.ctx = context.Background()
}

func (s *RedisIntegrationSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisIntegrationSuite) TestLeaseSingleHolder() {
	first := NewLease(s.redis.Client, "mintgate:reconcile")
	second := NewLease(s.redis.Client, "mintgate:reconcile")

	held, err := first.Acquire(s.ctx, time.Minute)
	s.Require().NoError(err)
	s.True(held)

	held, err = second.Acquire(s.ctx, time.Minute)
	s.Require().NoError(err)
	s.False(held)

	held, err = first.Acquire(s.ctx, time.Minute)
	s.Require().NoError(err)
	s.True(held, "holder renews its own lease")

	s.Require().NoError(second.Release(s.ctx))
	held, err = second.Acquire(s.ctx, time.Minute)
	s.Require().NoError(err)
	s.False(held, "release by a non-holder is ignored")

	s.Require().NoError(first.Release(s.ctx))
	held, err = second.Acquire(s.ctx, time.Minute)
	s.Require().NoError(err)
	s.True(held)
}

func (s *RedisIntegrationSuite) TestLeaseExpires() {
	first := NewLease(s.redis.Client, "mintgate:reconcile")
	second := NewLease(s.redis.Client, "mintgate:reconcile")

	_, err := first.Acquire(s.ctx, 100*time.Millisecond)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		held, err := second.Acquire(s.ctx, time.Minute)
		return err == nil && held
	}, 2*time.Second, 50*time.Millisecond)
}

func (s *RedisIntegrationSuite) TestDeduplicator() {
	d := NewDeduplicator(s.redis.Client, "mintgate:sns:", time.Hour)

	seen, err := d.Seen(s.ctx, "message-1")
	s.Require().NoError(err)
	s.False(seen)

	seen, err = d.Seen(s.ctx, "message-1")
	s.Require().NoError(err)
	s.True(seen)

	n, err := s.redis.CountKeys(s.ctx, "mintgate:sns:*")
	s.Require().NoError(err)
	s.Equal(1, n)

	s.Require().NoError(d.Forget(s.ctx, "message-1"))
	seen, err = d.Seen(s.ctx, "message-1")
	s.Require().NoError(err)
	s.False(seen)
}

func (s *RedisIntegrationSuite) TestNewFromConfig() {
	client, err := New(s.ctx, config.RedisConfig{URL: s.redis.URL, PoolSize: 2})
	s.Require().NoError(err)
	defer client.Close()
	s.NoError(client.Health(s.ctx))

	none, err := New(s.ctx, config.RedisConfig{})
	s.Require().NoError(err)
	s.Nil(none)
}
