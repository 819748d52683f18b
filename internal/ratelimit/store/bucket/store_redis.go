package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mintgate/internal/ratelimit/models"
)

// RedisStore keeps one sorted set per key, scored by request time in
// microseconds. Every instance pointed at the same Redis shares the budget.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	clock  func() time.Time
}

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, clock: time.Now}
}

// Allow adds the request optimistically and takes it back when the window
// was already full, so concurrent callers never both get the last slot.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := s.clock()
	k := s.prefix + key
	member := uuid.NewString()
	cutoff := now.Add(-window).UnixMicro()

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMicro()), Member: member})
		card = pipe.ZCard(ctx, k)
		oldest = pipe.ZRangeWithScores(ctx, k, 0, 0)
		pipe.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}

	resetAt := now.Add(window)
	if z := oldest.Val(); len(z) > 0 {
		resetAt = time.UnixMicro(int64(z[0].Score)).Add(window)
	}

	count := int(card.Val())
	if count > limit {
		if err := s.client.ZRem(ctx, k, member).Err(); err != nil {
			return nil, fmt.Errorf("rate limit %s: release slot: %w", key, err)
		}
		return &models.Result{
			Allowed:    false,
			Limit:      limit,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(now, resetAt),
		}, nil
	}
	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count,
		ResetAt:   resetAt,
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
