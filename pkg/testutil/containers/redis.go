//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer backs the lease, webhook dedup and rate limit integration tests.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

// NewRedisContainer starts Redis and returns a connected client. The
// container is shared through Manager and reaped by Ryuk, so no t.Cleanup.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	fail := func(msg string, err error) {
		_ = container.Terminate(ctx)
		t.Fatalf("%s: %v", msg, err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		fail("redis connection string", err)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		fail("parse redis url", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		fail("ping redis", err)
	}

	return &RedisContainer{Container: container, URL: url, Client: client}
}

// FlushAll empties the database between tests.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}

// CountKeys returns how many keys match pattern.
func (r *RedisContainer) CountKeys(ctx context.Context, pattern string) (int, error) {
	n := 0
	iter := r.Client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}
