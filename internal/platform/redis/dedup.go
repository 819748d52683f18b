package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator remembers message ids for a while so redelivered messages can
// be acknowledged without being processed twice.
type Deduplicator struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewDeduplicator(client redis.Cmdable, prefix string, ttl time.Duration) *Deduplicator {
	return &Deduplicator{client: client, prefix: prefix, ttl: ttl}
}

// Seen records id and reports whether it had been recorded before.
func (d *Deduplicator) Seen(ctx context.Context, id string) (bool, error) {
	first, err := d.client.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup %s: %w", id, err)
	}
	return !first, nil
}

// Forget removes id so a failed delivery can be processed on redelivery.
func (d *Deduplicator) Forget(ctx context.Context, id string) error {
	return d.client.Del(ctx, d.prefix+id).Err()
}
