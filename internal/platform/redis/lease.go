package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Both scripts only touch the key while this holder owns it.
var (
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lease is a single-holder lock with expiry. A holder that stops renewing
// loses the lease after its ttl.
type Lease struct {
	client redis.Cmdable
	key    string
	token  string
}

func NewLease(client redis.Cmdable, key string) *Lease {
	return &Lease{client: client, key: key, token: uuid.NewString()}
}

// Acquire takes the lease, or renews it if already held, for ttl.
func (l *Lease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if ok {
		return true, nil
	}
	extended, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("renew lease %s: %w", l.key, err)
	}
	return extended == 1, nil
}

// Release gives the lease up if this holder owns it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
