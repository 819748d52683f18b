// Package redis holds the optional Redis client and the coordination
// primitives built on it: the reconciliation lease and webhook deduplication.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mintgate/internal/platform/config"
)

// ErrNotConfigured is returned by Health on a nil client.
var ErrNotConfigured = errors.New("redis not configured")

// Client embeds the go-redis client so callers use its commands directly.
type Client struct {
	*redis.Client
}

// New connects and pings. It returns (nil, nil) when no URL is set: every
// Redis-backed feature has an in-process fallback.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health pings Redis.
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return ErrNotConfigured
	}
	return c.Ping(ctx).Err()
}

// Close is safe on a nil client.
func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
