package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintgate/internal/platform/config"
)

func TestNewWithoutURL(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.ErrorIs(t, c.Health(context.Background()), ErrNotConfigured)
	assert.NoError(t, c.Close())
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "http://not-redis"})
	assert.Error(t, err)
}
