package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_Window(t *testing.T) {
	s := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	lim := NewRedis(client, 2, 500*time.Millisecond, "test:")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := lim.Allow(ctx, "ip")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := lim.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	s.FastForward(600 * time.Millisecond)

	d, err = lim.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_UnavailableReturnsError(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	s.Close()

	lim := NewRedis(client, 2, time.Second, "")
	_, err := lim.Allow(context.Background(), "ip")
	assert.Error(t, err)
}
