package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wqlab/screener/pkg/config"
)

func TestDisabledClient(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Enabled: false}}

	client, err := New(cfg)
	require.NoError(t, err)
	assert.False(t, client.Enabled())

	// Cache on a disabled client is a silent no-op.
	cache := NewCache(client, "screener")
	ctx := context.Background()

	err = cache.Set(ctx, FrameKey("600519", "2026-01-05"), map[string]int{"n": 1}, TTLMedium)
	assert.NoError(t, err)

	var dest map[string]int
	found, err := cache.Get(ctx, FrameKey("600519", "2026-01-05"), &dest)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestDisabledRateLimiter_AllowsAll(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Enabled: false}}
	client, err := New(cfg)
	require.NoError(t, err)

	limiter := NewRateLimiter(client, "screener")
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		allowed, _, err := limiter.Allow(ctx, QuoteRateLimit)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "frame:000001:2026-03-02", FrameKey("000001", "2026-03-02"))
	assert.Equal(t, "industry:2026-03-02", IndustryKey("2026-03-02"))
}

func TestRateLimiter_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := &config.Config{Redis: config.RedisConfig{
		Host: "localhost", Port: "6379", Enabled: true,
	}}
	client, err := New(cfg)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer client.Close()

	limiter := NewRateLimiter(client, "screener_test")
	ctx := context.Background()

	rl := RateLimitConfig{Key: "test", Limit: 3, Window: time.Second}

	allowedCount := 0
	for i := 0; i < 5; i++ {
		allowed, _, err := limiter.Allow(ctx, rl)
		require.NoError(t, err)
		if allowed {
			allowedCount++
		}
	}
	assert.Equal(t, 3, allowedCount)
}
