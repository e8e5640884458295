package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/crosspost-earnings/internal/cache"
	"github.com/oggyb/crosspost-earnings/internal/config"
	"github.com/oggyb/crosspost-earnings/internal/engine"
)

func setupCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	return cache.NewRedisCache(cfg), mr
}

func TestPayConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	_, ok, err := c.GetPayConfig(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	pc := cache.PayConfig{
		Settings: engine.PayoutSettings{
			InstagramBasePay: decimal.RequireFromString("2.50"),
			TikTokBasePay:    decimal.RequireFromString("1.75"),
		},
		Tiers: []engine.BonusTier{{ViewThreshold: 5_000, BonusAmount: decimal.NewFromInt(5)}},
	}
	require.NoError(t, c.SetPayConfig(ctx, pc, time.Minute))

	got, ok, err := c.GetPayConfig(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Settings.InstagramBasePay.Equal(pc.Settings.InstagramBasePay))
	assert.True(t, got.Settings.TikTokBasePay.Equal(pc.Settings.TikTokBasePay))
	require.Len(t, got.Tiers, 1)
	assert.Equal(t, int64(5_000), got.Tiers[0].ViewThreshold)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.GetPayConfig(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire")
}

func TestInvalidatePayConfig(t *testing.T) {
	ctx := context.Background()
	c, _ := setupCache(t)

	require.NoError(t, c.SetPayConfig(ctx, cache.PayConfig{}, time.Minute))
	require.NoError(t, c.InvalidatePayConfig(ctx))

	_, ok, err := c.GetPayConfig(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecalcLock(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	release, err := c.AcquireRecalcLock(ctx, "cy-1", "a", time.Minute)
	require.NoError(t, err)

	_, err = c.AcquireRecalcLock(ctx, "cy-1", "b", time.Minute)
	assert.ErrorIs(t, err, cache.ErrLockHeld)

	// other cycles are independent
	other, err := c.AcquireRecalcLock(ctx, "cy-2", "b", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(c.KeyForRecalcLock("cy-1")))

	_, err = c.AcquireRecalcLock(ctx, "cy-1", "c", time.Minute)
	assert.NoError(t, err)
}

func TestRecalcLock_ReleaseIgnoresForeignToken(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	release, err := c.AcquireRecalcLock(ctx, "cy-1", "mine", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = c.AcquireRecalcLock(ctx, "cy-1", "theirs", time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	v, err := mr.Get(c.KeyForRecalcLock("cy-1"))
	require.NoError(t, err)
	assert.Equal(t, "theirs", v)
}
