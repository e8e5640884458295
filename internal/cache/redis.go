package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/oggyb/crosspost-earnings/internal/config"
	"github.com/oggyb/crosspost-earnings/internal/engine"
)

// ErrLockHeld is returned when another worker already holds a recalculation lock.
var ErrLockHeld = errors.New("recalculation already in progress")

const settingsKey = "earnings:settings:v1"

// RedisCache caches payout configuration and coordinates recalculations.
// Paired rows and earnings are never cached: they are recomputed on every read.
type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// PayConfig is the cached combination of base rates and bonus tiers.
type PayConfig struct {
	Settings engine.PayoutSettings
	Tiers    []engine.BonusTier
}

type payConfigJSON struct {
	InstagramBasePay decimal.Decimal `json:"instagram_base_pay"`
	TikTokBasePay    decimal.Decimal `json:"tiktok_base_pay"`
	Tiers            []tierJSON      `json:"tiers"`
}

type tierJSON struct {
	ViewThreshold int64           `json:"view_threshold"`
	BonusAmount   decimal.Decimal `json:"bonus_amount"`
}

// GetPayConfig returns the cached configuration. ok=false on cache miss.
func (c *RedisCache) GetPayConfig(ctx context.Context) (PayConfig, bool, error) {
	val, err := c.Client.Get(ctx, settingsKey).Result()
	if errors.Is(err, redis.Nil) {
		return PayConfig{}, false, nil // cache miss
	} else if err != nil {
		return PayConfig{}, false, err
	}

	var raw payConfigJSON
	if err := json.Unmarshal([]byte(val), &raw); err != nil {
		// corrupt entry: drop it and report a miss
		_ = c.Client.Del(ctx, settingsKey).Err()
		return PayConfig{}, false, nil
	}

	out := PayConfig{
		Settings: engine.PayoutSettings{
			InstagramBasePay: raw.InstagramBasePay,
			TikTokBasePay:    raw.TikTokBasePay,
		},
		Tiers: make([]engine.BonusTier, len(raw.Tiers)),
	}
	for i, t := range raw.Tiers {
		out.Tiers[i] = engine.BonusTier{ViewThreshold: t.ViewThreshold, BonusAmount: t.BonusAmount}
	}
	return out, true, nil
}

// SetPayConfig stores the configuration with ttl.
func (c *RedisCache) SetPayConfig(ctx context.Context, pc PayConfig, ttl time.Duration) error {
	raw := payConfigJSON{
		InstagramBasePay: pc.Settings.InstagramBasePay,
		TikTokBasePay:    pc.Settings.TikTokBasePay,
		Tiers:            make([]tierJSON, len(pc.Tiers)),
	}
	for i, t := range pc.Tiers {
		raw.Tiers[i] = tierJSON{ViewThreshold: t.ViewThreshold, BonusAmount: t.BonusAmount}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal pay config: %w", err)
	}
	return c.Client.Set(ctx, settingsKey, b, ttl).Err()
}

// InvalidatePayConfig drops the cached configuration after an admin change.
func (c *RedisCache) InvalidatePayConfig(ctx context.Context) error {
	return c.Client.Del(ctx, settingsKey).Err()
}

// KeyForRecalcLock generates Redis key for a cycle's recalculation lock
func (c *RedisCache) KeyForRecalcLock(cycleID string) string {
	return fmt.Sprintf("earnings:recalc:lock:%s", cycleID)
}

// AcquireRecalcLock takes the per-cycle recalculation lock with SET NX.
//
// Behavior:
//   - Returns ErrLockHeld if the key already exists.
//   - The returned release func deletes the key only while it still holds
//     our token, so an expired-and-retaken lock is left alone.
func (c *RedisCache) AcquireRecalcLock(ctx context.Context, cycleID, token string, ttl time.Duration) (func(context.Context) error, error) {
	key := c.KeyForRecalcLock(cycleID)
	ok, err := c.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, c.Client, []string{key}, token).Err()
	}
	return release, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
