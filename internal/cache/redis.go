package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/muzz-matchmaking/internal/config"
)

// RedisCache is the coordination store: queues, active-match pointers,
// cooldown markers, cached preferences and block sets. Every mutation is a
// single atomic Redis command or script.
type RedisCache struct {
	Client *redis.Client
}

// claimPairScript removes both members from the queue only if both are
// still present. Returns 1 on success, 0 if either was already taken.
var claimPairScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 1 and redis.call("SISMEMBER", KEYS[1], ARGV[2]) == 1 then
	redis.call("SREM", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

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

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

// Lookup is Get with cache misses reported as ok=false instead of an error.
func (c *RedisCache) Lookup(ctx context.Context, key string) (string, bool, error) {
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil // cache miss
	} else if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.Client.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *RedisCache) SAdd(ctx context.Context, key string, members ...string) error {
	return c.Client.SAdd(ctx, key, toAny(members)...).Err()
}

func (c *RedisCache) SRem(ctx context.Context, key string, members ...string) error {
	return c.Client.SRem(ctx, key, toAny(members)...).Err()
}

func (c *RedisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.Client.SMembers(ctx, key).Result()
}

func (c *RedisCache) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return c.Client.SIsMember(ctx, key, member).Result()
}

// ClaimPair atomically removes a and b from the queue at key.
// Returns false without side effects if either is no longer queued.
func (c *RedisCache) ClaimPair(ctx context.Context, key, a, b string) (bool, error) {
	n, err := claimPairScript.Run(ctx, c.Client, []string{key}, a, b).Int()
	if err != nil {
		return false, fmt.Errorf("claim pair: %w", err)
	}
	return n == 1, nil
}

func (c *RedisCache) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.Client.Publish(ctx, channel, payload).Err()
}

// KeyForQueue generates the waiting-queue key for a mode and optional country.
func (c *RedisCache) KeyForQueue(mode, country string) string {
	key := "matchmaking:queue:" + strings.ToUpper(mode)
	if country != "" {
		key += ":" + country
	}
	return key
}

// KeyForActiveMatch generates the active-match pointer key. Value is a room id.
func (c *RedisCache) KeyForActiveMatch(username string) string {
	return "matchmaking:active:" + username
}

// KeyForCooldown generates the cooldown marker for an ordered pair.
// Callers check both orderings.
func (c *RedisCache) KeyForCooldown(a, b string) string {
	return fmt.Sprintf("matchmaking:cooldown:%s:%s", a, b)
}

func (c *RedisCache) KeyForPreferences(username string) string {
	return "matchmaking:prefs:" + username
}

func (c *RedisCache) KeyForBlocked(username string) string {
	return "user:blocked:" + username
}

// ChannelForMatch is the per-user pub/sub channel for match-found events.
func (c *RedisCache) ChannelForMatch(username string) string {
	return fmt.Sprintf("user:%s:match", username)
}

func toAny(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
