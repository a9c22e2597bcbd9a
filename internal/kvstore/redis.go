package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key the gateway writes.
const DefaultKeyPrefix = "synophoto:"

const redisPingTimeout = 5 * time.Second

// compareAndDeleteScript deletes KEYS[1] only when it still holds ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// slidingWindowScript: ARGV = now_ms, window_ms, limit, member.
// Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)

local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < limit then
	redis.call("ZADD", KEYS[1], now, ARGV[4])
	count = count + 1
	allowed = 1
end

if count > 0 then
	redis.call("PEXPIRE", KEYS[1], window)
end

local oldest = now
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if #first == 2 then
	oldest = tonumber(first[2])
end

return {allowed, count, oldest}
`)

// RedisConfig holds connection settings. URL takes precedence over Addr.
type RedisConfig struct {
	URL       string
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis implements Store on a Redis server.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. prefix typically ends with a colon.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis connects using cfg and verifies the connection with a ping.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	var opts *redis.Options

	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("kvstore: parsing redis url: %w", err)
		}

		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kvstore: connecting to redis: %w", errors.Join(ErrStore, err))
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return NewRedis(client, prefix), nil
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, wrapRedis("get", err)
	}

	return val, true, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return wrapRedis("set", err)
	}

	return nil
}

// SetNX implements Store.
func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		return false, wrapRedis("setnx", err)
	}

	return ok, nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return wrapRedis("del", err)
	}

	return nil
}

// CompareAndDelete implements Store.
func (r *Redis) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, r.client, []string{r.key(key)}, expected).Int64()
	if err != nil {
		return false, wrapRedis("compare-and-delete", err)
	}

	return n > 0, nil
}

// Incr implements Store.
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, wrapRedis("incr", err)
	}

	return n, nil
}

// SlidingWindow implements Store.
func (r *Redis) SlidingWindow(
	ctx context.Context, key string, now time.Time, window time.Duration, limit int, member string,
) (WindowResult, error) {
	raw, err := slidingWindowScript.Run(ctx, r.client, []string{r.key(key)},
		now.UnixMilli(), window.Milliseconds(), limit, member).Int64Slice()
	if err != nil {
		return WindowResult{}, wrapRedis("sliding-window", err)
	}

	if len(raw) != 3 {
		return WindowResult{}, fmt.Errorf("kvstore: sliding-window returned %d values: %w", len(raw), ErrStore)
	}

	return WindowResult{
		Allowed: raw[0] == 1,
		Count:   int(raw[1]),
		Oldest:  time.UnixMilli(raw[2]),
	}, nil
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}

func wrapRedis(op string, err error) error {
	return fmt.Errorf("kvstore: redis %s: %w", op, errors.Join(ErrStore, err))
}

// ParseCounter reads a counter value written by Incr or SetNX("0").
func ParseCounter(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("kvstore: counter value %q: %w", s, err)
	}

	return n, nil
}
