package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements CacheBackend using Redis
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a new Redis cache from URL
// URL format: redis://[:password@]host:port/db
func NewRedisCache(redisURL string, prefix string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Connection pool settings
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (r *RedisCache) key(k string) string {
	return r.prefix + k
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisCache) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	prefixedKeys := make([]string, len(keys))
	for i, k := range keys {
		prefixedKeys[i] = r.key(k)
	}

	values, err := r.client.MGet(ctx, prefixedKeys...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte)
	for i, v := range values {
		if v != nil {
			if str, ok := v.(string); ok {
				result[keys[i]] = []byte(str)
			}
		}
	}

	return result, nil
}

func (r *RedisCache) SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for key, value := range items {
		pipe.Set(ctx, r.key(key), value, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// GetClient returns the underlying Redis client for use by other stores
func (r *RedisCache) GetClient() *redis.Client {
	return r.client
}

// --- Redis LNURL Cache ---

// RedisLNURLCache caches resolved LNURL pay info per pubkey
type RedisLNURLCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// cachedLNURLInfo stores LNURL pay info with not-found state
type cachedLNURLInfo struct {
	Info     *LNURLPayInfo `json:"info"`
	NotFound bool          `json:"not_found"`
}

// NewRedisLNURLCache creates a new Redis LNURL cache
func NewRedisLNURLCache(client *redis.Client, prefix string, ttl time.Duration) *RedisLNURLCache {
	return &RedisLNURLCache{
		client: client,
		prefix: prefix + "lnurl:",
		ttl:    ttl,
	}
}

// Get retrieves cached LNURL pay info
func (c *RedisLNURLCache) Get(pubkey string) (*LNURLPayInfo, bool) {
	ctx := context.Background()
	data, err := c.client.Get(ctx, c.prefix+pubkey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Debug("Redis LNURL cache get error", "error", err)
		return nil, false
	}

	var cached cachedLNURLInfo
	if err := json.Unmarshal(data, &cached); err != nil {
		slog.Debug("Redis LNURL cache unmarshal error", "error", err)
		return nil, false
	}

	// Return nil for "not found" entries but still return true (was cached)
	if cached.NotFound {
		return nil, true
	}

	return cached.Info, true
}

// Set stores LNURL pay info in the cache
func (c *RedisLNURLCache) Set(pubkey string, info *LNURLPayInfo) {
	ctx := context.Background()
	cached := cachedLNURLInfo{Info: info}
	data, err := json.Marshal(cached)
	if err != nil {
		slog.Debug("Redis LNURL cache marshal error", "error", err)
		return
	}

	if err := c.client.Set(ctx, c.prefix+pubkey, data, c.ttl).Err(); err != nil {
		slog.Debug("Redis LNURL cache set error", "error", err)
	}
}

// SetNotFound marks a pubkey as having no LNURL
func (c *RedisLNURLCache) SetNotFound(pubkey string) {
	ctx := context.Background()
	cached := cachedLNURLInfo{NotFound: true}
	data, err := json.Marshal(cached)
	if err != nil {
		slog.Debug("Redis LNURL cache marshal error", "error", err)
		return
	}

	if err := c.client.Set(ctx, c.prefix+pubkey, data, c.ttl).Err(); err != nil {
		slog.Debug("Redis LNURL cache set error", "error", err)
	}
}
