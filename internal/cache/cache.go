// Package cache keeps JSON values in Redis, or in process memory when no
// Redis URL is configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SnapshotKey holds the latest aggregate snapshot.
const SnapshotKey = "pulse-fleet:snapshot:latest"

// Config configures a Cache.
type Config struct {
	RedisURL   string
	DefaultTTL time.Duration
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// Cache is a TTL key/value store for JSON-encodable values.
type Cache struct {
	rdb        *redis.Client
	defaultTTL time.Duration

	mu  sync.Mutex
	mem map[string]memEntry
	now func() time.Time
}

// New creates a cache. An empty RedisURL selects the in-memory backend.
func New(cfg Config) (*Cache, error) {
	c := &Cache{
		defaultTTL: cfg.DefaultTTL,
		mem:        make(map[string]memEntry),
		now:        time.Now,
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = time.Hour
	}
	if cfg.RedisURL == "" {
		return c, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c.rdb = redis.NewClient(opts)
	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Snapshot cache using Redis")
	return c, nil
}

// Redis reports whether the cache is backed by Redis.
func (c *Cache) Redis() bool { return c.rdb != nil }

// Get decodes the value at key into dst. It reports false on a miss or any
// backend error; a cache never fails the caller.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	data, err := c.get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return false
	}
	return true
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, error) {
	if c.rdb != nil {
		return c.rdb.Get(ctx, key).Bytes()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.mem[key]
	if !ok {
		return nil, redis.Nil
	}
	if c.now().After(e.expires) {
		delete(c.mem, key)
		return nil, redis.Nil
	}
	return e.data, nil
}

// Set stores v at key for ttl, or the default TTL when ttl <= 0.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
			return fmt.Errorf("write cache key %s: %w", key, err)
		}
		return nil
	}

	c.mu.Lock()
	c.mem[key] = memEntry{data: data, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Ping checks the Redis connection. The memory backend is always up.
func (c *Cache) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
