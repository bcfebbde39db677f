// Package cache provides Redis-backed caching for forecast reports.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/freelanceflow/revcast/internal/metrics"
)

const cacheType = "forecast"

// Entry wraps a cached payload with metadata so stale or misattributed data
// can be spotted when debugging dashboard output.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	Source   string          `json:"source"`
	CachedAt time.Time       `json:"cached_at"`
}

// Config holds Redis connection settings
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns local-development Redis settings
func DefaultConfig() Config {
	return Config{
		Addr: "localhost:6379",
		DB:   0,
		TTL:  15 * time.Minute,
	}
}

// ForecastCache caches serialized forecast reports in Redis with a TTL.
// A cache failure is never fatal: callers fall through to recomputing.
type ForecastCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	metrics   *metrics.Registry
}

// New creates a forecast cache backed by a new Redis client
func New(cfg Config, reg *metrics.Registry) *ForecastCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})

	return NewWithClient(client, cfg.TTL, reg)
}

// NewWithClient creates a forecast cache over an existing Redis client,
// used by tests to inject a mock
func NewWithClient(client *redis.Client, ttl time.Duration, reg *metrics.Registry) *ForecastCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &ForecastCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: "revcast:forecast:",
		metrics:   reg,
	}
}

// Key builds the cache key for a user's forecast window
func Key(userID string, windowMonths, horizon int) string {
	return fmt.Sprintf("%s:w%d:h%d", userID, windowMonths, horizon)
}

// Get retrieves a cached payload. The second return value reports whether a
// usable entry was found; Redis errors count as misses.
func (c *ForecastCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if err != nil {
		c.miss()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// Corrupt entry, drop it so the next write replaces it.
		c.client.Del(ctx, c.keyPrefix+key)
		c.miss()
		return nil, false
	}

	c.hit()

	return entry.Payload, true
}

// Set stores a payload under the cache TTL
func (c *ForecastCache) Set(ctx context.Context, key string, payload []byte) error {
	entry := Entry{
		Payload:  payload,
		Source:   "analytics",
		CachedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	return nil
}

// Invalidate removes a cached entry, used after scheduled refreshes
func (c *ForecastCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}

	return nil
}

// Health pings Redis
func (c *ForecastCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis client
func (c *ForecastCache) Close() error {
	return c.client.Close()
}

func (c *ForecastCache) hit() {
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(cacheType).Inc()
	}
}

func (c *ForecastCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMisses.WithLabelValues(cacheType).Inc()
	}
}
