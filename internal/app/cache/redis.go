package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
)

const (
	defaultOpTimeout = 150 * time.Millisecond
	// Namespace is appended to KeyPrefix. Flush only touches keys under it, so
	// other users of the same database (rate limits, revocations) survive.
	Namespace      = "cache:"
	flushBatchSize = 500
)

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	KeyPrefix string
	OpTimeout time.Duration
	Now       func() time.Time
}

// RedisCache stores envelopes in Redis. Every call is bounded by OpTimeout so a
// slow server turns into an error instead of a stalled request.
type RedisCache struct {
	client  redis.Cmdable
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewRedisCache wraps client.
func NewRedisCache(client redis.Cmdable, opts RedisOptions) *RedisCache {
	timeout := opts.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RedisCache{
		client:  client,
		prefix:  opts.KeyPrefix + Namespace,
		timeout: timeout,
		now:     now,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheOps.WithLabelValues("get", "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.CacheOps.WithLabelValues("get", "error").Inc()
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.expired(c.now()) {
		// Unreadable or logically expired: drop it and report a miss.
		_ = c.client.Del(ctx, c.prefix+key).Err()
		metrics.CacheOps.WithLabelValues("get", "miss").Inc()
		return nil, false, nil
	}

	metrics.CacheOps.WithLabelValues("get", "hit").Inc()
	return env.Value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	ttl = effectiveTTL(ttl)

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	data, err := json.Marshal(envelope{
		Value:     payload,
		ExpiresAt: c.now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("cache: encode envelope %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		metrics.CacheOps.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	metrics.CacheOps.WithLabelValues("set", "ok").Inc()
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		metrics.CacheOps.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	metrics.CacheOps.WithLabelValues("delete", "ok").Inc()
	return nil
}

// Flush removes every entry this cache owns, scanning in batches. It is an
// administrative call and ignores the per-operation timeout.
func (c *RedisCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, escapeGlob(c.prefix)+"*", flushBatchSize).Iterator()
	batch := make([]string, 0, flushBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == flushBatchSize {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return c.flushFailed(err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return c.flushFailed(err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return c.flushFailed(err)
		}
	}
	metrics.CacheOps.WithLabelValues("flush", "ok").Inc()
	return nil
}

func (c *RedisCache) flushFailed(err error) error {
	metrics.CacheOps.WithLabelValues("flush", "error").Inc()
	return fmt.Errorf("cache: flush: %w", err)
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
