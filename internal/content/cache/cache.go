package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/umanagarjuna/go-content-cache/internal/content/metrics"
)

// Admin covers the keyspace-wide operations of the cache.
type Admin interface {
	// ClearAll removes every key in the active namespace.
	ClearAll(ctx context.Context) error
	Ping(ctx context.Context) error
}

type Option func(*RedisCache)

func WithLogger(logger *zap.Logger) Option {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(c *RedisCache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCoalescing toggles sharing one producer call between concurrent
// misses on the same key. Enabled by default.
func WithCoalescing(enabled bool) Option {
	return func(c *RedisCache) {
		c.coalesce = enabled
	}
}

// WithTimeout bounds every individual store command. Zero leaves only the
// caller's context in charge.
func WithTimeout(d time.Duration) Option {
	return func(c *RedisCache) {
		if d >= 0 {
			c.timeout = d
		}
	}
}
