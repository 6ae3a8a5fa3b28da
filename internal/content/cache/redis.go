package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/umanagarjuna/go-content-cache/internal/content/domain"
	"github.com/umanagarjuna/go-content-cache/internal/content/metrics"
)

const storeName = "redis"

// RedisCache is a read-through cache over a redis keyspace. Values are
// stored as JSON text.
type RedisCache struct {
	client   redis.Cmdable
	logger   *zap.Logger
	metrics  metrics.Metrics
	timeout  time.Duration
	coalesce bool
	group    singleflight.Group
}

var _ Admin = (*RedisCache)(nil)

func NewRedisCache(client redis.Cmdable, opts ...Option) *RedisCache {
	c := &RedisCache{
		client:   client,
		logger:   zap.NewNop(),
		metrics:  metrics.Nop{},
		coalesce: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type outcome[T any] struct {
	value T
	err   error
}

// Remember returns the value stored under key, or runs producer, stores its
// result with the given ttl and returns it.
//
// A zero ttl stores without expiry; a positive ttl is truncated to whole
// seconds. A positive ttl under one second would truncate to "no expiry",
// so it is rejected with a Validation error before producer runs. Errors
// from producer are returned unchanged. When the result cannot be encoded
// or written, the computed value is returned together with the error.
//
// A producer panic on the coalesced path is returned as an Unexpected
// error to every waiting caller.
func Remember[T any](ctx context.Context, c *RedisCache, key string,
	ttl time.Duration, producer func(context.Context) (T, error)) (T, error) {

	var zero T

	if key == "" {
		return zero, domain.Validation("key", "cache key cannot be empty")
	}
	expiry, err := storeExpiry(ttl)
	if err != nil {
		return zero, err
	}

	start := time.Now()
	defer func() {
		c.metrics.RecordDuration(metrics.CacheRemember, time.Since(start))
	}()

	value, found, err := lookup[T](ctx, c, key)
	if err != nil {
		c.countError(err)
		return zero, err
	}
	if found {
		c.metrics.IncrementCounter(metrics.CacheHits)
		c.logger.Debug("Cache hit", zap.String("key", key))
		return value, nil
	}

	c.metrics.IncrementCounter(metrics.CacheMisses)
	c.logger.Debug("Cache miss", zap.String("key", key))

	if !c.coalesce {
		value, err = fill(ctx, c, key, expiry, producer)
		if err != nil {
			c.countError(err)
		}
		return value, err
	}

	ch := c.group.DoChan(flightKey[T](key), func() (res any, _ error) {
		defer func() {
			if r := recover(); r != nil {
				err := domain.Unexpected(fmt.Errorf("producer panicked: %v", r))
				c.countError(err)
				c.logger.Error("Producer panicked",
					zap.String("key", key), zap.Any("panic", r))
				res = outcome[T]{err: err}
			}
		}()

		// shared work outlives any single caller's cancellation
		v, err := fill(context.WithoutCancel(ctx), c, key, expiry, producer)
		if err != nil {
			c.countError(err)
		}
		return outcome[T]{value: v, err: err}, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.IncrementCounter(metrics.CacheCoalesced)
		}
		out := res.Val.(outcome[T])
		return out.value, out.err
	}
}

func lookup[T any](ctx context.Context, c *RedisCache, key string) (T, bool, error) {
	var value T

	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return value, false, nil
		}
		return value, false, domain.External(storeName, err)
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, domain.Decode(storeName, err)
	}

	return value, true, nil
}

func fill[T any](ctx context.Context, c *RedisCache, key string,
	expiry time.Duration, producer func(context.Context) (T, error)) (T, error) {

	value, err := producer(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return value, domain.Encode(storeName, err)
	}

	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	if err := c.client.Set(ctx, key, raw, expiry).Err(); err != nil {
		return value, domain.External(storeName, err)
	}

	return value, nil
}

// ClearAll flushes the selected redis database.
func (c *RedisCache) ClearAll(ctx context.Context) error {
	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return domain.External(storeName, err)
	}

	c.metrics.IncrementCounter(metrics.CachePurges)
	c.logger.Info("Cache cleared")
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := c.storeContext(ctx)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return domain.External(storeName, err)
	}
	return nil
}

func (c *RedisCache) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

func (c *RedisCache) countError(err error) {
	c.metrics.IncrementCounterWithLabels(metrics.CacheErrors,
		map[string]string{"kind": domain.KindOf(err).String()})
}

// storeExpiry maps a ttl onto the redis expiration argument.
func storeExpiry(ttl time.Duration) (time.Duration, error) {
	switch {
	case ttl < 0:
		return 0, domain.Validation("ttl", "must not be negative")
	case ttl == 0:
		return 0, nil
	case ttl < time.Second:
		return 0, domain.Validation("ttl", "positive ttl must be at least one second")
	}
	return ttl.Truncate(time.Second), nil
}

// flightKey keeps concurrent Remember calls for different result types
// on the same key apart. Type names are not unique across packages, so
// the key uses the type descriptor's address.
func flightKey[T any](key string) string {
	return fmt.Sprintf("%p\x00%s", reflect.TypeFor[T](), key)
}
