package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umanagarjuna/go-content-cache/internal/content/cache"
	"github.com/umanagarjuna/go-content-cache/internal/content/domain"
	"github.com/umanagarjuna/go-content-cache/internal/content/metrics"
)

type article struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Tags      []string          `json:"tags"`
	Weight    int               `json:"weight"`
	Published time.Time         `json:"published"`
	Meta      map[string]string `json:"meta,omitempty"`
}

func newTestCache(t *testing.T, opts ...cache.Option) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewRedisCache(client, opts...), mr
}

func countingProducer[T any](calls *int32, value T) func(context.Context) (T, error) {
	return func(context.Context) (T, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestRememberHitAvoidsRecompute(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var calls int32
	producer := countingProducer(&calls, "hello")

	first, err := cache.Remember(ctx, c, "greeting", time.Hour, producer)
	require.NoError(t, err)

	second, err := cache.Remember(ctx, c, "greeting", time.Hour, producer)
	require.NoError(t, err)

	assert.Equal(t, "hello", first)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRememberExpiryTriggersRecompute(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var calls int32
	producer := func(context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	first, err := cache.Remember(ctx, c, "counter", 2*time.Second, producer)
	require.NoError(t, err)
	require.Equal(t, 1, first)

	mr.FastForward(3 * time.Second)

	second, err := cache.Remember(ctx, c, "counter", 2*time.Second, producer)
	require.NoError(t, err)
	assert.Equal(t, 2, second)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRememberZeroTTLNeverExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var calls int32
	producer := countingProducer(&calls, "forever")

	_, err := cache.Remember(ctx, c, "pinned", 0, producer)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mr.TTL("pinned"))

	mr.FastForward(24 * 365 * time.Hour)

	got, err := cache.Remember(ctx, c, "pinned", 0, producer)
	require.NoError(t, err)
	assert.Equal(t, "forever", got)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRememberStoresWholeSeconds(t *testing.T) {
	c, mr := newTestCache(t)

	_, err := cache.Remember(context.Background(), c, "rounded", 90*time.Second+500*time.Millisecond,
		func(context.Context) (string, error) { return "v", nil })
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, mr.TTL("rounded"))
}

func TestRememberRejectsInvalidArguments(t *testing.T) {
	c, _ := newTestCache(t)

	tests := []struct {
		name  string
		key   string
		ttl   time.Duration
		field string
	}{
		{"EmptyKey", "", time.Hour, "key"},
		{"NegativeTTL", "k", -time.Second, "ttl"},
		{"SubSecondTTL", "k", 500 * time.Millisecond, "ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			_, err := cache.Remember(context.Background(), c, tt.key, tt.ttl, countingProducer(&calls, 1))

			var appErr *domain.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, domain.KindValidation, appErr.Kind)
			assert.Equal(t, tt.field, appErr.Label)
			assert.Zero(t, atomic.LoadInt32(&calls))
		})
	}
}

func TestRememberRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	want := article{
		ID:        "abc-123",
		Title:     "Caching at the edge",
		Tags:      []string{"redis", "go"},
		Weight:    7,
		Published: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		Meta:      map[string]string{"author": "ops"},
	}

	var calls int32
	_, err := cache.Remember(ctx, c, "/jsonapi/node/article/abc-123", time.Hour, countingProducer(&calls, want))
	require.NoError(t, err)

	got, err := cache.Remember(ctx, c, "/jsonapi/node/article/abc-123", time.Hour, countingProducer(&calls, article{}))
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRememberSurfacesCorruptEntry(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("broken", "{not json"))

	var calls int32
	_, err := cache.Remember(context.Background(), c, "broken", time.Hour, countingProducer(&calls, article{}))

	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.KindDecode, appErr.Kind)
	assert.Equal(t, "redis", appErr.Label)
	assert.Zero(t, atomic.LoadInt32(&calls))

	raw, getErr := mr.Get("broken")
	require.NoError(t, getErr)
	assert.Equal(t, "{not json", raw)
}

func TestRememberPropagatesProducerError(t *testing.T) {
	c, mr := newTestCache(t)
	sentinel := errors.New("upstream exploded")

	var calls int32
	_, err := cache.Remember(context.Background(), c, "failing", time.Hour,
		func(context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "", sentinel
		})

	assert.True(t, err == sentinel, "producer error must be returned unchanged, got %v", err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.False(t, mr.Exists("failing"))
}

func TestRememberEncodeFailureReturnsValue(t *testing.T) {
	c, mr := newTestCache(t)
	ch := make(chan int)

	got, err := cache.Remember(context.Background(), c, "unencodable", time.Hour,
		func(context.Context) (map[string]any, error) {
			return map[string]any{"ch": ch}, nil
		})

	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.KindEncode, appErr.Kind)
	require.NotNil(t, got)
	assert.Equal(t, ch, got["ch"])
	assert.False(t, mr.Exists("unencodable"))
}

func TestRememberStoreOutageIsExternal(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	var calls int32
	_, err := cache.Remember(context.Background(), c, "k", time.Hour, countingProducer(&calls, 1))

	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.KindExternal, appErr.Kind)
	assert.Equal(t, "redis", appErr.Label)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClearAllRemovesEveryKey(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ttls := map[string]time.Duration{
		"a": 0,
		"b": time.Minute,
		"c": 7 * 24 * time.Hour,
	}
	for key, ttl := range ttls {
		_, err := cache.Remember(ctx, c, key, ttl, func(context.Context) (string, error) { return key, nil })
		require.NoError(t, err)
	}
	require.Len(t, mr.Keys(), 3)

	require.NoError(t, c.ClearAll(ctx))

	for key := range ttls {
		assert.False(t, mr.Exists(key), "key %q survived the flush", key)
	}
}

func TestRememberCoalescesConcurrentMisses(t *testing.T) {
	m := metrics.NewInMemoryMetrics()
	c, _ := newTestCache(t, cache.WithMetrics(m))

	var calls int32
	release := make(chan struct{})
	producer := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const callers = 16
	results := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Remember(context.Background(), c, "hot", time.Hour, producer)
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, int64(callers), m.Counter(metrics.CacheCoalesced))
}

func TestRememberCancelledCallerLeavesCompleteEntry(t *testing.T) {
	c, mr := newTestCache(t)

	started := make(chan struct{})
	release := make(chan struct{})
	producer := func(context.Context) (string, error) {
		close(started)
		<-release
		return "late", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.Remember(ctx, c, "slow", time.Hour, producer)
		done <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, mr.Exists("slow"))

	close(release)
	require.Eventually(t, func() bool {
		v, err := mr.Get("slow")
		return err == nil && v == `"late"`
	}, time.Second, 10*time.Millisecond)
}

func TestRememberWithoutCoalescing(t *testing.T) {
	c, _ := newTestCache(t, cache.WithCoalescing(false))

	var calls int32
	for i := 0; i < 3; i++ {
		got, err := cache.Remember(context.Background(), c, "plain", time.Minute, countingProducer(&calls, 42))
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRememberRecordsHitsAndMisses(t *testing.T) {
	m := metrics.NewInMemoryMetrics()
	c, _ := newTestCache(t, cache.WithMetrics(m))
	ctx := context.Background()

	var calls int32
	for i := 0; i < 3; i++ {
		_, err := cache.Remember(ctx, c, "tracked", time.Minute, countingProducer(&calls, true))
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), m.Counter(metrics.CacheMisses))
	assert.Equal(t, int64(2), m.Counter(metrics.CacheHits))
	assert.Len(t, m.Durations(metrics.CacheRemember), 3)
}

func TestPing(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.True(t, domain.IsKind(c.Ping(context.Background()), domain.KindExternal))
}

func TestRememberProducerPanicBecomesUnexpected(t *testing.T) {
	m := metrics.NewInMemoryMetrics()
	c, mr := newTestCache(t, cache.WithMetrics(m))

	_, err := cache.Remember(context.Background(), c, "explosive", time.Minute,
		func(context.Context) (string, error) {
			panic("boom")
		})

	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.KindUnexpected, appErr.Kind)
	assert.Contains(t, appErr.Message, "boom")
	assert.False(t, mr.Exists("explosive"))
	assert.Equal(t, int64(1), m.Counter("cache_errors_total{kind=unexpected}"))
}

func rememberTitle(c *cache.RedisCache, key string, release <-chan struct{}) (string, error) {
	type payload struct {
		Title string `json:"title"`
	}
	v, err := cache.Remember(context.Background(), c, key, time.Minute,
		func(context.Context) (payload, error) {
			<-release
			return payload{Title: "About"}, nil
		})
	return v.Title, err
}

func rememberWeight(c *cache.RedisCache, key string, release <-chan struct{}) (int, error) {
	type payload struct {
		Weight int `json:"weight"`
	}
	v, err := cache.Remember(context.Background(), c, key, time.Minute,
		func(context.Context) (payload, error) {
			<-release
			return payload{Weight: 7}, nil
		})
	return v.Weight, err
}

func TestRememberSameNamedTypesDoNotShareFlight(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})

	var (
		wg     sync.WaitGroup
		title  string
		weight int
		errs   [2]error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		title, errs[0] = rememberTitle(c, "shared-key", release)
	}()
	go func() {
		defer wg.Done()
		weight, errs[1] = rememberWeight(c, "shared-key", release)
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "About", title)
	assert.Equal(t, 7, weight)
}
