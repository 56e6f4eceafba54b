package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string]*ProviderRoute
	ttls map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]*ProviderRoute{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (*ProviderRoute, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[key]
	return r, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, r *ProviderRoute, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = r
	m.ttls[key] = ttl
	return nil
}

func TestCachedProvider_ServesRepeats(t *testing.T) {
	p := &scriptedProvider{}
	cache := newMemoryCache()
	cp := NewCachedProvider(p, cache, 10*time.Minute, nil)

	first, err := cp.PlanRoute(context.Background(), pA, pD, []types.Point{pB})
	require.NoError(t, err)
	second, err := cp.PlanRoute(context.Background(), pA, pD, []types.Point{pB})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, p.recorded(), 1)
	assert.Equal(t, "scripted", cp.Name())
	for _, ttl := range cache.ttls {
		assert.Equal(t, 10*time.Minute, ttl)
	}
}

func TestCachedProvider_SkipsFailuresAndBadGeometry(t *testing.T) {
	p := &scriptedProvider{respond: func(_ context.Context, n int, _ call) (*ProviderRoute, error) {
		if n == 0 {
			return nil, NewProviderError(KindRateLimited, "10004", "slow down")
		}
		return &ProviderRoute{DistanceM: 1, DurationS: 1, Polyline: []types.Point{pA}}, nil
	}}
	cache := newMemoryCache()
	cp := NewCachedProvider(p, cache, time.Minute, nil)

	_, err := cp.PlanRoute(context.Background(), pA, pB, nil)
	assert.Error(t, err)
	_, err = cp.PlanRoute(context.Background(), pA, pB, nil)
	assert.NoError(t, err)
	assert.Empty(t, cache.data)
}

func TestCacheKey(t *testing.T) {
	k1 := CacheKey("amap", pA, pB, nil)
	k2 := CacheKey("amap", types.Point{Lat: pA.Lat + 1e-7, Lng: pA.Lng}, pB, nil)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, CacheKey("osrm", pA, pB, nil))
	assert.NotEqual(t, k1, CacheKey("amap", pA, pB, []types.Point{pC}))
	assert.Contains(t, k1, "route:amap:")
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func TestRedisRouteCache_RoundTrip(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{}}
	cache := NewRedisRouteCache(rdb)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	route := straightRoute(call{origin: pA, destination: pD, waypoints: []types.Point{pB, pC}})
	route.TollDistanceM = 1200
	require.NoError(t, cache.Set(ctx, "k", route, time.Minute))

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, route.DistanceM, got.DistanceM)
	assert.Equal(t, 1200.0, got.TollDistanceM)
	require.Len(t, got.Polyline, 4)
	for i, p := range route.Polyline {
		assert.InDelta(t, p.Lat, got.Polyline[i].Lat, 1e-5)
		assert.InDelta(t, p.Lng, got.Polyline[i].Lng, 1e-5)
	}
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "follow", got.Steps[0].Instruction)
}

func TestRedisRouteCache_Errors(t *testing.T) {
	rdb := &fakeRedis{data: map[string]string{"bad": "{not json"}}
	cache := NewRedisRouteCache(rdb)

	_, _, err := cache.Get(context.Background(), "bad")
	assert.Error(t, err)

	rdb.err = errors.New("connection refused")
	_, _, err = cache.Get(context.Background(), "bad")
	assert.Error(t, err)
}
