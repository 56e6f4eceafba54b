package routing

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zeizeiwaii/Datastar/internal/geo"
	"github.com/zeizeiwaii/Datastar/internal/types"
)

// RouteCache stores provider answers by request key.
type RouteCache interface {
	Get(ctx context.Context, key string) (*ProviderRoute, bool, error)
	Set(ctx context.Context, key string, route *ProviderRoute, ttl time.Duration) error
}

// CachedProvider serves repeated requests from a RouteCache. Only answers that
// pass ValidateRoute are stored; cache errors degrade to a provider call.
type CachedProvider struct {
	next  Provider
	cache RouteCache
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedProvider(next Provider, cache RouteCache, ttl time.Duration, log *zap.Logger) *CachedProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedProvider{next: next, cache: cache, ttl: ttl, log: log}
}

func (p *CachedProvider) Name() string { return p.next.Name() }

func (p *CachedProvider) PlanRoute(ctx context.Context, origin, destination types.Point, waypoints []types.Point) (*ProviderRoute, error) {
	key := CacheKey(p.next.Name(), origin, destination, waypoints)
	cached, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.log.Warn("route cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	route, err := p.next.PlanRoute(ctx, origin, destination, waypoints)
	if err != nil {
		return nil, err
	}
	if ValidateRoute(route) == nil {
		if err := p.cache.Set(ctx, key, route, p.ttl); err != nil {
			p.log.Warn("route cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return route, nil
}

// CacheKey hashes the provider name and the request coordinates rounded to
// roughly one metre.
func CacheKey(provider string, origin, destination types.Point, waypoints []types.Point) string {
	var b strings.Builder
	b.WriteString(provider)
	for _, p := range append([]types.Point{origin, destination}, waypoints...) {
		fmt.Fprintf(&b, "|%.5f,%.5f", p.Lat, p.Lng)
	}
	sum := sha1.Sum([]byte(b.String()))
	return "route:" + provider + ":" + hex.EncodeToString(sum[:])
}

// redisKV is the subset of redis.Cmdable used by RedisRouteCache.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisRouteCache keeps provider answers in redis as JSON with encoded
// polylines.
type RedisRouteCache struct {
	rdb redisKV
}

func NewRedisRouteCache(rdb redisKV) *RedisRouteCache {
	return &RedisRouteCache{rdb: rdb}
}

type cachedStep struct {
	Instruction string  `json:"i"`
	DistanceM   float64 `json:"d"`
	DurationS   float64 `json:"t"`
	Polyline    string  `json:"p,omitempty"`
}

type cachedRoute struct {
	DistanceM     float64      `json:"d"`
	DurationS     float64      `json:"t"`
	Polyline      string       `json:"p"`
	TollDistanceM float64      `json:"td"`
	TollCost      float64      `json:"tc"`
	Steps         []cachedStep `json:"s,omitempty"`
}

func (c *RedisRouteCache) Get(ctx context.Context, key string) (*ProviderRoute, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cr cachedRoute
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, false, fmt.Errorf("decode cached route: %w", err)
	}
	line, err := geo.DecodePolyline(cr.Polyline)
	if err != nil {
		return nil, false, err
	}
	route := &ProviderRoute{
		DistanceM:     cr.DistanceM,
		DurationS:     cr.DurationS,
		Polyline:      line,
		TollDistanceM: cr.TollDistanceM,
		TollCost:      cr.TollCost,
	}
	for _, s := range cr.Steps {
		sl, err := geo.DecodePolyline(s.Polyline)
		if err != nil {
			return nil, false, err
		}
		route.Steps = append(route.Steps, Step{Instruction: s.Instruction, DistanceM: s.DistanceM, DurationS: s.DurationS, Polyline: sl})
	}
	return route, true, nil
}

func (c *RedisRouteCache) Set(ctx context.Context, key string, route *ProviderRoute, ttl time.Duration) error {
	cr := cachedRoute{
		DistanceM:     route.DistanceM,
		DurationS:     route.DurationS,
		Polyline:      geo.EncodePolyline(route.Polyline),
		TollDistanceM: route.TollDistanceM,
		TollCost:      route.TollCost,
	}
	for _, s := range route.Steps {
		cr.Steps = append(cr.Steps, cachedStep{
			Instruction: s.Instruction,
			DistanceM:   s.DistanceM,
			DurationS:   s.DurationS,
			Polyline:    geo.EncodePolyline(s.Polyline),
		})
	}
	data, err := json.Marshal(cr)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}
