package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zeizeiwaii/Datastar/internal/types"
)

const (
	latestRunKey  = "dispatch:run:latest"
	dispatchedKey = "dispatch:dispatched"
)

// runKV is the subset of redis.Cmdable used by RunCache.
type runKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMIsMember(ctx context.Context, key string, members ...interface{}) *redis.BoolSliceCmd
}

// RunCache keeps the latest envelope and the set of already dispatched
// request ids.
type RunCache struct {
	rdb runKV
	ttl time.Duration
}

func NewRunCache(rdb runKV, ttl time.Duration) *RunCache {
	return &RunCache{rdb: rdb, ttl: ttl}
}

func (c *RunCache) SaveLatest(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.rdb.Set(ctx, latestRunKey, data, c.ttl).Err()
}

// Latest returns the most recent envelope; ok is false when none is cached.
func (c *RunCache) Latest(ctx context.Context) (env *Envelope, ok bool, err error) {
	data, err := c.rdb.Get(ctx, latestRunKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	env = &Envelope{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, false, fmt.Errorf("decode envelope: %w", err)
	}
	return env, true, nil
}

func (c *RunCache) MarkDispatched(ctx context.Context, ids []types.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return c.rdb.SAdd(ctx, dispatchedKey, toMembers(ids)...).Err()
}

// FilterUndispatched drops ids already present in the dispatched set,
// preserving order.
func (c *RunCache) FilterUndispatched(ctx context.Context, ids []types.ID) ([]types.ID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen, err := c.rdb.SMIsMember(ctx, dispatchedKey, toMembers(ids)...).Result()
	if err != nil {
		return nil, err
	}
	if len(seen) != len(ids) {
		return nil, fmt.Errorf("smismember returned %d results for %d ids", len(seen), len(ids))
	}
	out := make([]types.ID, 0, len(ids))
	for i, id := range ids {
		if !seen[i] {
			out = append(out, id)
		}
	}
	return out, nil
}

func toMembers(ids []types.ID) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
