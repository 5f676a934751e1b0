// Package cache stores serialized search responses in Redis keyed by scope,
// normalized query, and the options that shaped the response.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/tokenizer"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/metrics"
	pkgredis "github.com/nathnaelteshome/common-app-web-sub001/pkg/redis"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	CountByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cacheable response. Params holds any options that
// change the response, such as the limit or thresholds.
type Key struct {
	Scope  string
	Query  string
	Params map[string]string
}

// String renders the Redis key. Queries that normalize to the same text
// share an entry; params are ordered so map iteration does not matter.
func (k Key) String() string {
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(tokenizer.NormalizeText(k.Query))
	for _, name := range names {
		fmt.Fprintf(&b, "|%s=%s", name, k.Params[name])
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%s:%x", keyPrefix, k.Scope, hash[:16])
}

// Stats reports cache effectiveness since start-up.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Keys    int64   `json:"keys"`
}

// QueryCache is a read-through response cache. A nil *QueryCache is valid
// and always computes.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return false
	}
	c.hits.Add(1)
	c.metrics.ObserveCache(true)
	c.logger.Debug("cache hit", "key", key)
	return true
}

func (c *QueryCache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.ObserveCache(false)
}

// GetOrCompute returns the cached value for key or computes, stores, and
// returns it. Concurrent misses on the same key share one computation. The
// boolean reports a cache hit.
func GetOrCompute[V any](ctx context.Context, c *QueryCache, key Key, compute func() (V, error)) (V, bool, error) {
	if c == nil {
		v, err := compute()
		return v, false, err
	}
	k := key.String()
	var cached V
	if c.get(ctx, k, &cached) {
		return cached, true, nil
	}
	val, err, _ := c.group.Do(k, func() (any, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, k, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return val.(V), false, nil
}

// Invalidate drops every cached response, or only those of scope when it
// is non-empty.
func (c *QueryCache) Invalidate(ctx context.Context, scope string) (int64, error) {
	if c == nil {
		return 0, nil
	}
	pattern := keyPrefix + "*"
	if scope != "" {
		pattern = keyPrefix + scope + ":*"
	}
	deleted, err := c.store.FlushByPattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "scope", scope, "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats(ctx context.Context) Stats {
	if c == nil {
		return Stats{}
	}
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	keys, err := c.store.CountByPattern(ctx, keyPrefix+"*")
	if err != nil {
		c.logger.Warn("counting cache keys failed", "error", err)
	}
	s.Keys = keys
	return s
}
