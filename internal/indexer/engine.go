// Package indexer keeps searchable indexes fresh. An Engine owns one index
// over a catalog collection and rebuilds it from its Loader when the refresh
// Policy says the snapshot is stale or when it has been invalidated.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/index"
	apperrors "github.com/nathnaelteshome/common-app-web-sub001/pkg/errors"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/metrics"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/resilience"
)

// DefaultTTL is how long a built index is served before the next access
// rebuilds it.
const DefaultTTL = 5 * time.Minute

// DefaultLoadTimeout bounds one shared catalog load, retries included.
const DefaultLoadTimeout = 30 * time.Second

// Loader fetches the full collection an index is built from.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Policy decides whether an index built at builtAt must be rebuilt at now.
type Policy interface {
	Stale(builtAt, now time.Time) bool
}

// TTL rebuilds once more than the given duration has passed since the last
// successful build.
type TTL time.Duration

func (t TTL) Stale(builtAt, now time.Time) bool {
	return now.Sub(builtAt) > time.Duration(t)
}

// EngineConfig tunes an Engine. Zero values fall back to a TTL of
// DefaultTTL, DefaultLoadTimeout and the resilience package defaults.
type EngineConfig struct {
	Policy      Policy
	LoadTimeout time.Duration
	Retry       resilience.RetryConfig
	Breaker     resilience.CircuitBreakerConfig
	Metrics     *metrics.Metrics
}

// Engine serves an index.Index[T] and rebuilds it lazily. Concurrent
// rebuilds are coalesced; a failed reload keeps serving the previous
// snapshot.
type Engine[T index.Searchable] struct {
	name        string
	load        Loader[T]
	policy      Policy
	loadTimeout time.Duration
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	idx   *index.Index[T]
	group singleflight.Group

	mu         sync.RWMutex
	builtAt    time.Time
	generation uint64
	builtGen   uint64
}

// NewEngine creates an Engine named after the collection it indexes. No
// load happens until the first Index or Rebuild call.
func NewEngine[T index.Searchable](name string, load Loader[T], cfg EngineConfig) *Engine[T] {
	if cfg.Policy == nil {
		cfg.Policy = TTL(DefaultTTL)
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	return &Engine[T]{
		name:        name,
		load:        load,
		policy:      cfg.Policy,
		loadTimeout: cfg.LoadTimeout,
		retry:       cfg.Retry,
		breaker:     resilience.NewCircuitBreaker("catalog-"+name, cfg.Breaker),
		metrics:     cfg.Metrics,
		logger:      slog.Default().With("component", "index-engine", "index", name),
		now:         time.Now,
		idx:         index.New[T](),
	}
}

// Name returns the collection name the engine was created with.
func (e *Engine[T]) Name() string { return e.name }

// Index returns a fresh index, rebuilding first if the snapshot is stale or
// invalidated. If the rebuild fails and an older snapshot exists, that
// snapshot is returned; if no snapshot was ever built the error wraps
// ErrCatalogUnavailable, or ctx's error when the caller gave up first.
func (e *Engine[T]) Index(ctx context.Context) (*index.Index[T], error) {
	e.mu.RLock()
	built := !e.builtAt.IsZero()
	stale := !built || e.generation != e.builtGen || e.policy.Stale(e.builtAt, e.now())
	e.mu.RUnlock()
	if !stale {
		return e.idx, nil
	}

	if err := e.refresh(ctx); err != nil {
		if built {
			e.logger.Warn("index refresh failed, serving previous snapshot",
				"built_at", e.BuiltAt(),
				"error", err,
			)
			return e.idx, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s index: %w", e.name, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s index: %v", apperrors.ErrCatalogUnavailable, e.name, err)
	}
	return e.idx, nil
}

// Rebuild forces a reload regardless of the policy.
func (e *Engine[T]) Rebuild(ctx context.Context) error {
	return e.refresh(ctx)
}

// Invalidate marks the current snapshot stale; the next Index call rebuilds.
func (e *Engine[T]) Invalidate() {
	e.mu.Lock()
	e.generation++
	e.mu.Unlock()
	e.logger.Debug("index invalidated")
}

// BuiltAt returns the time of the last successful build, or the zero time.
func (e *Engine[T]) BuiltAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.builtAt
}

// Ready reports whether at least one build has succeeded.
func (e *Engine[T]) Ready() bool {
	return !e.BuiltAt().IsZero()
}

// Stats describes the current snapshot.
type Stats struct {
	Name    string    `json:"name"`
	Items   int       `json:"items"`
	Terms   int       `json:"terms"`
	BuiltAt time.Time `json:"built_at"`
	Breaker string    `json:"breaker"`
}

func (e *Engine[T]) Stats() Stats {
	return Stats{
		Name:    e.name,
		Items:   e.idx.Len(),
		Terms:   e.idx.Terms(),
		BuiltAt: e.BuiltAt(),
		Breaker: e.breaker.GetState().String(),
	}
}

// refresh joins or starts the shared rebuild. The load runs detached from
// the caller's cancellation under its own timeout; a cancelled caller stops
// waiting and the rebuild carries on for the others.
func (e *Engine[T]) refresh(ctx context.Context) error {
	ch := e.group.DoChan("rebuild", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.loadTimeout)
		defer cancel()
		return nil, e.rebuild(loadCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			e.logger.Debug("joined in-flight rebuild")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine[T]) rebuild(ctx context.Context) error {
	e.mu.RLock()
	gen := e.generation
	e.mu.RUnlock()

	start := time.Now()
	var items []T
	err := e.breaker.Execute(func() error {
		return resilience.Retry(ctx, "load "+e.name, e.retry, func() error {
			var loadErr error
			items, loadErr = e.load(ctx)
			return loadErr
		})
	})
	e.metrics.SetBreakerState(e.breaker.Name(), int(e.breaker.GetState()))
	if err != nil {
		e.metrics.ObserveRebuild(e.name, 0, 0, err)
		return fmt.Errorf("loading %s: %w", e.name, err)
	}

	e.idx.Build(items)

	e.mu.Lock()
	e.builtAt = e.now()
	e.builtGen = gen
	e.mu.Unlock()

	e.metrics.ObserveRebuild(e.name, e.idx.Len(), e.idx.Terms(), nil)
	e.logger.Info("index rebuilt",
		"items", e.idx.Len(),
		"terms", e.idx.Terms(),
		"duration", time.Since(start),
	)
	return nil
}
