// Package service exposes the university and program search operations on
// top of their index engines, with domain-specific boosts, suggestions, and
// the combined and advanced searches.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/catalog"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/index"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/metrics"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/tracing"
)

// Scope names used in logs, metrics, and analytics events.
const (
	ScopeUniversities = "universities"
	ScopePrograms     = "programs"
	ScopeAll          = "all"
	ScopeAdvanced     = "advanced"
)

const (
	DefaultSuggestionLimit    = 5
	DefaultSuggestionMinScore = 0.5
	minSuggestionRunes        = 2
)

// UniversityOptions weights a university's name highest, then its type,
// location and description.
func UniversityOptions() index.Options {
	return index.DefaultOptions().Apply(index.WithBoosts(index.Boosts{
		Name: 3.0, Type: 2.0, Location: 1.5, Description: 1.0,
	}))
}

// ProgramOptions favours a program's description over its degree type and
// location.
func ProgramOptions() index.Options {
	return index.DefaultOptions().Apply(index.WithBoosts(index.Boosts{
		Name: 3.0, Type: 1.5, Location: 1.0, Description: 2.0,
	}))
}

// suggestionOptions match almost entirely on names.
func suggestionOptions(limit int, minScore float64) index.Options {
	return index.DefaultOptions().Apply(
		index.WithMaxResults(limit),
		index.WithMinScore(minScore),
		index.WithBoosts(index.Boosts{Name: 5.0, Type: 0.5, Location: 0.5, Description: 0.1}),
	)
}

// Config carries the tunables shared by the collection services.
type Config struct {
	SuggestionLimit    int
	SuggestionMinScore float64
	Metrics            *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.SuggestionLimit <= 0 {
		c.SuggestionLimit = DefaultSuggestionLimit
	}
	if c.SuggestionMinScore <= 0 {
		c.SuggestionMinScore = DefaultSuggestionMinScore
	}
	return c
}

// Collection serves searches over one engine with a defaults profile.
type Collection[T index.Searchable] struct {
	scope    string
	engine   *indexer.Engine[T]
	defaults index.Options
	suggest  index.Options
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Universities searches the university catalog.
type Universities = Collection[catalog.University]

// Programs searches the program catalog.
type Programs = Collection[catalog.Program]

func NewUniversities(engine *indexer.Engine[catalog.University], cfg Config) *Universities {
	return newCollection(ScopeUniversities, engine, UniversityOptions(), cfg)
}

func NewPrograms(engine *indexer.Engine[catalog.Program], cfg Config) *Programs {
	return newCollection(ScopePrograms, engine, ProgramOptions(), cfg)
}

func newCollection[T index.Searchable](scope string, engine *indexer.Engine[T], defaults index.Options, cfg Config) *Collection[T] {
	cfg = cfg.withDefaults()
	return &Collection[T]{
		scope:    scope,
		engine:   engine,
		defaults: defaults,
		suggest:  suggestionOptions(cfg.SuggestionLimit, cfg.SuggestionMinScore),
		metrics:  cfg.Metrics,
		logger:   slog.Default().With("component", "search-service", "scope", scope),
	}
}

// Scope returns the collection's scope name.
func (c *Collection[T]) Scope() string { return c.scope }

// Engine exposes the underlying engine for refresh and invalidation.
func (c *Collection[T]) Engine() *indexer.Engine[T] { return c.engine }

// Defaults returns the options every Search starts from.
func (c *Collection[T]) Defaults() index.Options { return c.defaults }

// Search runs query with the collection defaults overridden by opts. The
// only error is an unavailable catalog on first use.
func (c *Collection[T]) Search(ctx context.Context, query string, opts ...index.Option) ([]index.Result[T], error) {
	start := time.Now()
	_, span := tracing.Start(ctx, c.scope+".index")
	idx, err := c.engine.Index(ctx)
	span.End()
	if err != nil {
		c.metrics.ObserveSearch(c.scope, time.Since(start), 0, err)
		return nil, err
	}
	_, span = tracing.Start(ctx, c.scope+".search")
	results := idx.Search(query, c.defaults.Apply(opts...))
	span.SetAttr("returned", len(results))
	span.End()
	c.observe(start, results)
	c.logger.Debug("search completed",
		"query", query,
		"returned", len(results),
		"duration", time.Since(start),
	)
	return results, nil
}

// Suggestions returns up to the configured number of distinct names whose
// records strongly match partial. Inputs shorter than two characters yield
// nothing.
func (c *Collection[T]) Suggestions(ctx context.Context, partial string) ([]string, error) {
	if utf8.RuneCountInString(strings.TrimSpace(partial)) < minSuggestionRunes {
		return []string{}, nil
	}
	idx, err := c.engine.Index(ctx)
	if err != nil {
		return nil, err
	}
	results := idx.Search(partial, c.suggest)
	names := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		name := r.Item.SearchDocument().Name
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

func (c *Collection[T]) observe(start time.Time, results []index.Result[T]) {
	c.metrics.ObserveSearch(c.scope, time.Since(start), len(results), nil)
	for _, r := range results {
		c.metrics.ObserveMatch(c.scope, r.MatchType.String())
	}
}
