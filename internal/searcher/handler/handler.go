// Package handler serves the search HTTP API: combined, per-collection,
// suggestion and advanced searches plus index and cache administration.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/analytics"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/index"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/cache"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/service"
	apperrors "github.com/nathnaelteshome/common-app-web-sub001/pkg/errors"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/logger"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/middleware"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/tracing"
)

const maxBodyBytes = 1 << 20

// Config bounds the result counts callers may ask for.
type Config struct {
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	searcher     *service.Searcher
	cache        *cache.QueryCache
	tracker      analytics.Tracker
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds a Handler. queryCache and tracker may be nil.
func New(searcher *service.Searcher, queryCache *cache.QueryCache, tracker analytics.Tracker, cfg Config) *Handler {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = index.DefaultMaxResults
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxResults {
		cfg.DefaultLimit = min(service.DefaultCombinedLimit, cfg.MaxResults)
	}
	return &Handler{
		searcher:     searcher,
		cache:        queryCache,
		tracker:      tracker,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// SearchResponse wraps one collection's ranked results.
type SearchResponse[T any] struct {
	Query    string            `json:"query"`
	Results  []index.Result[T] `json:"results"`
	Returned int               `json:"returned"`
	CacheHit bool              `json:"cache_hit"`
}

// SearchAll handles GET /api/v1/search.
func (h *Handler) SearchAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, end := trace(r, "http.search_all")
	defer end()

	query, err := requiredQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := h.parseLimit(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	key := cache.Key{Scope: service.ScopeAll, Query: query, Params: map[string]string{"limit": strconv.Itoa(limit)}}
	result, cacheHit, err := cache.GetOrCompute(ctx, h.cache, key, func() (*service.CombinedResults, error) {
		return h.searcher.SearchAll(ctx, query, limit)
	})
	if err != nil {
		logger.FromContext(ctx).Error("combined search failed", "query", query, "error", err)
		h.writeError(w, err)
		return
	}

	matchTypes := countMatchTypes(result.Universities)
	for mt, n := range countMatchTypes(result.Programs) {
		matchTypes[mt] += n
	}
	h.track(ctx, start, analytics.SearchEvent{
		Type:       analytics.EventSearch,
		Scope:      service.ScopeAll,
		Query:      query,
		Returned:   result.Total,
		MatchTypes: matchTypes,
		CacheHit:   cacheHit,
	})
	h.writeJSON(w, http.StatusOK, result)
}

// SearchUniversities handles GET /api/v1/universities/search.
func (h *Handler) SearchUniversities(w http.ResponseWriter, r *http.Request) {
	searchCollection(h, w, r, h.searcher.Universities())
}

// SearchPrograms handles GET /api/v1/programs/search.
func (h *Handler) SearchPrograms(w http.ResponseWriter, r *http.Request) {
	searchCollection(h, w, r, h.searcher.Programs())
}

func searchCollection[T index.Searchable](h *Handler, w http.ResponseWriter, r *http.Request, c *service.Collection[T]) {
	start := time.Now()
	ctx, end := trace(r, "http.search_"+c.Scope())
	defer end()

	query, err := requiredQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	opts, params, err := h.parseOptions(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	key := cache.Key{Scope: c.Scope(), Query: query, Params: params}
	results, cacheHit, err := cache.GetOrCompute(ctx, h.cache, key, func() ([]index.Result[T], error) {
		return c.Search(ctx, query, opts...)
	})
	if err != nil {
		logger.FromContext(ctx).Error("search failed", "scope", c.Scope(), "query", query, "error", err)
		h.writeError(w, err)
		return
	}
	if results == nil {
		results = []index.Result[T]{}
	}

	logger.FromContext(ctx).Info("search completed",
		"scope", c.Scope(),
		"query", query,
		"returned", len(results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.track(ctx, start, analytics.SearchEvent{
		Type:       analytics.EventSearch,
		Scope:      c.Scope(),
		Query:      query,
		Returned:   len(results),
		MatchTypes: countMatchTypes(results),
		CacheHit:   cacheHit,
	})
	h.writeJSON(w, http.StatusOK, SearchResponse[T]{
		Query:    query,
		Results:  results,
		Returned: len(results),
		CacheHit: cacheHit,
	})
}

// Suggestions handles GET /api/v1/suggestions?q=&scope=.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	partial := r.URL.Query().Get("q")
	scope := r.URL.Query().Get("scope")

	var names []string
	var err error
	switch scope {
	case "", service.ScopeUniversities:
		scope = service.ScopeUniversities
		names, err = h.searcher.Universities().Suggestions(ctx, partial)
	case service.ScopePrograms:
		names, err = h.searcher.Programs().Suggestions(ctx, partial)
	default:
		h.writeError(w, apperrors.InvalidQuery("unknown scope %q", scope))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.track(ctx, start, analytics.SearchEvent{
		Type:     analytics.EventSuggestion,
		Scope:    scope,
		Query:    partial,
		Returned: len(names),
	})
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":       partial,
		"scope":       scope,
		"suggestions": names,
	})
}

// Advanced handles POST /api/v1/universities/advanced with an
// AdvancedFilters body.
func (h *Handler) Advanced(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, end := trace(r, "http.advanced")
	defer end()

	var filters service.AdvancedFilters
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&filters); err != nil {
		h.writeError(w, apperrors.InvalidQuery("decoding filters: %v", err))
		return
	}
	if filters.Limit < 0 {
		h.writeError(w, apperrors.InvalidQuery("limit must not be negative"))
		return
	}
	if filters.Limit == 0 || filters.Limit > h.maxResults {
		filters.Limit = min(max(filters.Limit, h.defaultLimit), h.maxResults)
	}

	result, err := h.searcher.AdvancedSearch(ctx, filters)
	if err != nil {
		logger.FromContext(ctx).Error("advanced search failed", "error", err)
		h.writeError(w, err)
		return
	}

	h.track(ctx, start, analytics.SearchEvent{
		Type:     analytics.EventAdvanced,
		Scope:    service.ScopeAdvanced,
		Query:    filters.Query,
		Returned: len(result.Universities),
	})
	h.writeJSON(w, http.StatusOK, result)
}

// Refresh handles POST /api/v1/index/refresh?scope=. It rebuilds the
// selected indexes now and drops cached responses.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope := r.URL.Query().Get("scope")

	type rebuilder interface {
		Rebuild(ctx context.Context) error
		Stats() indexer.Stats
	}
	var targets []rebuilder
	switch scope {
	case "", service.ScopeAll:
		scope = service.ScopeAll
		targets = []rebuilder{h.searcher.Universities().Engine(), h.searcher.Programs().Engine()}
	case service.ScopeUniversities:
		targets = []rebuilder{h.searcher.Universities().Engine()}
	case service.ScopePrograms:
		targets = []rebuilder{h.searcher.Programs().Engine()}
	default:
		h.writeError(w, apperrors.InvalidQuery("unknown scope %q", scope))
		return
	}

	stats := make([]indexer.Stats, 0, len(targets))
	for _, t := range targets {
		if err := t.Rebuild(ctx); err != nil {
			logger.FromContext(ctx).Error("index refresh failed", "scope", scope, "error", err)
			h.writeError(w, apperrors.New(apperrors.ErrCatalogUnavailable, http.StatusServiceUnavailable, err.Error()))
			return
		}
		stats = append(stats, t.Stats())
	}
	if _, err := h.cache.Invalidate(ctx, ""); err != nil {
		h.logger.Warn("cache invalidation after refresh failed", "error", err)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "refreshed",
		"indexes": stats,
	})
}

// IndexStats handles GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, []indexer.Stats{
		h.searcher.Universities().Engine().Stats(),
		h.searcher.Programs().Engine().Stats(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats(r.Context()))
}

// CacheInvalidate handles POST /api/v1/cache/invalidate?scope=.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}

	deleted, err := h.cache.Invalidate(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func requiredQuery(r *http.Request) (string, error) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		return "", apperrors.InvalidQuery("query parameter 'q' is required")
	}
	return query, nil
}

func (h *Handler) parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return h.defaultLimit, nil
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed < 1 {
		return 0, apperrors.InvalidQuery("limit must be a positive integer")
	}
	return min(parsed, h.maxResults), nil
}

// parseOptions turns the tuning query parameters into search options and
// the matching cache key params.
func (h *Handler) parseOptions(r *http.Request) ([]index.Option, map[string]string, error) {
	q := r.URL.Query()
	limit, err := h.parseLimit(r)
	if err != nil {
		return nil, nil, err
	}
	opts := []index.Option{index.WithMaxResults(limit)}
	params := map[string]string{"limit": strconv.Itoa(limit)}

	if v := q.Get("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil || score < 0 {
			return nil, nil, apperrors.InvalidQuery("min_score must be a non-negative number")
		}
		opts = append(opts, index.WithMinScore(score))
		params["min_score"] = strconv.FormatFloat(score, 'f', -1, 64)
	}
	if v := q.Get("threshold"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 0 {
			return nil, nil, apperrors.InvalidQuery("threshold must be a non-negative integer")
		}
		opts = append(opts, index.WithFuzzyThreshold(d))
		params["threshold"] = strconv.Itoa(d)
	}
	if v := q.Get("fuzzy"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, nil, apperrors.InvalidQuery("fuzzy must be a boolean")
		}
		opts = append(opts, index.WithFuzzy(enabled))
		params["fuzzy"] = strconv.FormatBool(enabled)
	}
	if v := q.Get("phonetic"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, nil, apperrors.InvalidQuery("phonetic must be a boolean")
		}
		opts = append(opts, index.WithPhonetic(enabled))
		params["phonetic"] = strconv.FormatBool(enabled)
	}
	return opts, params, nil
}

// trace opens the request's root span; the returned func ends and logs it.
func trace(r *http.Request, name string) (context.Context, func()) {
	ctx, span := tracing.Start(r.Context(), name)
	return ctx, func() {
		span.End()
		span.Log(logger.FromContext(ctx))
	}
}

func countMatchTypes[T any](results []index.Result[T]) map[string]int {
	counts := make(map[string]int)
	for _, r := range results {
		counts[r.MatchType.String()]++
	}
	return counts
}

func (h *Handler) track(ctx context.Context, start time.Time, event analytics.SearchEvent) {
	if h.tracker == nil {
		return
	}
	event.LatencyMs = time.Since(start).Milliseconds()
	event.Timestamp = time.Now().UTC()
	event.RequestID = middleware.GetRequestID(ctx)
	h.tracker.Track(event)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its HTTP status. Client errors carry their
// message; server errors are reported generically.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := "search failed"
	var appErr *apperrors.AppError
	switch {
	case status < http.StatusInternalServerError && errors.As(err, &appErr):
		message = appErr.Message
	case errors.Is(err, apperrors.ErrCatalogUnavailable):
		message = apperrors.ErrCatalogUnavailable.Error()
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
