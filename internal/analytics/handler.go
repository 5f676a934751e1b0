package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Report is the analytics endpoint payload: the aggregated counters plus
// the search-quality ratios derived from them.
type Report struct {
	AggregatedStats
	CacheHitRate   float64            `json:"cache_hit_rate"`
	ZeroResultRate float64            `json:"zero_result_rate"`
	MatchTypeShare map[string]float64 `json:"match_type_share"`
}

// NewReport derives the ratios from stats and trims the query lists to
// top entries. A top outside 1..10 keeps the full lists.
func NewReport(stats AggregatedStats, top int) Report {
	r := Report{AggregatedStats: stats, MatchTypeShare: make(map[string]float64, len(stats.MatchTypes))}
	if lookups := stats.CacheHits + stats.CacheMisses; lookups > 0 {
		r.CacheHitRate = float64(stats.CacheHits) / float64(lookups)
	}
	if stats.TotalSearches > 0 {
		r.ZeroResultRate = float64(stats.ZeroResultCount) / float64(stats.TotalSearches)
	}
	var matched int64
	for _, n := range stats.MatchTypes {
		matched += n
	}
	for mt, n := range stats.MatchTypes {
		r.MatchTypeShare[mt] = float64(n) / float64(matched)
	}
	if top > 0 && top <= topQueries {
		if len(r.TopQueries) > top {
			r.TopQueries = r.TopQueries[:top]
		}
		if len(r.ZeroResultQueries) > top {
			r.ZeroResultQueries = r.ZeroResultQueries[:top]
		}
	}
	return r
}

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats handles GET /api/v1/analytics?top=N.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := 0
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > topQueries {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be an integer between 1 and 10"})
			return
		}
		top = n
	}
	h.writeJSON(w, http.StatusOK, NewReport(h.aggregator.Stats(), top))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
