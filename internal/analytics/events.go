// Package analytics records what users search for. Search handlers Track
// events; a Collector ships them to Kafka in batches and an Aggregator,
// either fed from Kafka or directly in-process, maintains the statistics
// served on the analytics endpoint.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventSuggestion EventType = "suggestion"
	EventAdvanced   EventType = "advanced"
)

// SearchEvent describes one answered search request.
type SearchEvent struct {
	Type       EventType      `json:"type"`
	Scope      string         `json:"scope"`
	Query      string         `json:"query"`
	Returned   int            `json:"returned"`
	MatchTypes map[string]int `json:"match_types,omitempty"`
	LatencyMs  int64          `json:"latency_ms"`
	CacheHit   bool           `json:"cache_hit"`
	Timestamp  time.Time      `json:"timestamp"`
	RequestID  string         `json:"request_id,omitempty"`
}

// Tracker accepts search events without blocking the request path.
type Tracker interface {
	Track(event SearchEvent)
}
