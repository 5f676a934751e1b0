package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nathnaelteshome/common-app-web-sub001/pkg/kafka"
)

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	start := agg.startTime
	agg.now = func() time.Time { return start.Add(2 * time.Minute) }

	events := []SearchEvent{
		{Scope: "universities", Query: "Addis  Ababa", Returned: 3, LatencyMs: 10, MatchTypes: map[string]int{"exact": 3}},
		{Scope: "universities", Query: "addis ababa", Returned: 3, LatencyMs: 20, CacheHit: true},
		{Scope: "programs", Query: "medicine", Returned: 1, LatencyMs: 30, MatchTypes: map[string]int{"exact": 1}},
		{Scope: "programs", Query: "xyzzy", Returned: 0, LatencyMs: 40},
	}
	for _, e := range events {
		agg.Record(e)
	}

	s := agg.Stats()
	if s.TotalSearches != 4 || s.CacheHits != 1 || s.CacheMisses != 3 {
		t.Errorf("counts = %+v", s)
	}
	if s.ZeroResultCount != 1 || len(s.ZeroResultQueries) != 1 || s.ZeroResultQueries[0].Query != "xyzzy" {
		t.Errorf("zero results = %d %+v", s.ZeroResultCount, s.ZeroResultQueries)
	}
	if s.TopQueries[0] != (QueryCount{Query: "addis ababa", Count: 2}) {
		t.Errorf("top query = %+v, want addis ababa x2", s.TopQueries[0])
	}
	if s.ByScope["universities"] != 2 || s.ByScope["programs"] != 2 {
		t.Errorf("ByScope = %v", s.ByScope)
	}
	if s.MatchTypes["exact"] != 4 {
		t.Errorf("MatchTypes = %v", s.MatchTypes)
	}
	if s.AvgLatencyMs != 25 || s.P50LatencyMs != 30 || s.P99LatencyMs != 40 {
		t.Errorf("latency avg=%v p50=%d p99=%d", s.AvgLatencyMs, s.P50LatencyMs, s.P99LatencyMs)
	}
	if s.QueriesPerMinute != 2 {
		t.Errorf("QueriesPerMinute = %v, want 2", s.QueriesPerMinute)
	}
}

func TestAggregatorLatencyWindow(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+10; i++ {
		agg.Record(SearchEvent{Query: "q", Returned: 1, LatencyMs: int64(i)})
	}
	if len(agg.latencies) != latencyWindow {
		t.Fatalf("latencies = %d, want %d", len(agg.latencies), latencyWindow)
	}
	// The ten oldest samples (0..9) were overwritten.
	if s := agg.Stats(); s.P50LatencyMs != 5010 {
		t.Errorf("p50 = %d, want 5010", s.P50LatencyMs)
	}
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	h := HandleEvent(agg)

	value, _ := json.Marshal(SearchEvent{Type: EventSearch, Scope: "programs", Query: "law", Returned: 2})
	if err := h(context.Background(), []byte("programs"), value); err != nil {
		t.Fatal(err)
	}
	if err := h(context.Background(), nil, []byte("not json")); err != nil {
		t.Errorf("bad payloads should be skipped, got %v", err)
	}
	if s := agg.Stats(); s.TotalSearches != 1 || s.ByScope["programs"] != 1 {
		t.Errorf("stats = %+v", s)
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *recordingPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorBatchesAndFlushesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorConfig{BufferSize: 100, BatchSize: 2, FlushInterval: time.Hour})
	c.Start(context.Background())

	for i := 0; i < 5; i++ {
		c.Track(SearchEvent{Scope: "universities", Query: "q"})
	}
	c.Close()

	if got := pub.total(); got != 5 {
		t.Errorf("published %d events, want 5", got)
	}
	for _, b := range pub.batches {
		if len(b) > 2 {
			t.Errorf("batch of %d exceeds batch size", len(b))
		}
		if b[0].Key != "universities" {
			t.Errorf("event key = %q, want scope", b[0].Key)
		}
	}
}

func TestCollectorTrackAfterCloseIsDropped(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorConfig{BufferSize: 10, BatchSize: 10, FlushInterval: time.Hour})
	c.Start(context.Background())
	c.Close()

	c.Track(SearchEvent{Scope: "programs", Query: "late"})
	c.Close()
	if got := pub.total(); got != 0 {
		t.Errorf("published %d events, want 0", got)
	}
}

func TestCollectorFlushesEventsTrackedAfterCancel(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, CollectorConfig{BufferSize: 10, BatchSize: 10, FlushInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	c.Track(SearchEvent{Scope: "universities", Query: "before"})
	cancel()
	c.Track(SearchEvent{Scope: "universities", Query: "in flight"})
	c.Close()

	if got := pub.total(); got != 2 {
		t.Errorf("published %d events, want 2", got)
	}
}

func TestCollectorConcurrentTrackAndClose(t *testing.T) {
	c := NewCollector(&recordingPublisher{}, CollectorConfig{BufferSize: 1000, BatchSize: 50, FlushInterval: time.Hour})
	c.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Track(SearchEvent{Scope: "universities", Query: "jimma"})
			}
		}()
	}
	c.Close()
	wg.Wait()
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Track(SearchEvent{Scope: "universities", Query: "jimma", Returned: 1, CacheHit: true, MatchTypes: map[string]int{"exact": 3, "fuzzy": 1}})
	agg.Track(SearchEvent{Scope: "universities", Query: "addis", Returned: 2})
	agg.Track(SearchEvent{Scope: "programs", Query: "xyzzy", Returned: 0})
	agg.Track(SearchEvent{Scope: "programs", Query: "jimma", Returned: 1})

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.TotalSearches != 4 {
		t.Errorf("TotalSearches = %d", report.TotalSearches)
	}
	if report.CacheHitRate != 0.25 || report.ZeroResultRate != 0.25 {
		t.Errorf("cache hit rate = %v, zero result rate = %v", report.CacheHitRate, report.ZeroResultRate)
	}
	if report.MatchTypeShare["exact"] != 0.75 || report.MatchTypeShare["fuzzy"] != 0.25 {
		t.Errorf("match type share = %v", report.MatchTypeShare)
	}
	if len(report.TopQueries) != 1 || report.TopQueries[0].Query != "jimma" {
		t.Errorf("top queries = %v, want only jimma", report.TopQueries)
	}
}

func TestStatsHandlerRejectsBadTop(t *testing.T) {
	h := NewHandler(NewAggregator())
	for _, target := range []string{"/api/v1/analytics?top=0", "/api/v1/analytics?top=11", "/api/v1/analytics?top=x"} {
		rec := httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestNewReportEmptyStats(t *testing.T) {
	r := NewReport(NewAggregator().Stats(), 0)
	if r.CacheHitRate != 0 || r.ZeroResultRate != 0 || len(r.MatchTypeShare) != 0 {
		t.Errorf("empty report = %+v", r)
	}
}
