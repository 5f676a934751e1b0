package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/analytics"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/catalog"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/cache"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/service"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/resilience"
)

var universities = []catalog.University{
	{ID: "aau", Name: "Addis Ababa University", Type: "public", Location: "Addis Ababa", Region: "Addis Ababa", Rating: 4.5},
	{ID: "ju", Name: "Jimma University", Type: "public", Location: "Jimma", Region: "Oromia", Rating: 4.2},
	{ID: "unity", Name: "Unity University", Type: "private", Location: "Addis Ababa", Region: "Addis Ababa"},
}

var programs = []catalog.Program{
	{ID: "ju-med", UniversityID: "ju", UniversityName: "Jimma University", Name: "Medicine", DegreeType: "Bachelor", Location: "Jimma"},
	{ID: "aau-law", UniversityID: "aau", UniversityName: "Addis Ababa University", Name: "Law", DegreeType: "Bachelor", Location: "Addis Ababa"},
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.SearchEvent
}

func (t *recordingTracker) Track(e analytics.SearchEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			n++
		}
	}
	return n, nil
}

func newTestHandler(t *testing.T, queryCache *cache.QueryCache) (*Handler, *recordingTracker, *catalog.Memory) {
	t.Helper()
	src := catalog.NewMemory(universities, programs)
	cfg := indexer.EngineConfig{Retry: resilience.RetryConfig{MaxAttempts: 1}}
	u := service.NewUniversities(indexer.NewEngine[catalog.University](service.ScopeUniversities, src.LoadUniversities, cfg), service.Config{})
	p := service.NewPrograms(indexer.NewEngine[catalog.Program](service.ScopePrograms, src.LoadPrograms, cfg), service.Config{})
	tracker := &recordingTracker{}
	h := New(service.NewSearcher(u, p, service.SearcherConfig{}), queryCache, tracker, Config{DefaultLimit: 10, MaxResults: 20})
	return h, tracker, src
}

func serve(handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestSearchUniversities(t *testing.T) {
	h, tracker, _ := newTestHandler(t, nil)

	rec := serve(h.SearchUniversities, http.MethodGet, "/api/v1/universities/search?q=jimma", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp SearchResponse[catalog.University]
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Returned != 1 || resp.Results[0].Item.ID != "ju" {
		t.Errorf("results = %+v", resp.Results)
	}
	if len(tracker.events) != 1 || tracker.events[0].Scope != service.ScopeUniversities {
		t.Fatalf("events = %+v", tracker.events)
	}
	if tracker.events[0].MatchTypes["exact"] != 1 {
		t.Errorf("match types = %v", tracker.events[0].MatchTypes)
	}
}

func TestSearchBadParameters(t *testing.T) {
	h, tracker, _ := newTestHandler(t, nil)

	targets := []string{
		"/api/v1/universities/search",
		"/api/v1/universities/search?q=%20%20",
		"/api/v1/universities/search?q=aau&limit=0",
		"/api/v1/universities/search?q=aau&limit=ten",
		"/api/v1/universities/search?q=aau&min_score=-1",
		"/api/v1/universities/search?q=aau&threshold=x",
		"/api/v1/universities/search?q=aau&fuzzy=maybe",
		"/api/v1/universities/search?q=aau&phonetic=2",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			rec := serve(h.SearchUniversities, http.MethodGet, target, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if len(tracker.events) != 0 {
		t.Errorf("rejected requests should not be tracked, got %d", len(tracker.events))
	}
}

func TestSearchLimitCappedAtMaxResults(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	rec := serve(h.SearchPrograms, http.MethodGet, "/api/v1/programs/search?q=bachelor&limit=500", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp SearchResponse[catalog.Program]
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Returned != 2 {
		t.Errorf("returned = %d, want both bachelor programs", resp.Returned)
	}
}

func TestSearchAll(t *testing.T) {
	h, tracker, _ := newTestHandler(t, nil)
	rec := serve(h.SearchAll, http.MethodGet, "/api/v1/search?q=jimma&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp service.CombinedResults
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Universities) != 1 || len(resp.Programs) != 1 || resp.Total != 2 {
		t.Errorf("combined = %d universities, %d programs, total %d", len(resp.Universities), len(resp.Programs), resp.Total)
	}
	if tracker.events[0].Scope != service.ScopeAll || tracker.events[0].Returned != 2 {
		t.Errorf("event = %+v", tracker.events[0])
	}
}

func TestSuggestions(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	rec := serve(h.Suggestions, http.MethodGet, "/api/v1/suggestions?q=jim", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Scope       string   `json:"scope"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Scope != service.ScopeUniversities || len(resp.Suggestions) != 1 || resp.Suggestions[0] != "Jimma University" {
		t.Errorf("resp = %+v", resp)
	}

	if rec := serve(h.Suggestions, http.MethodGet, "/api/v1/suggestions?q=jim&scope=faculty", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown scope status = %d, want 400", rec.Code)
	}
}

func TestAdvanced(t *testing.T) {
	h, tracker, _ := newTestHandler(t, nil)

	rec := serve(h.Advanced, http.MethodPost, "/api/v1/universities/advanced", `{"category":"public","location":"addis"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp service.AdvancedResult
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Universities[0].ID != "aau" {
		t.Errorf("resp = %+v", resp)
	}
	if tracker.events[0].Type != analytics.EventAdvanced {
		t.Errorf("event type = %q", tracker.events[0].Type)
	}

	for _, body := range []string{`{"category":`, `{"colour":"red"}`, `{"limit":-1}`} {
		if rec := serve(h.Advanced, http.MethodPost, "/api/v1/universities/advanced", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestCatalogUnavailable(t *testing.T) {
	cfg := indexer.EngineConfig{Retry: resilience.RetryConfig{MaxAttempts: 1}}
	failing := func(ctx context.Context) ([]catalog.University, error) { return nil, context.DeadlineExceeded }
	u := service.NewUniversities(indexer.NewEngine[catalog.University](service.ScopeUniversities, failing, cfg), service.Config{})
	p := service.NewPrograms(indexer.NewEngine[catalog.Program](service.ScopePrograms, catalog.NewMemory(nil, nil).LoadPrograms, cfg), service.Config{})
	h := New(service.NewSearcher(u, p, service.SearcherConfig{}), nil, nil, Config{})

	rec := serve(h.SearchUniversities, http.MethodGet, "/api/v1/universities/search?q=aau", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "catalog unavailable") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestCachedSearchAndRefresh(t *testing.T) {
	store := &memStore{data: make(map[string][]byte)}
	h, tracker, src := newTestHandler(t, cache.New(store, time.Minute, nil))

	target := "/api/v1/universities/search?q=unity"
	if rec := serve(h.SearchUniversities, http.MethodGet, target, ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec := serve(h.SearchUniversities, http.MethodGet, target, "")
	var resp SearchResponse[catalog.University]
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.CacheHit || resp.Results[0].Item.ID != "unity" {
		t.Errorf("second search: cache_hit=%v results=%+v", resp.CacheHit, resp.Results)
	}
	if !tracker.events[1].CacheHit {
		t.Error("second event should record the cache hit")
	}

	src.Replace(append(universities[:2:2], catalog.University{ID: "unity2", Name: "Unity University College"}), programs)
	if rec := serve(h.Refresh, http.MethodPost, "/api/v1/index/refresh", ""); rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body)
	}
	if n, _ := store.CountByPattern(context.Background(), "search:*"); n != 0 {
		t.Errorf("refresh left %d cached entries", n)
	}

	rec = serve(h.SearchUniversities, http.MethodGet, target, "")
	resp = SearchResponse[catalog.University]{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.CacheHit || resp.Results[0].Item.ID != "unity2" {
		t.Errorf("after refresh: cache_hit=%v results=%+v", resp.CacheHit, resp.Results)
	}

	if rec := serve(h.Refresh, http.MethodPost, "/api/v1/index/refresh?scope=faculty", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown scope status = %d, want 400", rec.Code)
	}
}

func TestCacheEndpointsDisabled(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	if rec := serve(h.CacheInvalidate, http.MethodPost, "/api/v1/cache/invalidate", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d, want 503", rec.Code)
	}
	rec := serve(h.CacheStats, http.MethodGet, "/api/v1/cache/stats", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("stats = %d %s", rec.Code, rec.Body)
	}
}

func TestIndexStats(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	serve(h.SearchUniversities, http.MethodGet, "/api/v1/universities/search?q=aau", "")

	rec := serve(h.IndexStats, http.MethodGet, "/api/v1/index/stats", "")
	var stats []indexer.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 || stats[0].Items != 3 {
		t.Errorf("stats = %+v", stats)
	}
}
