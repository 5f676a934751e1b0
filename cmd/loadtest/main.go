// Command loadtest drives a running search service with a mix of combined,
// per-collection, suggestion and advanced searches and prints latency and
// status-code statistics per endpoint.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// queries mix exact names, misspellings, fragments and sound-alikes so every
// search stage sees traffic.
var queries = []string{
	"addis ababa",
	"jimma university",
	"bahir dar",
	"gondar",
	"hawasa",
	"mekele",
	"computer science",
	"medicine",
	"public health",
	"textile",
	"busines administration",
	"accounting",
	"engineering",
	"private",
	"distance",
	"univ",
	"phd",
	"agriculture",
}

type scenario struct {
	name   string
	weight int
	build  func(ctx context.Context, base, query string) (*http.Request, error)
}

func get(path string, params url.Values) func(ctx context.Context, base, query string) (*http.Request, error) {
	return func(ctx context.Context, base, query string) (*http.Request, error) {
		v := url.Values{"q": {query}}
		for k, vals := range params {
			v[k] = vals
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+v.Encode(), nil)
	}
}

func advanced(ctx context.Context, base, query string) (*http.Request, error) {
	body, err := json.Marshal(map[string]any{"query": query, "degreeType": "Master", "limit": 10})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/universities/advanced", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func suggest(ctx context.Context, base, query string) (*http.Request, error) {
	prefix := query
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	v := url.Values{"q": {prefix}}
	return http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/suggestions?"+v.Encode(), nil)
}

var scenarios = []scenario{
	{"search", 4, get("/api/v1/search", url.Values{"limit": {"10"}})},
	{"universities", 3, get("/api/v1/universities/search", nil)},
	{"programs", 2, get("/api/v1/programs/search", url.Values{"fuzzy": {"true"}})},
	{"suggestions", 2, suggest},
	{"advanced", 1, advanced},
}

// endpointStats accumulates results for one scenario.
type endpointStats struct {
	requests  atomic.Int64
	errors    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newEndpointStats() *endpointStats {
	return &endpointStats{
		latencies: make([]time.Duration, 0, 10000),
		codes:     make(map[int]int64),
	}
}

func (s *endpointStats) record(d time.Duration, status int, err error) {
	s.requests.Add(1)
	if err != nil || status < 200 || status >= 300 {
		s.errors.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	base := strings.TrimRight(*baseURL, "/")
	fmt.Println("=== Catalog Search Load Test ===")
	fmt.Printf("Target:      %s\n", base)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique\n", len(queries))
	fmt.Println()

	stats := run(base, *concurrency, *duration)
	if !report(stats, *duration) {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(base string, concurrency int, duration time.Duration) map[string]*endpointStats {
	stats := make(map[string]*endpointStats, len(scenarios))
	var plan []scenario
	for _, sc := range scenarios {
		stats[sc.name] = newEndpointStats()
		for i := 0; i < sc.weight; i++ {
			plan = append(plan, sc)
		}
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				sc := plan[i%len(plan)]
				query := queries[(i*7+w)%len(queries)]
				req, err := sc.build(ctx, base, query)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					stats[sc.name].record(elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats[sc.name].record(elapsed, resp.StatusCode, nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "load test aborted: %v\n", err)
		os.Exit(1)
	}
	return stats
}

// report prints per-endpoint results and reports whether anything ran.
func report(stats map[string]*endpointStats, duration time.Duration) bool {
	var total int64
	for _, sc := range scenarios {
		s := stats[sc.name]
		n := s.requests.Load()
		total += n

		fmt.Printf("=== %s ===\n", sc.name)
		fmt.Printf("Requests:     %d (%.1f/s)\n", n, float64(n)/duration.Seconds())
		if n > 0 {
			fmt.Printf("Error Rate:   %.2f%%\n", float64(s.errors.Load())/float64(n)*100)
		}

		s.mu.Lock()
		latencies := append([]time.Duration(nil), s.latencies...)
		codes := make([]int, 0, len(s.codes))
		for code := range s.codes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		counts := make([]int64, len(codes))
		for i, code := range codes {
			counts[i] = s.codes[code]
		}
		s.mu.Unlock()

		if len(latencies) > 0 {
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			fmt.Printf("Latency:      p50=%s p95=%s p99=%s max=%s\n",
				percentile(latencies, 50),
				percentile(latencies, 95),
				percentile(latencies, 99),
				latencies[len(latencies)-1],
			)
		}
		for i, code := range codes {
			fmt.Printf("  %d: %d\n", code, counts[i])
		}
		fmt.Println()
	}
	return total > 0
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
