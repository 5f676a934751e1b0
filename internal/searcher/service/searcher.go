package service

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/catalog"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/index"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/metrics"
)

const (
	DefaultCombinedLimit   = 20
	DefaultUniversityShare = 0.6
)

// CombinedResults is the answer to SearchAll.
type CombinedResults struct {
	Universities []index.Result[catalog.University] `json:"universities"`
	Programs     []index.Result[catalog.Program]    `json:"programs"`
	Total        int                                `json:"total"`
}

// AdvancedFilters narrow universities structurally before or instead of a
// free-text match. Empty fields do not filter.
type AdvancedFilters struct {
	Query       string `json:"query"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	ProgramType string `json:"programType"`
	DegreeType  string `json:"degreeType"`
	Limit       int    `json:"limit"`
	// Universities, when non-empty, is searched instead of the catalog.
	Universities []catalog.University `json:"universities,omitempty"`
}

// AdvancedResult lists matching universities, best first when a query was
// given and in catalog order otherwise. Total counts matches before Limit.
type AdvancedResult struct {
	Universities []catalog.University `json:"universities"`
	Total        int                  `json:"total"`
}

// SearcherConfig tunes the combined search.
type SearcherConfig struct {
	CombinedLimit   int
	UniversityShare float64
	Metrics         *metrics.Metrics
}

// Searcher composes the university and program services.
type Searcher struct {
	universities    *Universities
	programs        *Programs
	combinedLimit   int
	universityShare float64
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

func NewSearcher(universities *Universities, programs *Programs, cfg SearcherConfig) *Searcher {
	if cfg.CombinedLimit <= 0 {
		cfg.CombinedLimit = DefaultCombinedLimit
	}
	if cfg.UniversityShare <= 0 || cfg.UniversityShare > 1 {
		cfg.UniversityShare = DefaultUniversityShare
	}
	return &Searcher{
		universities:    universities,
		programs:        programs,
		combinedLimit:   cfg.CombinedLimit,
		universityShare: cfg.UniversityShare,
		metrics:         cfg.Metrics,
		logger:          slog.Default().With("component", "searcher"),
	}
}

func (s *Searcher) Universities() *Universities { return s.universities }
func (s *Searcher) Programs() *Programs         { return s.programs }

// Split divides limit between universities (rounded up) and programs.
func (s *Searcher) Split(limit int) (universities, programs int) {
	if limit <= 0 {
		limit = s.combinedLimit
	}
	universities = int(math.Ceil(float64(limit)*s.universityShare - 1e-9))
	return universities, limit - universities
}

// SearchAll queries both collections concurrently, sharing limit between
// them via Split.
func (s *Searcher) SearchAll(ctx context.Context, query string, limit int) (*CombinedResults, error) {
	uniLimit, progLimit := s.Split(limit)
	out := &CombinedResults{
		Universities: []index.Result[catalog.University]{},
		Programs:     []index.Result[catalog.Program]{},
	}

	g, gctx := errgroup.WithContext(ctx)
	if uniLimit > 0 {
		g.Go(func() error {
			res, err := s.universities.Search(gctx, query, index.WithMaxResults(uniLimit))
			if err != nil {
				return err
			}
			out.Universities = res
			return nil
		})
	}
	if progLimit > 0 {
		g.Go(func() error {
			res, err := s.programs.Search(gctx, query, index.WithMaxResults(progLimit))
			if err != nil {
				return err
			}
			out.Programs = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.Total = len(out.Universities) + len(out.Programs)
	return out, nil
}

// AdvancedSearch applies the structural filters and, when Query is set, a
// free-text pass with the university defaults. A caller-supplied subset is
// filtered and searched on a throw-away index; otherwise the cached index is
// searched and its results intersected with the filters.
func (s *Searcher) AdvancedSearch(ctx context.Context, f AdvancedFilters) (*AdvancedResult, error) {
	start := time.Now()
	limit := f.Limit
	if limit <= 0 {
		limit = index.DefaultMaxResults
	}
	query := strings.TrimSpace(f.Query)

	var matched []catalog.University
	if len(f.Universities) > 0 {
		filtered := filterUniversities(f.Universities, f)
		if query == "" {
			matched = filtered
		} else {
			idx := index.New[catalog.University]()
			idx.Build(filtered)
			opts := s.universities.Defaults().Apply(index.WithMaxResults(max(len(filtered), 1)))
			matched = items(idx.Search(query, opts))
		}
	} else {
		idx, err := s.universities.Engine().Index(ctx)
		if err != nil {
			s.metrics.ObserveSearch(ScopeAdvanced, time.Since(start), 0, err)
			return nil, err
		}
		if query == "" {
			matched = filterUniversities(idx.Items(), f)
		} else {
			opts := s.universities.Defaults().Apply(index.WithMaxResults(max(idx.Len(), 1)))
			matched = filterUniversities(items(idx.Search(query, opts)), f)
		}
	}

	res := &AdvancedResult{Universities: matched, Total: len(matched)}
	if len(res.Universities) > limit {
		res.Universities = res.Universities[:limit]
	}
	if res.Universities == nil {
		res.Universities = []catalog.University{}
	}
	s.metrics.ObserveSearch(ScopeAdvanced, time.Since(start), len(res.Universities), nil)
	s.logger.Debug("advanced search completed",
		"query", query,
		"subset", len(f.Universities),
		"total", res.Total,
	)
	return res, nil
}

func items[T any](results []index.Result[T]) []T {
	out := make([]T, len(results))
	for i, r := range results {
		out[i] = r.Item
	}
	return out
}

func filterUniversities(in []catalog.University, f AdvancedFilters) []catalog.University {
	out := make([]catalog.University, 0, len(in))
	for _, u := range in {
		if matchesFilters(u, f) {
			out = append(out, u)
		}
	}
	return out
}

func matchesFilters(u catalog.University, f AdvancedFilters) bool {
	if f.Category != "" && !strings.EqualFold(u.Type, f.Category) {
		return false
	}
	if loc := strings.ToLower(strings.TrimSpace(f.Location)); loc != "" {
		if !strings.Contains(strings.ToLower(u.Location), loc) &&
			!strings.Contains(strings.ToLower(u.Region), loc) {
			return false
		}
	}
	if f.ProgramType != "" && !containsFold(u.ProgramTypes, f.ProgramType) {
		return false
	}
	if f.DegreeType != "" && !containsFold(u.DegreeTypes, f.DegreeType) {
		return false
	}
	return true
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
