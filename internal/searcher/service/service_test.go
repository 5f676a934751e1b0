package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/catalog"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/index"
	apperrors "github.com/nathnaelteshome/common-app-web-sub001/pkg/errors"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/resilience"
)

var testUniversities = []catalog.University{
	{
		ID: "aau", Name: "Addis Ababa University", Type: "public", Location: "Addis Ababa", Region: "Addis Ababa",
		Description: "The oldest and largest university in Ethiopia",
		ProgramTypes: []string{"Regular", "Extension"}, DegreeTypes: []string{"Bachelor", "Master", "PhD"},
		Rating: 4.5, Popularity: 1000,
	},
	{
		ID: "ju", Name: "Jimma University", Type: "public", Location: "Jimma", Region: "Oromia",
		Description: "Community-oriented education",
		ProgramTypes: []string{"Regular"}, DegreeTypes: []string{"Bachelor", "Master", "PhD"},
		Rating: 4.2, Popularity: 600,
	},
	{
		ID: "unity", Name: "Unity University", Type: "private", Location: "Addis Ababa", Region: "Addis Ababa",
		Description: "Private university focused on business",
		ProgramTypes: []string{"Regular", "Distance"}, DegreeTypes: []string{"Bachelor", "Master"},
		Rating: 3.9, Popularity: 200,
	},
	{
		ID: "hu", Name: "Hawassa University", Type: "public", Location: "Hawassa", Region: "Sidama",
		Description: "Agriculture and health sciences",
		ProgramTypes: []string{"Regular"}, DegreeTypes: []string{"Bachelor", "Master"},
		Rating: 4.0, Popularity: 400,
	},
}

var testPrograms = []catalog.Program{
	{ID: "aau-cs", UniversityID: "aau", UniversityName: "Addis Ababa University", Name: "Computer Science", DegreeType: "Bachelor", Category: "Engineering", Location: "Addis Ababa"},
	{ID: "ju-med", UniversityID: "ju", UniversityName: "Jimma University", Name: "Medicine", DegreeType: "Bachelor", Category: "Health", Location: "Jimma"},
	{ID: "unity-ba", UniversityID: "unity", UniversityName: "Unity University", Name: "Business Administration", DegreeType: "Master", Category: "Business", Location: "Addis Ababa"},
}

func newSearcher(t *testing.T, unis []catalog.University, progs []catalog.Program) *Searcher {
	t.Helper()
	src := catalog.NewMemory(unis, progs)
	cfg := indexer.EngineConfig{Retry: resilience.RetryConfig{MaxAttempts: 1}}
	u := NewUniversities(indexer.NewEngine[catalog.University](ScopeUniversities, src.LoadUniversities, cfg), Config{})
	p := NewPrograms(indexer.NewEngine[catalog.Program](ScopePrograms, src.LoadPrograms, cfg), Config{})
	return NewSearcher(u, p, SearcherConfig{})
}

func TestUniversitySearchUsesDomainBoosts(t *testing.T) {
	s := newSearcher(t, testUniversities, testPrograms)
	results, err := s.Universities().Search(context.Background(), "jimma")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Item.ID != "ju" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].MatchType != index.MatchExact {
		t.Errorf("MatchType = %v, want exact", results[0].MatchType)
	}

	if b := UniversityOptions().Boosts; b != (index.Boosts{Name: 3, Type: 2, Location: 1.5, Description: 1}) {
		t.Errorf("university boosts = %+v", b)
	}
	if b := ProgramOptions().Boosts; b != (index.Boosts{Name: 3, Type: 1.5, Location: 1, Description: 2}) {
		t.Errorf("program boosts = %+v", b)
	}
}

func TestSearchOptionOverrides(t *testing.T) {
	s := newSearcher(t, testUniversities, testPrograms)
	results, err := s.Universities().Search(context.Background(), "university", index.WithMaxResults(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("len = %d, want 2", len(results))
	}
}

func TestProgramSearchMatchesUniversityKeyword(t *testing.T) {
	s := newSearcher(t, testUniversities, testPrograms)
	results, err := s.Programs().Search(context.Background(), "medicine")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Item.ID != "ju-med" {
		t.Errorf("results = %+v", results)
	}
}

func TestSuggestionsShortInput(t *testing.T) {
	s := newSearcher(t, testUniversities, testPrograms)
	for _, q := range []string{"", "a", "  j  ", "ሀ"} {
		got, err := s.Universities().Suggestions(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("Suggestions(%q) = %v, want empty", q, got)
		}
	}
}

func TestSuggestionsCapped(t *testing.T) {
	unis := make([]catalog.University, 50)
	for i := range unis {
		unis[i] = catalog.University{ID: fmt.Sprint(i), Name: fmt.Sprintf("Addis Campus %02d", i), Type: "public"}
	}
	s := newSearcher(t, unis, nil)

	got, err := s.Universities().Suggestions(context.Background(), "addis")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	if got[0] != "Addis Campus 00" {
		t.Errorf("first suggestion = %q, want catalog order on ties", got[0])
	}
}

func TestSuggestionsDeduplicateNames(t *testing.T) {
	progs := []catalog.Program{
		{ID: "1", Name: "Computer Science", DegreeType: "Bachelor"},
		{ID: "2", Name: "Computer Science", DegreeType: "Master"},
		{ID: "3", Name: "Computer Engineering", DegreeType: "Bachelor"},
	}
	s := newSearcher(t, nil, progs)
	got, err := s.Programs().Suggestions(context.Background(), "computer")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "Computer Science" || got[1] != "Computer Engineering" {
		t.Errorf("Suggestions = %v", got)
	}
}

func TestSplit(t *testing.T) {
	s := newSearcher(t, nil, nil)
	tests := []struct{ limit, unis, progs int }{
		{0, 12, 8},
		{20, 12, 8},
		{10, 6, 4},
		{7, 5, 2},
		{1, 1, 0},
	}
	for _, tt := range tests {
		u, p := s.Split(tt.limit)
		if u != tt.unis || p != tt.progs {
			t.Errorf("Split(%d) = %d/%d, want %d/%d", tt.limit, u, p, tt.unis, tt.progs)
		}
	}
}

func TestSearchAll(t *testing.T) {
	unis := make([]catalog.University, 10)
	for i := range unis {
		unis[i] = catalog.University{ID: fmt.Sprint("u", i), Name: fmt.Sprint("Addis University ", i), Location: "Addis Ababa"}
	}
	progs := make([]catalog.Program, 10)
	for i := range progs {
		progs[i] = catalog.Program{ID: fmt.Sprint("p", i), Name: fmt.Sprint("Addis Program ", i), Location: "Addis Ababa"}
	}
	s := newSearcher(t, unis, progs)

	res, err := s.SearchAll(context.Background(), "addis", 10)
	if err != nil {
		t.Fatalf("SearchAll() error = %v", err)
	}
	if len(res.Universities) != 6 || len(res.Programs) != 4 || res.Total != 10 {
		t.Errorf("got %d universities, %d programs, total %d; want 6/4/10",
			len(res.Universities), len(res.Programs), res.Total)
	}

	res, err = s.SearchAll(context.Background(), "addis", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Universities) != 1 || len(res.Programs) != 0 || res.Total != 1 {
		t.Errorf("limit 1: got %d/%d total %d", len(res.Universities), len(res.Programs), res.Total)
	}
}

func TestSearchCatalogUnavailable(t *testing.T) {
	failing := func(ctx context.Context) ([]catalog.University, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	cfg := indexer.EngineConfig{Retry: resilience.RetryConfig{MaxAttempts: 1}}
	u := NewUniversities(indexer.NewEngine[catalog.University](ScopeUniversities, failing, cfg), Config{})
	p := NewPrograms(indexer.NewEngine[catalog.Program](ScopePrograms, catalog.NewMemory(nil, nil).LoadPrograms, cfg), Config{})
	s := NewSearcher(u, p, SearcherConfig{})

	if _, err := s.SearchAll(context.Background(), "addis", 10); !errors.Is(err, apperrors.ErrCatalogUnavailable) {
		t.Errorf("SearchAll err = %v, want ErrCatalogUnavailable", err)
	}
	if _, err := u.Suggestions(context.Background(), "addis"); !errors.Is(err, apperrors.ErrCatalogUnavailable) {
		t.Errorf("Suggestions err = %v, want ErrCatalogUnavailable", err)
	}
}

func advancedIDs(res *AdvancedResult) []string {
	out := make([]string, len(res.Universities))
	for i, u := range res.Universities {
		out[i] = u.ID
	}
	return out
}

func TestAdvancedSearchFilters(t *testing.T) {
	s := newSearcher(t, testUniversities, testPrograms)
	tests := []struct {
		name    string
		filters AdvancedFilters
		want    []string
	}{
		{"category", AdvancedFilters{Category: "Private"}, []string{"unity"}},
		{"location by region", AdvancedFilters{Location: "oromia"}, []string{"ju"}},
		{"location by city", AdvancedFilters{Location: "addis"}, []string{"aau", "unity"}},
		{"degree type", AdvancedFilters{DegreeType: "phd"}, []string{"aau", "ju"}},
		{"program type", AdvancedFilters{ProgramType: "Distance"}, []string{"unity"}},
		{"combined", AdvancedFilters{Category: "public", Location: "addis ababa"}, []string{"aau"}},
		{"query intersected", AdvancedFilters{Query: "university", Category: "private"}, []string{"unity"}},
		{"no filters", AdvancedFilters{}, []string{"aau", "ju", "unity", "hu"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.AdvancedSearch(context.Background(), tt.filters)
			if err != nil {
				t.Fatalf("AdvancedSearch() error = %v", err)
			}
			got := advancedIDs(res)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
			if res.Total != len(tt.want) {
				t.Errorf("Total = %d, want %d", res.Total, len(tt.want))
			}
		})
	}
}

func TestAdvancedSearchSubset(t *testing.T) {
	s := newSearcher(t, testUniversities, testPrograms)
	subset := []catalog.University{
		{ID: "x1", Name: "Bahir Dar University", Type: "public", Location: "Bahir Dar", Region: "Amhara"},
		{ID: "x2", Name: "Gondar University", Type: "public", Location: "Gondar", Region: "Amhara"},
		{ID: "x3", Name: "Bahir Dar Private College", Type: "private", Location: "Bahir Dar", Region: "Amhara"},
	}

	res, err := s.AdvancedSearch(context.Background(), AdvancedFilters{
		Query:        "bahir",
		Category:     "public",
		Universities: subset,
	})
	if err != nil {
		t.Fatalf("AdvancedSearch() error = %v", err)
	}
	if got := advancedIDs(res); fmt.Sprint(got) != "[x1]" {
		t.Errorf("ids = %v, want [x1]", got)
	}

	res, err = s.AdvancedSearch(context.Background(), AdvancedFilters{Location: "amhara", Limit: 2, Universities: subset})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Universities) != 2 || res.Total != 3 {
		t.Errorf("got %d universities, total %d; want 2 of 3", len(res.Universities), res.Total)
	}
}
