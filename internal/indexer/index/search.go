package index

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/tokenizer"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/ranker"
	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/similarity"
)

// query is a parsed search string. tokens keeps duplicates for scoring;
// unique is used for lookups.
type query struct {
	normalized string
	tokens     []string
	unique     []string
}

func parseQuery(raw string) query {
	tokens := tokenizer.Tokenize(raw)
	return query{
		normalized: tokenizer.NormalizeText(raw),
		tokens:     tokens,
		unique:     tokenizer.Unique(tokens),
	}
}

// Search runs the staged search and returns ranked results. Stages run in
// order (exact token, fuzzy, partial, phonetic); each only considers items
// no earlier stage admitted, and the fuzzy, partial and phonetic stages are
// skipped once MaxResults items have been admitted. A blank query, or a
// search on an index that was never built, returns an empty slice.
func (x *Index[T]) Search(raw string, opts Options) []Result[T] {
	results := []Result[T]{}
	if strings.TrimSpace(raw) == "" {
		return results
	}
	snap := x.current()
	if snap == nil || len(snap.docs) == 0 {
		return results
	}
	q := parseQuery(raw)
	// Punctuation-only input such as "!!!" normalizes to nothing. It would
	// otherwise contain-match every item in the partial stage.
	if q.normalized == "" {
		return results
	}
	opts = opts.sanitized()

	claimed := make([]bool, len(snap.docs))
	admit := func(pos int, mt MatchType) {
		claimed[pos] = true
		score, fields := scoreDocument(&snap.docs[pos], q, mt, opts.Boosts)
		results = append(results, Result[T]{
			Item:          snap.items[pos],
			Score:         score,
			MatchedFields: fields,
			MatchType:     mt,
			position:      pos,
		})
	}

	for _, pos := range snap.exactCandidates(q.unique) {
		admit(pos, MatchExact)
	}

	if opts.EnableFuzzy && opts.FuzzyThreshold > 0 && len(results) < opts.MaxResults {
		for pos := range snap.docs {
			if !claimed[pos] && fuzzyMatch(snap.docs[pos].tokens, q.unique, opts.FuzzyThreshold) {
				admit(pos, MatchFuzzy)
			}
		}
	}

	if len(results) < opts.MaxResults {
		for pos := range snap.docs {
			if !claimed[pos] && partialMatch(&snap.docs[pos], q) {
				admit(pos, MatchPartial)
			}
		}
	}

	if opts.EnablePhonetic && len(results) < opts.MaxResults {
		for pos := range snap.docs {
			if claimed[pos] {
				continue
			}
			if similarity.JaroWinkler(q.normalized, snap.docs[pos].name) > phoneticThreshold {
				admit(pos, MatchPhonetic)
			}
		}
	}

	return ranker.Rank(results, opts.MinScore, opts.MaxResults)
}

// exactCandidates returns the union of the postings for tokens, in
// collection order.
func (s *snapshot[T]) exactCandidates(tokens []string) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, tok := range tokens {
		for _, pos := range s.postings[tok] {
			if _, dup := seen[pos]; dup {
				continue
			}
			seen[pos] = struct{}{}
			out = append(out, pos)
		}
	}
	slices.Sort(out)
	return out
}

// fuzzyMatch reports whether any query/item token pair is within threshold
// edits but not identical. Identical pairs belong to the exact stage.
func fuzzyMatch(itemTokens, queryTokens []string, threshold int) bool {
	for _, qt := range queryTokens {
		qlen := utf8.RuneCountInString(qt)
		for _, it := range itemTokens {
			diff := qlen - utf8.RuneCountInString(it)
			if diff > threshold || -diff > threshold {
				continue
			}
			if d := similarity.Levenshtein(qt, it); d > 0 && d <= threshold {
				return true
			}
		}
	}
	return false
}

func partialMatch(doc *document, q query) bool {
	if strings.Contains(doc.combined, q.normalized) {
		return true
	}
	for _, tok := range q.tokens {
		if strings.Contains(doc.combined, tok) {
			return true
		}
	}
	return false
}

// ScoreItem scores the item at position against raw as if it had been
// admitted by matchType. It returns zero and no fields for an out-of-range
// position or an unbuilt index.
func (x *Index[T]) ScoreItem(position int, raw string, matchType MatchType, boosts Boosts) (float64, []Field) {
	snap := x.current()
	if snap == nil || position < 0 || position >= len(snap.docs) {
		return 0, nil
	}
	return scoreDocument(&snap.docs[position], parseQuery(raw), matchType, boosts)
}

// scoreDocument applies the ranking formula: each field scores 1 when it
// contains the whole query, otherwise the fraction of query tokens it
// contains; field scores are boosted and summed, then scaled by field
// coverage, the match type's base weight, and the popularity boost.
func scoreDocument(doc *document, q query, mt MatchType, boosts Boosts) (float64, []Field) {
	fields := Fields()
	matched := make([]Field, 0, len(fields))
	var total float64
	for _, f := range fields {
		fs := fieldScore(doc.field(f), q)
		if fs == 0 {
			continue
		}
		matched = append(matched, f)
		total += fs * boosts.For(f)
	}
	total *= ranker.CoverageBonus(len(matched), len(fields))
	return mt.BaseWeight() * total * ranker.PopularityBoost(doc.popularity, doc.rating), matched
}

func fieldScore(text string, q query) float64 {
	if text == "" || q.normalized == "" {
		return 0
	}
	if strings.Contains(text, q.normalized) {
		return 1
	}
	if len(q.tokens) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range q.tokens {
		if strings.Contains(text, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(q.tokens))
}
