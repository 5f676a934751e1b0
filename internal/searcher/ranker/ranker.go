// Package ranker holds the ranking arithmetic shared by the search index:
// coverage bonus, popularity/rating boost, and the final filter-sort-limit
// pass over scored hits.
package ranker

import (
	"math"
	"slices"
)

const (
	coverageWeight   = 0.5
	popularityWeight = 0.1
	ratingWeight     = 0.2
	maxRating        = 5.0
)

// Scored is implemented by hits that can be ranked. Order is the hit's
// position in the indexed collection and breaks score ties.
type Scored interface {
	RankScore() float64
	RankOrder() int
}

// CoverageBonus returns the multiplier rewarding hits that match in many
// distinct fields: 1 + 0.5 * matched/total.
func CoverageBonus(matched, total int) float64 {
	if total <= 0 {
		return 1
	}
	return 1 + coverageWeight*float64(matched)/float64(total)
}

// PopularityBoost returns the multiplicative boost for an item's popularity
// and rating signals. Non-positive popularity and zero rating add nothing.
func PopularityBoost(popularity, rating float64) float64 {
	boost := 1.0
	if popularity > 0 {
		boost += popularityWeight * math.Log10(popularity)
	}
	if rating != 0 {
		boost += ratingWeight * (rating / maxRating)
	}
	return boost
}

// Rank drops hits scoring below minScore, sorts the rest by score
// descending (ties by collection order), and truncates to limit. A limit
// of zero or less keeps everything. The input slice is reordered in place.
func Rank[S Scored](hits []S, minScore float64, limit int) []S {
	kept := hits[:0]
	for _, h := range hits {
		if h.RankScore() >= minScore {
			kept = append(kept, h)
		}
	}
	slices.SortStableFunc(kept, func(a, b S) int {
		if a.RankScore() != b.RankScore() {
			if a.RankScore() > b.RankScore() {
				return -1
			}
			return 1
		}
		return a.RankOrder() - b.RankOrder()
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
