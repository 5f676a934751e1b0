// Package similarity implements the string-distance primitives used by the
// fuzzy and phonetic search stages: Levenshtein edit distance and
// Jaro-Winkler similarity. Both operate on runes, not bytes.
package similarity

const (
	winklerPrefixLimit = 4
	winklerScale       = 0.1
)

// Levenshtein returns the edit distance between a and b using a single
// rolling row sized by the shorter string.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	// rb is the shorter string and the inner dimension.
	if len(rb) == 0 {
		return len(ra)
	}

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			above := row[j]
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			row[j] = min(row[j]+1, row[j-1]+1, diag+cost)
			diag = above
		}
	}
	return row[len(rb)]
}

// JaroWinkler returns the Jaro-Winkler similarity of s1 and s2 in [0, 1].
// Identical strings score 1; an empty string, or strings so different in
// length that the match window is negative, score 0.
func JaroWinkler(s1, s2 string) float64 {
	if s1 == s2 {
		return 1
	}
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 || len(r2) == 0 {
		return 0
	}

	window := max(len(r1), len(r2))/2 - 1
	if window < 0 {
		return 0
	}

	matched1 := make([]bool, len(r1))
	matched2 := make([]bool, len(r2))
	matches := 0
	for i := range r1 {
		lo := max(0, i-window)
		hi := min(i+window+1, len(r2))
		for j := lo; j < hi; j++ {
			if matched2[j] || r1[i] != r2[j] {
				continue
			}
			matched1[i] = true
			matched2[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range r1 {
		if !matched1[i] {
			continue
		}
		for !matched2[k] {
			k++
		}
		if r1[i] != r2[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	jaro := (m/float64(len(r1)) + m/float64(len(r2)) + (m-float64(transpositions)/2)/m) / 3

	prefix := 0
	for i := 0; i < min(len(r1), len(r2), winklerPrefixLimit); i++ {
		if r1[i] != r2[i] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*winklerScale*(1-jaro)
}
