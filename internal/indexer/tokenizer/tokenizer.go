// Package tokenizer provides text normalisation and tokenisation for the
// search index. It lower-cases input, folds accents, replaces punctuation
// with spaces, and drops stop-words and one-character tokens.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minTokenLength is the shortest token, in runes, that survives Tokenize.
const minTokenLength = 2

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {},
}

// NormalizeText canonicalises text for comparison: lower-case, accents
// stripped, non-word characters replaced by spaces, whitespace collapsed.
// It never fails; empty input yields an empty string.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	text = foldAccents(strings.ToLower(text))

	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		if !isWordRune(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tokenize normalises text and splits it into terms, removing stop-words and
// tokens shorter than two characters. Order is preserved; duplicates are not
// removed (see Unique).
func Tokenize(text string) []string {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}
	words := strings.Split(normalized, " ")
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < minTokenLength {
			continue
		}
		if IsStopWord(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// Unique returns tokens with duplicates removed, keeping first occurrences.
func Unique(tokens []string) []string {
	if len(tokens) <= 1 {
		return tokens
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// IsStopWord reports whether word is in the fixed stop-word set. The word
// must already be normalised.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
