// Package index implements the in-memory inverted index and the staged
// search over it. An Index starts empty; Build swaps in a new immutable
// snapshot, so searches running against the previous snapshot finish on it
// and never observe a partial build.
package index

import (
	"strings"
	"sync"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/tokenizer"
)

// document is the normalised form of one source item, stored at the same
// position as the item in the built slice.
type document struct {
	name        string
	description string
	typ         string
	location    string
	combined    string
	tokens      []string
	popularity  float64
	rating      float64
}

func (d *document) field(f Field) string {
	switch f {
	case FieldName:
		return d.name
	case FieldType:
		return d.typ
	case FieldLocation:
		return d.location
	case FieldDescription:
		return d.description
	default:
		return ""
	}
}

type snapshot[T Searchable] struct {
	items    []T
	docs     []document
	postings map[string][]int
}

// Index is a rebuildable inverted index over items of type T. It is safe
// for concurrent use.
type Index[T Searchable] struct {
	mu   sync.RWMutex
	snap *snapshot[T]
}

// New returns an empty index. Searching it yields no results until Build
// is called.
func New[T Searchable]() *Index[T] {
	return &Index[T]{}
}

// Build replaces the index contents with items. The index keeps a
// reference to items rather than a copy; callers must not mutate the slice
// afterwards.
func (x *Index[T]) Build(items []T) {
	snap := &snapshot[T]{
		items:    items,
		docs:     make([]document, len(items)),
		postings: make(map[string][]int),
	}
	for pos, item := range items {
		src := item.SearchDocument()
		doc := document{
			name:        tokenizer.NormalizeText(src.Name),
			description: tokenizer.NormalizeText(src.Description),
			typ:         tokenizer.NormalizeText(src.Type),
			location:    tokenizer.NormalizeText(src.Location),
			popularity:  src.Popularity,
			rating:      src.Rating,
		}
		doc.combined = strings.Join([]string{doc.name, doc.description, doc.typ, doc.location}, " ")

		parts := make([]string, 0, 1+len(src.Keywords))
		parts = append(parts, doc.combined)
		parts = append(parts, src.Keywords...)
		doc.tokens = tokenizer.Unique(tokenizer.Tokenize(strings.Join(parts, " ")))

		for _, tok := range doc.tokens {
			snap.postings[tok] = append(snap.postings[tok], pos)
		}
		snap.docs[pos] = doc
	}

	x.mu.Lock()
	x.snap = snap
	x.mu.Unlock()
}

func (x *Index[T]) current() *snapshot[T] {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.snap
}

// Built reports whether Build has been called at least once.
func (x *Index[T]) Built() bool {
	return x.current() != nil
}

// Len returns the number of indexed items.
func (x *Index[T]) Len() int {
	if s := x.current(); s != nil {
		return len(s.items)
	}
	return 0
}

// Terms returns the number of distinct tokens in the index.
func (x *Index[T]) Terms() int {
	if s := x.current(); s != nil {
		return len(s.postings)
	}
	return 0
}

// Items returns the slice the index was last built from.
func (x *Index[T]) Items() []T {
	if s := x.current(); s != nil {
		return s.items
	}
	return nil
}
