package index

import (
	"fmt"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/searcher/ranker"
)

// Document is the shape the index operates on. Domain records expose it
// through Searchable. Popularity and Rating are ranking signals only; a zero
// value means absent and contributes no boost.
type Document struct {
	ID          string
	Name        string
	Description string
	Type        string
	Location    string
	Keywords    []string
	Popularity  float64
	Rating      float64
}

// SearchDocument lets a bare Document be indexed directly.
func (d Document) SearchDocument() Document { return d }

// Searchable is implemented by anything the index can hold.
type Searchable interface {
	SearchDocument() Document
}

// Field identifies one of the four discretely scored text fields.
type Field int

const (
	FieldName Field = iota
	FieldType
	FieldLocation
	FieldDescription
)

var fieldNames = [...]string{"name", "type", "location", "description"}

// Fields returns the scored fields in scoring order.
func Fields() [4]Field {
	return [4]Field{FieldName, FieldType, FieldLocation, FieldDescription}
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// MarshalText encodes the field by name.
func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Field) UnmarshalText(text []byte) error {
	for i, name := range fieldNames {
		if name == string(text) {
			*f = Field(i)
			return nil
		}
	}
	return fmt.Errorf("unknown field %q", text)
}

// MatchType records which search stage first admitted a result.
type MatchType int

const (
	MatchExact MatchType = iota
	MatchFuzzy
	MatchPartial
	MatchPhonetic
)

var matchTypeNames = [...]string{"exact", "fuzzy", "partial", "phonetic"}

// baseWeights are indexed by MatchType.
var baseWeights = [...]float64{1.0, 0.8, 0.6, 0.4}

func (m MatchType) String() string {
	if m < 0 || int(m) >= len(matchTypeNames) {
		return fmt.Sprintf("match(%d)", int(m))
	}
	return matchTypeNames[m]
}

// MarshalText encodes the match type by name.
func (m MatchType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MatchType) UnmarshalText(text []byte) error {
	for i, name := range matchTypeNames {
		if name == string(text) {
			*m = MatchType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown match type %q", text)
}

// BaseWeight is the starting score multiplier for results of this type.
func (m MatchType) BaseWeight() float64 {
	if m < 0 || int(m) >= len(baseWeights) {
		return 0
	}
	return baseWeights[m]
}

// Result is one ranked hit. Item is the indexed value itself, shared with
// the slice passed to Build; callers must treat it as read-only.
type Result[T any] struct {
	Item          T         `json:"item"`
	Score         float64   `json:"score"`
	MatchedFields []Field   `json:"matched_fields"`
	MatchType     MatchType `json:"match_type"`
	position      int
}

func (r Result[T]) RankScore() float64 { return r.Score }
func (r Result[T]) RankOrder() int      { return r.position }

var _ ranker.Scored = Result[Document]{}
