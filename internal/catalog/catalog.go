// Package catalog defines the university and program records served by the
// search API, the sources they are loaded from, and the change events
// emitted when the catalog is written.
package catalog

import (
	"strconv"
	"time"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/indexer/index"
)

// University is a higher-education institution listed in the catalog.
type University struct {
	ID              string   `json:"id" yaml:"id" validate:"required"`
	Name            string   `json:"name" yaml:"name" validate:"notblank,max=256"`
	Type            string   `json:"type" yaml:"type"`
	Location        string   `json:"location" yaml:"location"`
	Region          string   `json:"region,omitempty" yaml:"region"`
	Description     string   `json:"description,omitempty" yaml:"description" validate:"max=8192"`
	Accreditation   string   `json:"accreditation,omitempty" yaml:"accreditation"`
	Website         string   `json:"website,omitempty" yaml:"website"`
	ProgramTypes    []string `json:"programTypes,omitempty" yaml:"programTypes"`
	DegreeTypes     []string `json:"degreeTypes,omitempty" yaml:"degreeTypes"`
	Facilities      []string `json:"facilities,omitempty" yaml:"facilities"`
	Rating          float64  `json:"rating,omitempty" yaml:"rating" validate:"gte=0,lte=5"`
	Popularity      float64  `json:"popularity,omitempty" yaml:"popularity" validate:"gte=0"`
	EstablishedYear int      `json:"establishedYear,omitempty" yaml:"establishedYear"`
}

// SearchDocument maps a university onto the four scored fields. Structured
// attributes that are not scored directly become keywords so they still
// match in the exact stage.
func (u University) SearchDocument() index.Document {
	keywords := make([]string, 0, 2+len(u.ProgramTypes)+len(u.DegreeTypes)+len(u.Facilities)+1)
	keywords = appendNonEmpty(keywords, u.Region, u.Accreditation)
	keywords = appendNonEmpty(keywords, u.ProgramTypes...)
	keywords = appendNonEmpty(keywords, u.DegreeTypes...)
	keywords = appendNonEmpty(keywords, u.Facilities...)
	if u.EstablishedYear > 0 {
		keywords = append(keywords, strconv.Itoa(u.EstablishedYear))
	}
	return index.Document{
		ID:          u.ID,
		Name:        u.Name,
		Description: u.Description,
		Type:        u.Type,
		Location:    u.Location,
		Keywords:    keywords,
		Popularity:  u.Popularity,
		Rating:      u.Rating,
	}
}

// Program is a degree program offered by a university.
type Program struct {
	ID             string   `json:"id" yaml:"id" validate:"required"`
	UniversityID   string   `json:"universityId" yaml:"universityId" validate:"required"`
	UniversityName string   `json:"universityName,omitempty" yaml:"universityName"`
	Name           string   `json:"name" yaml:"name" validate:"notblank,max=256"`
	DegreeType     string   `json:"degreeType" yaml:"degreeType"`
	Category       string   `json:"category,omitempty" yaml:"category"`
	Location       string   `json:"location,omitempty" yaml:"location"`
	Description    string   `json:"description,omitempty" yaml:"description" validate:"max=8192"`
	Duration       string   `json:"duration,omitempty" yaml:"duration"`
	Requirements   []string `json:"requirements,omitempty" yaml:"requirements"`
	Rating         float64  `json:"rating,omitempty" yaml:"rating" validate:"gte=0,lte=5"`
	Popularity     float64  `json:"popularity,omitempty" yaml:"popularity" validate:"gte=0"`
}

// SearchDocument maps a program onto the scored fields; the degree type is
// the program's type.
func (p Program) SearchDocument() index.Document {
	keywords := make([]string, 0, 3+len(p.Requirements))
	keywords = appendNonEmpty(keywords, p.UniversityName, p.Category, p.Duration)
	keywords = appendNonEmpty(keywords, p.Requirements...)
	return index.Document{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Type:        p.DegreeType,
		Location:    p.Location,
		Keywords:    keywords,
		Popularity:  p.Popularity,
		Rating:      p.Rating,
	}
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

// Entity names the record kind a ChangeEvent refers to.
type Entity string

const (
	EntityUniversity Entity = "university"
	EntityProgram    Entity = "program"
)

// ChangeEvent is published whenever catalog records are written. An empty
// IDs list means the whole entity set changed.
type ChangeEvent struct {
	Entity    Entity    `json:"entity"`
	IDs       []string  `json:"ids,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}
