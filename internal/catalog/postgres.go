package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Schema creates the catalog tables read by Postgres and written by the
// catalog publisher.
const Schema = `
CREATE TABLE IF NOT EXISTS universities (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    type             TEXT NOT NULL DEFAULT '',
    location         TEXT NOT NULL DEFAULT '',
    region           TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    accreditation    TEXT NOT NULL DEFAULT '',
    website          TEXT NOT NULL DEFAULT '',
    program_types    TEXT[] NOT NULL DEFAULT '{}',
    degree_types     TEXT[] NOT NULL DEFAULT '{}',
    facilities       TEXT[] NOT NULL DEFAULT '{}',
    rating           DOUBLE PRECISION NOT NULL DEFAULT 0,
    popularity       DOUBLE PRECISION NOT NULL DEFAULT 0,
    established_year INTEGER NOT NULL DEFAULT 0,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS programs (
    id            TEXT PRIMARY KEY,
    university_id TEXT NOT NULL REFERENCES universities(id) ON DELETE CASCADE,
    name          TEXT NOT NULL,
    degree_type   TEXT NOT NULL DEFAULT '',
    category      TEXT NOT NULL DEFAULT '',
    location      TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    duration      TEXT NOT NULL DEFAULT '',
    requirements  TEXT[] NOT NULL DEFAULT '{}',
    rating        DOUBLE PRECISION NOT NULL DEFAULT 0,
    popularity    DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Postgres is a Source reading the universities and programs tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) LoadUniversities(ctx context.Context) ([]University, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, type, location, region, description, accreditation, website,
		       program_types, degree_types, facilities, rating, popularity, established_year
		FROM universities
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying universities: %w", err)
	}
	defer rows.Close()

	var out []University
	for rows.Next() {
		var u University
		if err := rows.Scan(
			&u.ID, &u.Name, &u.Type, &u.Location, &u.Region, &u.Description, &u.Accreditation, &u.Website,
			pq.Array(&u.ProgramTypes), pq.Array(&u.DegreeTypes), pq.Array(&u.Facilities),
			&u.Rating, &u.Popularity, &u.EstablishedYear,
		); err != nil {
			return nil, fmt.Errorf("scanning university row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating universities: %w", err)
	}
	return out, nil
}

func (p *Postgres) LoadPrograms(ctx context.Context) ([]Program, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT p.id, p.university_id, u.name, p.name, p.degree_type, p.category, p.location,
		       p.description, p.duration, p.requirements, p.rating, p.popularity
		FROM programs p
		JOIN universities u ON u.id = p.university_id
		ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("querying programs: %w", err)
	}
	defer rows.Close()

	var out []Program
	for rows.Next() {
		var pr Program
		if err := rows.Scan(
			&pr.ID, &pr.UniversityID, &pr.UniversityName, &pr.Name, &pr.DegreeType, &pr.Category, &pr.Location,
			&pr.Description, &pr.Duration, pq.Array(&pr.Requirements), &pr.Rating, &pr.Popularity,
		); err != nil {
			return nil, fmt.Errorf("scanning program row: %w", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating programs: %w", err)
	}
	return out, nil
}
