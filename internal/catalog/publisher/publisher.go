// Package publisher writes catalog records to PostgreSQL and announces the
// change on Kafka so running searchers drop their stale indexes.
package publisher

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lib/pq"

	"github.com/nathnaelteshome/common-app-web-sub001/internal/catalog"
	apperrors "github.com/nathnaelteshome/common-app-web-sub001/pkg/errors"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/kafka"
	"github.com/nathnaelteshome/common-app-web-sub001/pkg/postgres"
)

// EventPublisher is the subset of kafka.Producer used here.
type EventPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Result summarises one Sync call.
type Result struct {
	Universities int `json:"universities"`
	Programs     int `json:"programs"`
	Pruned       int `json:"pruned"`
}

// Publisher coordinates catalog persistence and change event production.
type Publisher struct {
	db       *postgres.Client
	producer EventPublisher
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Publisher. producer may be nil when Kafka is disabled; the
// searchers then pick the change up on their next TTL refresh.
func New(db *postgres.Client, producer EventPublisher) *Publisher {
	return &Publisher{
		db:       db,
		producer: producer,
		logger:   slog.Default().With("component", "catalog-publisher"),
		now:      time.Now,
	}
}

// EnsureSchema creates the catalog tables if they do not exist.
func (p *Publisher) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.DB.ExecContext(ctx, catalog.Schema); err != nil {
		return fmt.Errorf("creating catalog schema: %w", err)
	}
	return nil
}

// Sync validates doc, upserts every record in one transaction and publishes
// a ChangeEvent per entity. With prune set, rows absent from doc are removed.
func (p *Publisher) Sync(ctx context.Context, doc *catalog.Document, prune bool) (*Result, error) {
	if err := catalog.Validate(doc); err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidQuery, http.StatusUnprocessableEntity, "catalog rejected: %v", err)
	}

	res := &Result{}
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, u := range doc.Universities {
			if err := upsertUniversity(ctx, tx, u); err != nil {
				return err
			}
			res.Universities++
		}
		for _, pr := range doc.Programs {
			if err := upsertProgram(ctx, tx, pr); err != nil {
				return err
			}
			res.Programs++
		}
		if prune {
			n, err := pruneMissing(ctx, tx, doc)
			if err != nil {
				return err
			}
			res.Pruned = n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("syncing catalog: %w", err)
	}

	p.logger.Info("catalog synced",
		"universities", res.Universities,
		"programs", res.Programs,
		"pruned", res.Pruned,
	)

	if p.producer == nil {
		return res, nil
	}
	if err := p.producer.PublishBatch(ctx, ChangeEvents(doc, prune, p.now())); err != nil {
		p.logger.Error("catalog stored but change event not published; searchers will refresh on TTL",
			"error", err,
		)
	}
	return res, nil
}

// ChangeEvents builds the Kafka events announcing doc. A pruning sync may
// have removed rows that doc does not name, so it reports whole-entity
// changes instead of id lists.
func ChangeEvents(doc *catalog.Document, prune bool, now time.Time) []kafka.Event {
	uniIDs := make([]string, 0, len(doc.Universities))
	for _, u := range doc.Universities {
		uniIDs = append(uniIDs, u.ID)
	}
	progIDs := make([]string, 0, len(doc.Programs))
	for _, pr := range doc.Programs {
		progIDs = append(progIDs, pr.ID)
	}
	if prune {
		uniIDs, progIDs = nil, nil
	}
	now = now.UTC()
	return []kafka.Event{
		{Key: string(catalog.EntityUniversity), Value: catalog.ChangeEvent{Entity: catalog.EntityUniversity, IDs: uniIDs, ChangedAt: now}},
		{Key: string(catalog.EntityProgram), Value: catalog.ChangeEvent{Entity: catalog.EntityProgram, IDs: progIDs, ChangedAt: now}},
	}
}

func upsertUniversity(ctx context.Context, tx *sql.Tx, u catalog.University) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO universities (id, name, type, location, region, description, accreditation, website,
		                          program_types, degree_types, facilities, rating, popularity, established_year, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, location = EXCLUDED.location,
			region = EXCLUDED.region, description = EXCLUDED.description,
			accreditation = EXCLUDED.accreditation, website = EXCLUDED.website,
			program_types = EXCLUDED.program_types, degree_types = EXCLUDED.degree_types,
			facilities = EXCLUDED.facilities, rating = EXCLUDED.rating,
			popularity = EXCLUDED.popularity, established_year = EXCLUDED.established_year,
			updated_at = NOW()`,
		u.ID, u.Name, u.Type, u.Location, u.Region, u.Description, u.Accreditation, u.Website,
		pq.Array(nonNil(u.ProgramTypes)), pq.Array(nonNil(u.DegreeTypes)), pq.Array(nonNil(u.Facilities)),
		u.Rating, u.Popularity, u.EstablishedYear,
	)
	if err != nil {
		return fmt.Errorf("upserting university %s: %w", u.ID, err)
	}
	return nil
}

func upsertProgram(ctx context.Context, tx *sql.Tx, p catalog.Program) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO programs (id, university_id, name, degree_type, category, location, description,
		                      duration, requirements, rating, popularity, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			university_id = EXCLUDED.university_id, name = EXCLUDED.name,
			degree_type = EXCLUDED.degree_type, category = EXCLUDED.category,
			location = EXCLUDED.location, description = EXCLUDED.description,
			duration = EXCLUDED.duration, requirements = EXCLUDED.requirements,
			rating = EXCLUDED.rating, popularity = EXCLUDED.popularity,
			updated_at = NOW()`,
		p.ID, p.UniversityID, p.Name, p.DegreeType, p.Category, p.Location, p.Description,
		p.Duration, pq.Array(nonNil(p.Requirements)), p.Rating, p.Popularity,
	)
	if err != nil {
		return fmt.Errorf("upserting program %s: %w", p.ID, err)
	}
	return nil
}

func pruneMissing(ctx context.Context, tx *sql.Tx, doc *catalog.Document) (int, error) {
	progIDs := make([]string, 0, len(doc.Programs))
	for _, p := range doc.Programs {
		progIDs = append(progIDs, p.ID)
	}
	uniIDs := make([]string, 0, len(doc.Universities))
	for _, u := range doc.Universities {
		uniIDs = append(uniIDs, u.ID)
	}

	var pruned int
	res, err := tx.ExecContext(ctx, `DELETE FROM programs WHERE NOT (id = ANY($1))`, pq.Array(progIDs))
	if err != nil {
		return 0, fmt.Errorf("pruning programs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		pruned += int(n)
	}
	res, err = tx.ExecContext(ctx, `DELETE FROM universities WHERE NOT (id = ANY($1))`, pq.Array(uniIDs))
	if err != nil {
		return 0, fmt.Errorf("pruning universities: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		pruned += int(n)
	}
	return pruned, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
