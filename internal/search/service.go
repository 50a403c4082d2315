package search

import (
	"context"
	"log/slog"
	"time"

	"clientflow/api/internal/store"
)

// NoteWriter persists notes sections for the Postgres fallback.
// store.PostgresStore implements it.
type NoteWriter interface {
	InsertNoteSection(ctx context.Context, section store.NoteSection) error
}

// NoteIndex is the fast index. *Meili implements it.
type NoteIndex interface {
	Searcher
	IndexNotes(records []NoteRecord) error
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  NoteIndex
	pgfts  Searcher
	notes  NoteWriter
	logger *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili NoteIndex, pgfts Searcher, notes NoteWriter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meili: meili, pgfts: pgfts, notes: notes, logger: logger}
}

// Search tries Meilisearch for note queries when it is healthy, otherwise
// Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() && q.FilterType == ResultNote {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", "error", err)
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", "query", q.Text, "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "postgres"}
}

// IndexSection writes the section to Postgres and pushes it to Meilisearch
// in the background. Only the Postgres write can fail the call.
func (s *Service) IndexSection(ctx context.Context, section store.NoteSection) error {
	if s.notes != nil {
		if err := s.notes.InsertNoteSection(ctx, section); err != nil {
			return err
		}
	}
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	record := NoteRecord{
		ID:          section.ID,
		ClientID:    section.ClientID,
		Kind:        section.Kind,
		Title:       section.Title,
		Body:        section.Body,
		MeetingDate: dateString(section.MeetingDate),
		CreatedAt:   time.Now().Unix(),
	}
	go func() {
		if err := s.meili.IndexNotes([]NoteRecord{record}); err != nil {
			s.logger.Warn("index note failed", "section", record.ID, "error", err)
		}
	}()
	return nil
}

// Reindex pushes every Postgres notes row to Meilisearch.
func (s *Service) Reindex(ctx context.Context, load func(context.Context) ([]NoteRecord, error)) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records, err := load(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", "error", err)
		return
	}
	if err := s.meili.IndexNotes(records); err != nil {
		s.logger.Error("reindex notes failed", "error", err)
		return
	}
	s.logger.Info("notes reindexed", "count", len(records))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
