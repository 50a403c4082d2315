package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientflow/api/internal/store"
)

type fakeBackend struct {
	mu      sync.Mutex
	healthy bool
	err     error
	results []Result
	calls   int
	indexed chan NoteRecord
}

func (f *fakeBackend) Search(context.Context, Query) ([]Result, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.results, len(f.results), f.err
}

func (f *fakeBackend) Healthy() bool { return f.healthy }

func (f *fakeBackend) IndexNotes(records []NoteRecord) error {
	for _, r := range records {
		f.indexed <- r
	}
	return nil
}

type fakeWriter struct {
	sections []store.NoteSection
	err      error
}

func (f *fakeWriter) InsertNoteSection(_ context.Context, section store.NoteSection) error {
	if f.err != nil {
		return f.err
	}
	f.sections = append(f.sections, section)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSearchPrefersHealthyMeiliForNotes(t *testing.T) {
	meili := &fakeBackend{healthy: true, results: []Result{{Type: ResultNote, ID: "a"}}}
	pg := &fakeBackend{healthy: true}
	svc := NewService(meili, pg, nil, discardLogger())

	resp := svc.Search(context.Background(), Query{Text: "budget", FilterType: ResultNote})
	assert.Equal(t, "meilisearch", resp.Backend)
	assert.Equal(t, 1, resp.Total)
	assert.Zero(t, pg.calls)

	svc.Search(context.Background(), Query{Text: "budget", FilterType: ResultLog})
	assert.Equal(t, 1, pg.calls)
}

func TestSearchFallsBackOnMeiliError(t *testing.T) {
	meili := &fakeBackend{healthy: true, err: errors.New("boom")}
	pg := &fakeBackend{healthy: true, results: []Result{{Type: ResultNote, ID: "b"}}}
	svc := NewService(meili, pg, nil, discardLogger())

	resp := svc.Search(context.Background(), Query{Text: "budget", FilterType: ResultNote})
	assert.Equal(t, "postgres", resp.Backend)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "b", resp.Results[0].ID)
}

func TestSearchNeverReturnsNilResults(t *testing.T) {
	svc := NewService(nil, &fakeBackend{err: errors.New("db down")}, nil, discardLogger())
	resp := svc.Search(context.Background(), Query{Text: "x"})
	assert.NotNil(t, resp.Results)
	assert.Zero(t, resp.Total)
}

func TestIndexSectionWritesPostgresThenMeili(t *testing.T) {
	meili := &fakeBackend{healthy: true, indexed: make(chan NoteRecord, 1)}
	writer := &fakeWriter{}
	svc := NewService(meili, &fakeBackend{}, writer, discardLogger())
	date := time.Date(2026, 10, 1, 15, 0, 0, 0, time.UTC)

	err := svc.IndexSection(context.Background(), store.NoteSection{ID: "summary-m1", ClientID: "acme", Kind: "summary", MeetingDate: &date})
	require.NoError(t, err)
	require.Len(t, writer.sections, 1)

	select {
	case record := <-meili.indexed:
		assert.Equal(t, "summary-m1", record.ID)
		assert.Equal(t, "2026-10-01T15:00:00Z", record.MeetingDate)
	case <-time.After(time.Second):
		t.Fatal("note was not pushed to meilisearch")
	}
}

func TestIndexSectionReturnsPostgresError(t *testing.T) {
	svc := NewService(nil, &fakeBackend{}, &fakeWriter{err: errors.New("constraint")}, discardLogger())
	assert.Error(t, svc.IndexSection(context.Background(), store.NoteSection{ID: "x"}))
}

func TestBuildSubQueries(t *testing.T) {
	queries, args := buildSubQueries(Query{Text: "budget"})
	assert.Len(t, queries, 2)
	assert.Equal(t, []any{"budget"}, args)

	queries, args = buildSubQueries(Query{Text: "budget", ClientID: "acme", Kind: "summary"})
	require.Len(t, queries, 1)
	assert.True(t, strings.Contains(queries[0], "n.client_id = $2"))
	assert.True(t, strings.Contains(queries[0], "n.kind = $3"))
	assert.Equal(t, []any{"budget", "acme", "summary"}, args)

	queries, _ = buildSubQueries(Query{Text: "failed", FilterType: ResultLog})
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "processing_log")
}

func TestMeiliFilter(t *testing.T) {
	assert.Equal(t, "", meiliFilter(Query{}))
	assert.Equal(t, `clientId = "acme" AND kind = "agenda"`, meiliFilter(Query{ClientID: "acme", Kind: "agenda"}))
}
