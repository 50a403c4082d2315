package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientflow/api/db"
	"clientflow/api/internal/clients"
	"clientflow/api/internal/util"
)

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	url := os.Getenv("CLIENTFLOW_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CLIENTFLOW_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	conn, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, ApplyMigrations(ctx, conn, db.Migrations, "migrations"))
	return NewPostgresStore(conn)
}

func TestLedgerAppendIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := util.NewID("msg")

	entry := LedgerEntry{Namespace: "processed-message", ExternalID: id, Status: LedgerProcessed, ClientID: "acme"}
	inserted, err := s.AppendLedgerEntry(ctx, entry)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.AppendLedgerEntry(ctx, entry)
	require.NoError(t, err)
	assert.False(t, inserted, "second append must be a no-op")

	found, ok, err := s.FindLedgerEntry(ctx, "processed-message", id, LedgerProcessed)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "acme", found.ClientID)
}

func TestPendingEntriesDisappearOnceProcessed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	namespace := "pending-draft-" + util.NewID("t")
	first, second := util.NewID("draft"), util.NewID("draft")

	for _, id := range []string{first, second} {
		_, err := s.AppendLedgerEntry(ctx, LedgerEntry{Namespace: namespace, ExternalID: id, Status: LedgerPending})
		require.NoError(t, err)
	}
	_, err := s.AppendLedgerEntry(ctx, LedgerEntry{Namespace: namespace, ExternalID: first, Status: LedgerProcessed})
	require.NoError(t, err)

	pending, err := s.ListPendingLedgerEntries(ctx, namespace)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ExternalID)
}

func TestUnmatchedLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	details := "meeting " + util.NewID("evt")

	require.NoError(t, s.RecordUnmatched(ctx, clients.UnmatchedRecord{
		ItemType:          "meeting",
		Details:           details,
		ParticipantEmails: []string{"x@nowhere.example"},
	}))

	open, err := s.ListUnmatched(ctx, false, 500)
	require.NoError(t, err)
	var id int64
	for _, item := range open {
		if item.Details == details {
			id = item.ID
			assert.Equal(t, []string{"x@nowhere.example"}, item.ParticipantEmails)
		}
	}
	require.NotZero(t, id)

	ok, err := s.ResolveUnmatched(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ResolveUnmatched(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientsRoundTripInPositionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.DB().ExecContext(ctx, `DELETE FROM clients`)
	require.NoError(t, err)

	require.NoError(t, s.UpsertClients(ctx, []clients.Client{
		{ID: "zeta", Name: "Zeta", Domains: []string{"zeta.example"}},
		{ID: "acme", Name: "Acme", Contacts: []string{"jane@acme.example"}, SetupComplete: true},
	}))

	list, err := s.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "zeta", list[0].ID)
	assert.Equal(t, "Client: Acme/Meeting Summaries", list[1].Labels.Summaries)
	assert.True(t, list[1].SetupComplete)
}

func TestPruneProcessingLogKeepsRecentRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	marker := util.NewID("prune")

	require.NoError(t, s.AppendProcessingLog(ctx, ProcessingLogEntry{ActionType: "agenda", Details: marker, Status: LogSuccess}))
	_, err := s.PruneProcessingLog(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	var count int
	err = s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_log WHERE details=$1`, marker).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

var _ clients.Directory = (*PostgresStore)(nil)
var _ clients.AuditSink = (*PostgresStore)(nil)
