package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientflow/api/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupLedger(t *testing.T) (*Ledger, *MemoryDurable, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), DefaultTTLs(6*time.Hour, 72*time.Hour))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	durable := NewMemoryDurable()
	return New(durable, cache, discardLogger()), durable, s
}

func TestMarkProcessedSurvivesCacheFlush(t *testing.T) {
	l, _, s := setupLedger(t)
	ctx := context.Background()
	key := Key{Namespace: GeneratedAgenda, ExternalID: "evt-1"}

	require.NoError(t, l.MarkProcessed(ctx, key, "acme", nil))
	s.FlushAll()

	done, err := l.HasProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestHasProcessedBackfillsCache(t *testing.T) {
	l, durable, s := setupLedger(t)
	ctx := context.Background()
	key := Key{Namespace: ProcessedMessage, ExternalID: "msg-1"}

	_, err := durable.AppendLedgerEntry(ctx, store.LedgerEntry{Namespace: key.Namespace, ExternalID: key.ExternalID, Status: store.LedgerProcessed})
	require.NoError(t, err)
	assert.False(t, s.Exists("clientflow:ledger:processed-message:msg-1"))

	done, err := l.HasProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, s.Exists("clientflow:ledger:processed-message:msg-1"))
}

func TestCacheExpiryDoesNotForget(t *testing.T) {
	l, _, s := setupLedger(t)
	ctx := context.Background()
	key := Key{Namespace: UnmatchedNotified, ExternalID: "evt-9"}

	require.NoError(t, l.MarkProcessed(ctx, key, "", nil))
	s.FastForward(7 * time.Hour)
	assert.False(t, s.Exists("clientflow:ledger:unmatched-notified:evt-9"))

	done, err := l.HasProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestNamespaceTTLs(t *testing.T) {
	l, _, s := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, l.MarkProcessed(ctx, Key{Namespace: ProcessedMessage, ExternalID: "m"}, "", nil))
	require.NoError(t, l.MarkProcessed(ctx, Key{Namespace: GeneratedAgenda, ExternalID: "e"}, "", nil))

	assert.Equal(t, 72*time.Hour, s.TTL("clientflow:ledger:processed-message:m"))
	assert.Equal(t, 6*time.Hour, s.TTL("clientflow:ledger:generated-agenda:e"))
}

func TestRedisOutageFallsBackToDurable(t *testing.T) {
	l, _, s := setupLedger(t)
	ctx := context.Background()
	key := Key{Namespace: ProcessedMessage, ExternalID: "msg-2"}

	require.NoError(t, l.MarkProcessed(ctx, key, "acme", nil))
	s.Close()

	done, err := l.HasProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, l.MarkProcessed(ctx, Key{Namespace: ProcessedMessage, ExternalID: "msg-3"}, "acme", nil))
}

func TestDurableFailureIsReturned(t *testing.T) {
	l, durable, s := setupLedger(t)
	ctx := context.Background()
	durable.FailAppend = errors.New("disk full")
	key := Key{Namespace: ProcessedMessage, ExternalID: "msg-4"}

	err := l.MarkProcessed(ctx, key, "acme", nil)
	require.Error(t, err)
	assert.False(t, s.Exists("clientflow:ledger:processed-message:msg-4"), "cache must not claim what the durable tier lacks")
}

func TestCommittedIgnoresCache(t *testing.T) {
	l, _, s := setupLedger(t)
	ctx := context.Background()
	key := Key{Namespace: GeneratedAgenda, ExternalID: "evt-2"}
	require.NoError(t, s.Set("clientflow:ledger:generated-agenda:evt-2", "stale"))

	done, err := l.Committed(ctx, key)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPendingLifecycle(t *testing.T) {
	l, _, _ := setupLedger(t)
	ctx := context.Background()

	require.NoError(t, l.MarkPending(ctx, Key{Namespace: PendingDraft, ExternalID: "d1"}, "acme", map[string]any{"title": "Kickoff"}))
	require.NoError(t, l.MarkPending(ctx, Key{Namespace: PendingDraft, ExternalID: "d2"}, "", nil))
	require.NoError(t, l.MarkPending(ctx, Key{Namespace: PendingDraft, ExternalID: "d1"}, "acme", nil))

	keys, err := l.GetPending(ctx, PendingDraft)
	require.NoError(t, err)
	assert.Equal(t, []Key{{PendingDraft, "d1"}, {PendingDraft, "d2"}}, keys)

	require.NoError(t, l.MarkProcessed(ctx, Key{Namespace: PendingDraft, ExternalID: "d1"}, "acme", nil))
	keys, err = l.GetPending(ctx, PendingDraft)
	require.NoError(t, err)
	assert.Equal(t, []Key{{PendingDraft, "d2"}}, keys)
}

func TestStepMarkers(t *testing.T) {
	l, durable, _ := setupLedger(t)
	ctx := context.Background()

	done, err := l.StepDone(ctx, "evt-3", "email")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, l.MarkStep(ctx, "evt-3", "email", "acme"))
	require.NoError(t, l.MarkStep(ctx, "evt-3", "email", "acme"))

	done, err = l.StepDone(ctx, "evt-3", "email")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 1, durable.Count(WorkflowStep, store.LedgerProcessed))
}

func TestNopCacheLedger(t *testing.T) {
	l := New(NewMemoryDurable(), nil, discardLogger())
	ctx := context.Background()
	key := Key{Namespace: ProcessedMessage, ExternalID: "x"}

	require.NoError(t, l.MarkProcessed(ctx, key, "", nil))
	done, err := l.HasProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, done)
	require.NoError(t, l.Ping(ctx))
}
