// Package ledger records which external events have already produced their
// business effects. Redis is a disposable fast tier; Postgres is the
// authoritative append-only tier and never expires.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"clientflow/api/internal/store"
)

const (
	ProcessedMessage  = "processed-message"
	GeneratedAgenda   = "generated-agenda"
	PendingDraft      = "pending-draft"
	MeetingDraft      = "meeting-draft"
	WorkflowStep      = "workflow-step"
	UnmatchedNotified = "unmatched-notified"
)

type Key struct {
	Namespace  string
	ExternalID string
}

func (k Key) String() string {
	return k.Namespace + ":" + k.ExternalID
}

// StepKey identifies one irreversible sub-step of a workflow run.
func StepKey(id, step string) Key {
	return Key{Namespace: WorkflowStep, ExternalID: id + "#" + step}
}

// Durable is the authoritative tier. store.PostgresStore implements it.
type Durable interface {
	AppendLedgerEntry(ctx context.Context, entry store.LedgerEntry) (bool, error)
	FindLedgerEntry(ctx context.Context, namespace, externalID, status string) (store.LedgerEntry, bool, error)
	ListPendingLedgerEntries(ctx context.Context, namespace string) ([]store.LedgerEntry, error)
}

// FastCache is the expiring tier. Entries may vanish at any time.
type FastCache interface {
	Seen(ctx context.Context, key Key) (bool, error)
	Remember(ctx context.Context, key Key) error
	Ping(ctx context.Context) error
}

type Ledger struct {
	durable Durable
	cache   FastCache
	logger  *slog.Logger
}

func New(durable Durable, cache FastCache, logger *slog.Logger) *Ledger {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{durable: durable, cache: cache, logger: logger}
}

// HasProcessed answers from the cache when it can and falls through to the
// durable tier otherwise. A cache failure is never fatal.
func (l *Ledger) HasProcessed(ctx context.Context, key Key) (bool, error) {
	seen, err := l.cache.Seen(ctx, key)
	if err != nil {
		l.logger.Warn("ledger cache read failed", "key", key.String(), "error", err)
	} else if seen {
		return true, nil
	}

	done, err := l.Committed(ctx, key)
	if err != nil || !done {
		return done, err
	}
	if err := l.cache.Remember(ctx, key); err != nil {
		l.logger.Warn("ledger cache backfill failed", "key", key.String(), "error", err)
	}
	return true, nil
}

// Committed consults only the durable tier. Callers use it immediately
// before an irreversible action.
func (l *Ledger) Committed(ctx context.Context, key Key) (bool, error) {
	_, found, err := l.durable.FindLedgerEntry(ctx, key.Namespace, key.ExternalID, store.LedgerProcessed)
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", key, err)
	}
	return found, nil
}

// MarkProcessed appends the durable row and then warms the cache. It is safe
// to call more than once for the same key.
func (l *Ledger) MarkProcessed(ctx context.Context, key Key, clientID string, metadata map[string]any) error {
	if _, err := l.durable.AppendLedgerEntry(ctx, store.LedgerEntry{
		Namespace:  key.Namespace,
		ExternalID: key.ExternalID,
		Status:     store.LedgerProcessed,
		ClientID:   clientID,
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("ledger mark %s: %w", key, err)
	}
	if err := l.cache.Remember(ctx, key); err != nil {
		l.logger.Warn("ledger cache write failed", "key", key.String(), "error", err)
	}
	return nil
}

func (l *Ledger) MarkPending(ctx context.Context, key Key, clientID string, metadata map[string]any) error {
	if _, err := l.durable.AppendLedgerEntry(ctx, store.LedgerEntry{
		Namespace:  key.Namespace,
		ExternalID: key.ExternalID,
		Status:     store.LedgerPending,
		ClientID:   clientID,
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("ledger mark pending %s: %w", key, err)
	}
	return nil
}

// GetPending lists keys marked pending and not yet processed, oldest first.
func (l *Ledger) GetPending(ctx context.Context, namespace string) ([]Key, error) {
	entries, err := l.PendingEntries(ctx, namespace)
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, Key{Namespace: entry.Namespace, ExternalID: entry.ExternalID})
	}
	return keys, nil
}

// PendingEntries is GetPending with the stored client id and metadata.
func (l *Ledger) PendingEntries(ctx context.Context, namespace string) ([]store.LedgerEntry, error) {
	entries, err := l.durable.ListPendingLedgerEntries(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("ledger pending %s: %w", namespace, err)
	}
	return entries, nil
}

// StepDone reports whether a sub-step already ran. It always reads the
// durable tier.
func (l *Ledger) StepDone(ctx context.Context, id, step string) (bool, error) {
	return l.Committed(ctx, StepKey(id, step))
}

func (l *Ledger) MarkStep(ctx context.Context, id, step, clientID string) error {
	return l.MarkProcessed(ctx, StepKey(id, step), clientID, nil)
}

// Ping checks the fast tier. NopCache always succeeds.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.cache.Ping(ctx)
}

// NopCache is used when Redis is not configured.
type NopCache struct{}

func (NopCache) Seen(context.Context, Key) (bool, error) { return false, nil }
func (NopCache) Remember(context.Context, Key) error     { return nil }
func (NopCache) Ping(context.Context) error              { return nil }
