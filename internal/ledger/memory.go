package ledger

import (
	"context"
	"sync"
	"time"

	"clientflow/api/internal/store"
)

// MemoryDurable is an in-process Durable with the same append-only
// semantics as the Postgres table. Tests across packages share it.
type MemoryDurable struct {
	mu      sync.Mutex
	entries []store.LedgerEntry
	// FailAppend makes every append fail when set.
	FailAppend error
}

func NewMemoryDurable() *MemoryDurable {
	return &MemoryDurable{}
}

func (m *MemoryDurable) AppendLedgerEntry(_ context.Context, entry store.LedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend != nil {
		return false, m.FailAppend
	}
	for _, existing := range m.entries {
		if existing.Namespace == entry.Namespace && existing.ExternalID == entry.ExternalID && existing.Status == entry.Status {
			return false, nil
		}
	}
	entry.ID = int64(len(m.entries) + 1)
	entry.CreatedAt = time.Now().UTC()
	m.entries = append(m.entries, entry)
	return true, nil
}

func (m *MemoryDurable) FindLedgerEntry(_ context.Context, namespace, externalID, status string) (store.LedgerEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.entries {
		if entry.Namespace == namespace && entry.ExternalID == externalID && entry.Status == status {
			return entry, true, nil
		}
	}
	return store.LedgerEntry{}, false, nil
}

func (m *MemoryDurable) ListPendingLedgerEntries(_ context.Context, namespace string) ([]store.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	processed := map[string]bool{}
	for _, entry := range m.entries {
		if entry.Namespace == namespace && entry.Status == store.LedgerProcessed {
			processed[entry.ExternalID] = true
		}
	}
	items := make([]store.LedgerEntry, 0)
	for _, entry := range m.entries {
		if entry.Namespace == namespace && entry.Status == store.LedgerPending && !processed[entry.ExternalID] {
			items = append(items, entry)
		}
	}
	return items, nil
}

// Count returns how many rows exist for the namespace and status.
func (m *MemoryDurable) Count(namespace, status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, entry := range m.entries {
		if entry.Namespace == namespace && entry.Status == status {
			n++
		}
	}
	return n
}
