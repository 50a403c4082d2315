package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// AppendLedgerEntry inserts a durable ledger row. The table is append-only;
// a second append for the same (namespace, external id, status) is a no-op
// and reports inserted=false.
func (s *PostgresStore) AppendLedgerEntry(ctx context.Context, entry LedgerEntry) (bool, error) {
	if entry.Status != LedgerPending && entry.Status != LedgerProcessed {
		return false, fmt.Errorf("append ledger entry: invalid status %q", entry.Status)
	}
	metadata, err := encodeJSON(entry.Metadata, "{}")
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (namespace, external_id, status, client_id, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (namespace, external_id, status) DO NOTHING
	`, entry.Namespace, entry.ExternalID, entry.Status, entry.ClientID, metadata)
	if err != nil {
		return false, fmt.Errorf("append ledger entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append ledger entry rows: %w", err)
	}
	return affected > 0, nil
}

// FindLedgerEntry returns the row for the key with the given status, or
// found=false.
func (s *PostgresStore) FindLedgerEntry(ctx context.Context, namespace, externalID, status string) (LedgerEntry, bool, error) {
	var entry LedgerEntry
	var metadataRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, namespace, external_id, status, client_id, metadata, created_at
		FROM ledger_entries
		WHERE namespace=$1 AND external_id=$2 AND status=$3
	`, namespace, externalID, status).Scan(
		&entry.ID,
		&entry.Namespace,
		&entry.ExternalID,
		&entry.Status,
		&entry.ClientID,
		&metadataRaw,
		&entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return LedgerEntry{}, false, nil
	}
	if err != nil {
		return LedgerEntry{}, false, fmt.Errorf("find ledger entry: %w", err)
	}
	_ = json.Unmarshal(metadataRaw, &entry.Metadata)
	return entry, true, nil
}

// ListPendingLedgerEntries returns pending rows in the namespace that have no
// processed counterpart, oldest first.
func (s *PostgresStore) ListPendingLedgerEntries(ctx context.Context, namespace string) ([]LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.namespace, p.external_id, p.status, p.client_id, p.metadata, p.created_at
		FROM ledger_entries p
		WHERE p.namespace=$1
			AND p.status='pending'
			AND NOT EXISTS (
				SELECT 1 FROM ledger_entries d
				WHERE d.namespace=p.namespace AND d.external_id=p.external_id AND d.status='processed'
			)
		ORDER BY p.created_at ASC, p.id ASC
	`, namespace)
	if err != nil {
		return nil, fmt.Errorf("list pending ledger entries: %w", err)
	}
	defer rows.Close()

	items := make([]LedgerEntry, 0)
	for rows.Next() {
		var entry LedgerEntry
		var metadataRaw []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.Namespace,
			&entry.ExternalID,
			&entry.Status,
			&entry.ClientID,
			&metadataRaw,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending ledger entry: %w", err)
		}
		_ = json.Unmarshal(metadataRaw, &entry.Metadata)
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending ledger entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertGeneratedAgenda(ctx context.Context, agenda GeneratedAgenda) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generated_agendas (event_id, title, client)
		VALUES ($1, $2, $3)
	`, agenda.EventID, agenda.Title, agenda.Client)
	if err != nil {
		return fmt.Errorf("insert generated agenda: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountGeneratedAgendas(ctx context.Context, eventID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generated_agendas WHERE event_id=$1`, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count generated agendas: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListGeneratedAgendas(ctx context.Context, limit int) ([]GeneratedAgenda, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, title, client, created_at
		FROM generated_agendas
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list generated agendas: %w", err)
	}
	defer rows.Close()

	items := make([]GeneratedAgenda, 0)
	for rows.Next() {
		var item GeneratedAgenda
		if err := rows.Scan(&item.ID, &item.EventID, &item.Title, &item.Client, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generated agenda: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generated agendas: %w", err)
	}
	return items, nil
}
