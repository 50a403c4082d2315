package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clientflow/api/internal/clients"
)

func (s *PostgresStore) AppendProcessingLog(ctx context.Context, entry ProcessingLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_log (action_type, client, details, status)
		VALUES ($1, $2, $3, $4)
	`, entry.ActionType, entry.Client, entry.Details, entry.Status)
	if err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProcessingLog(ctx context.Context, filter ProcessingLogFilter) ([]ProcessingLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, action_type, client, details, status
		FROM processing_log
		WHERE ($1='' OR action_type=$1)
			AND ($2='' OR status=$2)
			AND ($3='' OR client=$3)
			AND ($4='' OR fts @@ plainto_tsquery('english', $4))
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, filter.ActionType, filter.Status, filter.Client, filter.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("list processing log: %w", err)
	}
	defer rows.Close()

	items := make([]ProcessingLogEntry, 0)
	for rows.Next() {
		var item ProcessingLogEntry
		if err := rows.Scan(&item.ID, &item.CreatedAt, &item.ActionType, &item.Client, &item.Details, &item.Status); err != nil {
			return nil, fmt.Errorf("scan processing log: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing log: %w", err)
	}
	return items, nil
}

// PruneProcessingLog deletes processing-log rows older than the cutoff.
// Ledger rows are never pruned.
func (s *PostgresStore) PruneProcessingLog(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM processing_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune processing log: %w", err)
	}
	return result.RowsAffected()
}

// RecordUnmatched implements clients.AuditSink.
func (s *PostgresStore) RecordUnmatched(ctx context.Context, record clients.UnmatchedRecord) error {
	emails, err := encodeJSON(nonNilStrings(record.ParticipantEmails), "[]")
	if err != nil {
		return err
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO unmatched (created_at, item_type, details, participant_emails)
		VALUES ($1, $2, $3, $4::jsonb)
	`, createdAt, record.ItemType, record.Details, emails)
	if err != nil {
		return fmt.Errorf("record unmatched: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUnmatched(ctx context.Context, includeResolved bool, limit int) ([]UnmatchedEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, item_type, details, participant_emails, resolved, resolved_at
		FROM unmatched
		WHERE $1 OR NOT resolved
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, includeResolved, limit)
	if err != nil {
		return nil, fmt.Errorf("list unmatched: %w", err)
	}
	defer rows.Close()

	items := make([]UnmatchedEntry, 0)
	for rows.Next() {
		var item UnmatchedEntry
		var emailsRaw []byte
		if err := rows.Scan(&item.ID, &item.CreatedAt, &item.ItemType, &item.Details, &emailsRaw, &item.Resolved, &item.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan unmatched: %w", err)
		}
		_ = json.Unmarshal(emailsRaw, &item.ParticipantEmails)
		item.ParticipantEmails = nonNilStrings(item.ParticipantEmails)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unmatched: %w", err)
	}
	return items, nil
}

// ResolveUnmatched flags an audit row as handled. It reports false when the
// row does not exist or was already resolved.
func (s *PostgresStore) ResolveUnmatched(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE unmatched SET resolved=TRUE, resolved_at=NOW()
		WHERE id=$1 AND NOT resolved
	`, id)
	if err != nil {
		return false, fmt.Errorf("resolve unmatched: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve unmatched rows: %w", err)
	}
	return affected > 0, nil
}
