package store

import (
	"context"
	"fmt"
)

// InsertNoteSection mirrors an appended notes section for search. Re-inserting
// the same section id is ignored.
func (s *PostgresStore) InsertNoteSection(ctx context.Context, section NoteSection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meeting_notes (id, client_id, kind, title, body, meeting_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, section.ID, section.ClientID, section.Kind, section.Title, section.Body, section.MeetingDate)
	if err != nil {
		return fmt.Errorf("insert note section: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNoteSections(ctx context.Context, clientID string, limit int) ([]NoteSection, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, kind, title, body, meeting_date, created_at
		FROM meeting_notes
		WHERE ($1='' OR client_id=$1)
		ORDER BY created_at DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list note sections: %w", err)
	}
	defer rows.Close()

	items := make([]NoteSection, 0)
	for rows.Next() {
		var item NoteSection
		if err := rows.Scan(&item.ID, &item.ClientID, &item.Kind, &item.Title, &item.Body, &item.MeetingDate, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note section: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note sections: %w", err)
	}
	return items, nil
}
