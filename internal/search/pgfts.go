package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS searches meeting_notes and processing_log with Postgres full-text
// search.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL across notes and log rows, ranked by ts_rank with
// ts_headline snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(q.Offset, 0)

	subQueries, args := buildSubQueries(q)
	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) sub", union), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, title, snippet, client_id, kind, at
		FROM (%s) sub
		ORDER BY rank DESC, at DESC NULLS LAST
		LIMIT %d OFFSET %d`, union, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		var typ string
		var at *time.Time
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ClientID, &r.Kind, &at); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		r.Date = dateString(at)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func buildSubQueries(q Query) ([]string, []any) {
	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2
	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultNote {
		where := "n.fts @@ " + tsQuery
		if q.ClientID != "" {
			where += fmt.Sprintf(" AND n.client_id = $%d", argN)
			args = append(args, q.ClientID)
			argN++
		}
		if q.Kind != "" {
			where += fmt.Sprintf(" AND n.kind = $%d", argN)
			args = append(args, q.Kind)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'note'::text AS type, n.id, n.title,
				ts_headline('english', coalesce(n.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				n.client_id, n.kind, coalesce(n.meeting_date, n.created_at) AS at,
				ts_rank(n.fts, %s) AS rank
			FROM meeting_notes n
			WHERE %s`, tsQuery, tsQuery, where))
	}

	// the log has client names, not ids, so a client filter excludes it
	if (q.FilterType == "" && q.ClientID == "" && q.Kind == "") || q.FilterType == ResultLog {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'log'::text AS type, l.id::text, l.action_type AS title,
				ts_headline('english', coalesce(l.details, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				l.client AS client_id, l.status AS kind, l.created_at AS at,
				ts_rank(l.fts, %s) AS rank
			FROM processing_log l
			WHERE l.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}
	return subQueries, args
}

// LoadNotes returns every notes row for a full reindex.
func (p *PgFTS) LoadNotes(ctx context.Context) ([]NoteRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, client_id, kind, title, body, meeting_date, created_at
		FROM meeting_notes
	`)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()

	records := make([]NoteRecord, 0)
	for rows.Next() {
		var r NoteRecord
		var meetingDate *time.Time
		var createdAt time.Time
		if err := rows.Scan(&r.ID, &r.ClientID, &r.Kind, &r.Title, &r.Body, &meetingDate, &createdAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		r.MeetingDate = dateString(meetingDate)
		r.CreatedAt = createdAt.Unix()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return records, nil
}
