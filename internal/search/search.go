// Package search makes meeting notes and the processing log searchable.
// Meilisearch serves note queries when it is healthy; Postgres full-text
// search is always available as the fallback.
package search

import (
	"context"
	"time"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultNote ResultType = "note"
	ResultLog  ResultType = "log"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	ClientID string     `json:"clientId,omitempty"`
	Kind     string     `json:"kind,omitempty"`
	Date     string     `json:"date,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	ClientID   string
	Kind       string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// NoteRecord is the data we index for a notes section.
type NoteRecord struct {
	ID          string `json:"id"`
	ClientID    string `json:"clientId"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	MeetingDate string `json:"meetingDate,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

func dateString(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
