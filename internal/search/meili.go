package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxNotes = "clientflow_notes"

// Meili indexes and searches notes sections via Meilisearch. It only knows
// about notes; log queries always go to Postgres.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	logger  *slog.Logger
}

// NewMeili creates a Meilisearch client and configures the notes index. An
// unreachable server is not an error; the health loop picks it up later.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		logger: logger,
	}

	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", "url", url, "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxNotes, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", idxNotes, "error", err)
	}
	index := m.client.Index(idxNotes)
	filterable := []interface{}{"clientId", "kind"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes failed", "index", idxNotes, "error", err)
	}
	searchable := []string{"title", "body"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes failed", "index", idxNotes, "error", err)
	}
	sortable := []string{"createdAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.logger.Warn("update sortable attributes failed", "index", idxNotes, "error", err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if q.FilterType != "" && q.FilterType != ResultNote {
		return nil, 0, nil
	}
	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	req := &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"title", "body"},
		AttributesToCrop:      []string{"body"},
		CropLength:            30,
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filter := meiliFilter(q); filter != "" {
		req.Filter = filter
	}

	resp, err := m.client.Index(idxNotes).Search(q.Text, req)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}
	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func meiliFilter(q Query) string {
	var filters []string
	if q.ClientID != "" {
		filters = append(filters, fmt.Sprintf("clientId = %q", q.ClientID))
	}
	if q.Kind != "" {
		filters = append(filters, fmt.Sprintf("kind = %q", q.Kind))
	}
	return strings.Join(filters, " AND ")
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		Type:     ResultNote,
		ID:       decodeString(hit, "id"),
		ClientID: decodeString(hit, "clientId"),
		Kind:     decodeString(hit, "kind"),
		Date:     decodeString(hit, "meetingDate"),
		Title:    firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Snippet:  firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body")),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexNotes adds or replaces notes records.
func (m *Meili) IndexNotes(records []NoteRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxNotes).AddDocuments(records, nil)
	return err
}
