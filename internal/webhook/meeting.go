package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clientflow/api/internal/reconcile"
)

type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ActionItem struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// Meeting is the normalized shape shared by the webhook and the poller.
type Meeting struct {
	Title        string        `json:"meeting_title"`
	Date         time.Time     `json:"-"`
	RawDate      string        `json:"meeting_date"`
	Transcript   string        `json:"transcript"`
	Summary      string        `json:"summary"`
	ActionItems  []ActionItem  `json:"action_items"`
	Participants []Participant `json:"participants"`
	URL          string        `json:"fathom_url,omitempty"`
}

// DecodeWebhook validates and decodes a webhook body.
func DecodeWebhook(raw []byte) (Meeting, error) {
	if err := ValidatePayload(raw); err != nil {
		return Meeting{}, err
	}
	var meeting Meeting
	if err := json.Unmarshal(raw, &meeting); err != nil {
		return Meeting{}, fmt.Errorf("decode meeting payload: %w", err)
	}
	meeting.Title = strings.TrimSpace(meeting.Title)
	meeting.Date = parseDate(meeting.RawDate)
	return meeting, nil
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// Emails returns participant addresses in payload order.
func (m Meeting) Emails() []string {
	out := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		if email := strings.TrimSpace(p.Email); email != "" {
			out = append(out, email)
		}
	}
	return out
}

// DedupKey is the ledger id both the webhook and the poller converge on:
// the recording URL when present, otherwise a hash of title and start time.
func (m Meeting) DedupKey() string {
	if url := strings.TrimSpace(m.URL); url != "" {
		return url
	}
	stamp := m.RawDate
	if !m.Date.IsZero() {
		stamp = m.Date.UTC().Format("2006-01-02T15:04")
	}
	sum := sha256.Sum256([]byte(strings.ToLower(m.Title) + "|" + stamp))
	return hex.EncodeToString(sum[:16])
}

// Items converts payload action items for reconciliation and task creation.
func (m Meeting) Items() []reconcile.ActionItem {
	items := make([]reconcile.ActionItem, 0, len(m.ActionItems))
	for _, raw := range m.ActionItems {
		description := strings.TrimSpace(raw.Description)
		if description == "" {
			continue
		}
		item := reconcile.ActionItem{Description: description, Assignee: strings.TrimSpace(raw.Assignee)}
		if due := parseDate(raw.DueDate); !due.IsZero() {
			item.DueDate = &due
		}
		items = append(items, item)
	}
	return items
}
