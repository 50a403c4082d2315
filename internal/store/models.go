package store

import "time"

const (
	LedgerPending   = "pending"
	LedgerProcessed = "processed"
)

type LedgerEntry struct {
	ID         int64
	Namespace  string
	ExternalID string
	Status     string
	ClientID   string
	Metadata   map[string]any
	CreatedAt  time.Time
}

type GeneratedAgenda struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"eventId"`
	Title     string    `json:"title"`
	Client    string    `json:"client"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	LogSuccess = "success"
	LogSkipped = "skipped"
	LogError   = "error"
)

type ProcessingLogEntry struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	ActionType string    `json:"actionType"`
	Client     string    `json:"client"`
	Details    string    `json:"details"`
	Status     string    `json:"status"`
}

// ProcessingLogFilter narrows ListProcessingLog. Zero values match everything.
type ProcessingLogFilter struct {
	ActionType string
	Status     string
	Client     string
	Query      string
	Limit      int
}

type UnmatchedEntry struct {
	ID                int64      `json:"id"`
	CreatedAt         time.Time  `json:"createdAt"`
	ItemType          string     `json:"itemType"`
	Details           string     `json:"details"`
	ParticipantEmails []string   `json:"participantEmails"`
	Resolved          bool       `json:"resolved"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
}

const (
	NoteSummary = "summary"
	NoteAgenda  = "agenda"
)

// NoteSection mirrors one section appended to a client's notes document.
type NoteSection struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"clientId"`
	Kind        string     `json:"kind"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	MeetingDate *time.Time `json:"meetingDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
