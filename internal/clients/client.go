// Package clients holds the client directory model and the deterministic
// identity matcher that maps participant addresses to at most one client.
package clients

import (
	"context"
	"strings"
	"time"
)

// Labels are the mailbox labels owned by one client.
type Labels struct {
	Base      string `yaml:"base" json:"base"`
	Summaries string `yaml:"summaries" json:"summaries"`
	Agendas   string `yaml:"agendas" json:"agendas"`
}

// Client is a directory record. It is read once per run and passed by value.
type Client struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Contacts      []string `yaml:"contacts" json:"contacts"`
	Domains       []string `yaml:"domains" json:"domains"`
	NotesDocID    string   `yaml:"notes_doc" json:"notesDocId"`
	TaskProjectID string   `yaml:"task_project" json:"taskProjectId"`
	Labels        Labels   `yaml:"labels" json:"labels"`
	SetupComplete bool     `yaml:"setup_complete" json:"setupComplete"`
}

// DefaultLabels returns the label names the onboarding flow assigns.
func DefaultLabels(name string) Labels {
	base := "Client: " + strings.TrimSpace(name)
	return Labels{
		Base:      base,
		Summaries: base + "/Meeting Summaries",
		Agendas:   base + "/Meeting Agendas",
	}
}

// WithDefaults fills any blank label with its default name.
func (c Client) WithDefaults() Client {
	defaults := DefaultLabels(c.Name)
	if c.Labels.Base == "" {
		c.Labels.Base = defaults.Base
	}
	if c.Labels.Summaries == "" {
		c.Labels.Summaries = defaults.Summaries
	}
	if c.Labels.Agendas == "" {
		c.Labels.Agendas = defaults.Agendas
	}
	if c.ID == "" {
		c.ID = strings.ToLower(strings.Join(strings.Fields(c.Name), "-"))
	}
	return c
}

// Directory lists client records in a stable order. The order is significant:
// it is the tie-break for matching.
type Directory interface {
	ListClients(ctx context.Context) ([]Client, error)
}

// UnmatchedRecord is one audit row for an identity that matched nothing.
type UnmatchedRecord struct {
	ItemType          string
	Details           string
	ParticipantEmails []string
	CreatedAt         time.Time
}

// AuditSink receives unmatched identities.
type AuditSink interface {
	RecordUnmatched(ctx context.Context, record UnmatchedRecord) error
}
