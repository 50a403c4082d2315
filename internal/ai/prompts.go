package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/reconcile"
	"clientflow/api/internal/tasks"
)

// ThreadDigest is the part of a recent email thread that goes into an agenda
// prompt.
type ThreadDigest struct {
	Subject string
	From    string
	Date    time.Time
	Snippet string
}

type AgendaRequest struct {
	ClientName   string
	MeetingTitle string
	MeetingStart time.Time
	Attendees    []string
	Tasks        []tasks.Task
	Threads      []ThreadDigest
	LastNotes    string
	OpenItems    []reconcile.ActionItem
}

const agendaSystem = "You prepare concise meeting agendas for a consultant. Reply with an HTML fragment only."

func agendaPrompt(req AgendaRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client: %s\nMeeting: %s\nStarts: %s\n", req.ClientName, req.MeetingTitle, req.MeetingStart.Format(time.RFC1123))
	if len(req.Attendees) > 0 {
		fmt.Fprintf(&b, "Attendees: %s\n", strings.Join(req.Attendees, ", "))
	}

	b.WriteString("\nOpen tasks:\n")
	if len(req.Tasks) == 0 {
		b.WriteString("- none\n")
	}
	for _, task := range req.Tasks {
		due := "no due date"
		if task.Due != nil {
			due = "due " + task.Due.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "- %s (%s)\n", task.Content, due)
	}

	b.WriteString("\nRecent email threads:\n")
	if len(req.Threads) == 0 {
		b.WriteString("- none\n")
	}
	for _, thread := range req.Threads {
		fmt.Fprintf(&b, "- %s | %s | %s: %s\n", thread.Date.Format("2006-01-02"), thread.From, thread.Subject, thread.Snippet)
	}

	if strings.TrimSpace(req.LastNotes) != "" {
		b.WriteString("\nNotes from the previous meeting:\n")
		b.WriteString(req.LastNotes)
		b.WriteString("\n")
	}

	if len(req.OpenItems) > 0 {
		b.WriteString("\nAction items from earlier meetings with no matching task:\n")
		for _, item := range req.OpenItems {
			fmt.Fprintf(&b, "- %s\n", item.Description)
		}
	}

	b.WriteString("\nWrite an agenda with a short recap, discussion topics and follow-ups.")
	return b.String()
}

// GenerateAgenda returns a cleaned HTML fragment.
func (c *Client) GenerateAgenda(ctx context.Context, req AgendaRequest) (string, error) {
	text, err := c.Complete(ctx, agendaSystem, agendaPrompt(req))
	if err != nil {
		return "", err
	}
	html, err := CleanHTML(text)
	if err != nil {
		return "", apperr.External(service, 0, "agenda output rejected", err)
	}
	return html, nil
}

const extractSystem = `You extract action items from meeting notes. Reply with a JSON array only: [{"description": "...", "assignee": "...", "due_date": "YYYY-MM-DD"}]. Use empty strings for unknown fields.`

type extractedItem struct {
	Description string `json:"description"`
	Assignee    string `json:"assignee"`
	DueDate     string `json:"due_date"`
}

// ExtractActionItems asks the model for a JSON list of action items.
func (c *Client) ExtractActionItems(ctx context.Context, text string) ([]reconcile.ActionItem, error) {
	out, err := c.Complete(ctx, extractSystem, text)
	if err != nil {
		return nil, err
	}
	items, err := ParseActionItems(out)
	if err != nil {
		return nil, apperr.External(service, 0, "action items output rejected", err)
	}
	return items, nil
}

// ParseActionItems decodes a JSON array of action items, tolerating a code
// fence and prose around the array.
func ParseActionItems(text string) ([]reconcile.ActionItem, error) {
	cleaned := StripFences(text)
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no json array in output")
	}

	var raw []extractedItem
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode action items: %w", err)
	}

	items := make([]reconcile.ActionItem, 0, len(raw))
	for _, r := range raw {
		description := strings.TrimSpace(r.Description)
		if description == "" {
			continue
		}
		item := reconcile.ActionItem{Description: description, Assignee: strings.TrimSpace(r.Assignee)}
		if due, err := time.Parse("2006-01-02", strings.TrimSpace(r.DueDate)); err == nil {
			item.DueDate = &due
		}
		items = append(items, item)
	}
	return items, nil
}
