// Package tasks talks to the task tracker's REST API.
package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"clientflow/api/internal/httpx"
)

const dueDateLayout = "2006-01-02"

// Task is a tracked task as returned by the tracker.
type Task struct {
	ID         string
	ProjectID  string
	Content    string
	AssigneeID string
	Due        *time.Time
	// DueIsDate marks a date-only due; Due then holds that date at UTC midnight.
	DueIsDate bool
}

// NewTask is the payload for task creation.
type NewTask struct {
	ProjectID   string
	Content     string
	Description string
	AssigneeID  string
	Due         *time.Time
}

type Collaborator struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type wireDue struct {
	Date     string `json:"date"`
	Datetime string `json:"datetime,omitempty"`
}

type wireTask struct {
	ID         string   `json:"id"`
	ProjectID  string   `json:"project_id"`
	Content    string   `json:"content"`
	AssigneeID string   `json:"assignee_id,omitempty"`
	Due        *wireDue `json:"due,omitempty"`
}

type createRequest struct {
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	MaxRetries uint
	RetryDelay time.Duration
}

type Client struct {
	http *httpx.Client
}

func NewClient(opts Options) *Client {
	return &Client{http: httpx.New(httpx.Options{
		Service:    "task tracker",
		BaseURL:    opts.BaseURL,
		HTTPClient: opts.HTTPClient,
		Headers:    http.Header{"Authorization": []string{"Bearer " + strings.TrimSpace(opts.Token)}},
		MaxRetries: opts.MaxRetries,
		RetryDelay: opts.RetryDelay,
	})}
}

func (c *Client) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	path := "/tasks"
	if projectID != "" {
		path += "?project_id=" + url.QueryEscape(projectID)
	}
	var wire []wireTask
	if err := c.http.Get(ctx, path, &wire); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]Task, 0, len(wire))
	for _, item := range wire {
		out = append(out, fromWire(item))
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, task NewTask) (Task, error) {
	req := createRequest{
		Content:     task.Content,
		Description: task.Description,
		ProjectID:   task.ProjectID,
		AssigneeID:  task.AssigneeID,
	}
	if task.Due != nil {
		req.DueDate = task.Due.Format(dueDateLayout)
	}
	var created wireTask
	if err := c.http.Post(ctx, "/tasks", req, &created); err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return fromWire(created), nil
}

func (c *Client) ListCollaborators(ctx context.Context, projectID string) ([]Collaborator, error) {
	var out []Collaborator
	if err := c.http.Get(ctx, "/projects/"+url.PathEscape(projectID)+"/collaborators", &out); err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	return out, nil
}

func fromWire(item wireTask) Task {
	task := Task{
		ID:         item.ID,
		ProjectID:  item.ProjectID,
		Content:    item.Content,
		AssigneeID: item.AssigneeID,
	}
	if item.Due != nil {
		if item.Due.Datetime != "" {
			if parsed, err := time.Parse(time.RFC3339, item.Due.Datetime); err == nil {
				task.Due = &parsed
				return task
			}
		}
		if parsed, err := time.Parse(dueDateLayout, item.Due.Date); err == nil {
			task.Due = &parsed
			task.DueIsDate = true
		}
	}
	return task
}

// DueBy keeps tasks due on or before day's calendar date in day's location
// and returns at most limit of them, most recent due date first.
func DueBy(list []Task, day time.Time, limit int) []Task {
	today := day.Format(dueDateLayout)
	out := make([]Task, 0, len(list))
	for _, task := range list {
		if task.Due != nil && task.DueDate(day.Location()) <= today {
			out = append(out, task)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Due.After(*out[j].Due)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DueDate is the calendar date the task is due in loc. Date-only dues are
// the same date everywhere.
func (t Task) DueDate(loc *time.Location) string {
	if t.Due == nil {
		return ""
	}
	if t.DueIsDate {
		return t.Due.Format(dueDateLayout)
	}
	return t.Due.In(loc).Format(dueDateLayout)
}

// ResolveAssignee maps a free-text assignee name onto a collaborator id.
// Full name, first name and email local part are tried in that order.
func ResolveAssignee(collaborators []Collaborator, name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", false
	}
	for _, c := range collaborators {
		if strings.ToLower(strings.TrimSpace(c.Name)) == needle || strings.ToLower(c.Email) == needle {
			return c.ID, true
		}
	}
	for _, c := range collaborators {
		fields := strings.Fields(strings.ToLower(c.Name))
		if len(fields) > 0 && fields[0] == needle {
			return c.ID, true
		}
	}
	for _, c := range collaborators {
		local, _, _ := strings.Cut(strings.ToLower(c.Email), "@")
		if local != "" && local == needle {
			return c.ID, true
		}
	}
	return "", false
}
