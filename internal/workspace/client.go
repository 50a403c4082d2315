// Package workspace talks to the workspace gateway: a small REST facade over
// the calendar, the mailbox and mailbox settings.
package workspace

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/filterguard"
	"clientflow/api/internal/httpx"
)

type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Organizer string    `json:"organizer"`
	Attendees []string  `json:"attendees"`
}

type Thread struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	From    string    `json:"from"`
	Date    time.Time `json:"date"`
	Snippet string    `json:"snippet"`
}

type Message struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"threadId"`
	From     string    `json:"from"`
	To       []string  `json:"to"`
	Cc       []string  `json:"cc"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Date     time.Time `json:"date"`
	Labels   []string  `json:"labels"`
}

// Recipients returns To then Cc.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc))
	out = append(out, m.To...)
	return append(out, m.Cc...)
}

type Draft struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// DraftState reports whether a draft has been sent and, if so, as which
// message.
type DraftState struct {
	ID        string `json:"id"`
	Sent      bool   `json:"sent"`
	MessageID string `json:"messageId"`
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
		Service:    "workspace",
		BaseURL:    opts.BaseURL,
		Headers:    http.Header{"Authorization": []string{"Bearer " + opts.Token}},
		HTTPClient: opts.HTTPClient,
		MaxRetries: opts.MaxRetries,
		RetryDelay: opts.RetryDelay,
	})}
}

func notFound(err error) error {
	var external *apperr.ExternalServiceError
	if errors.As(err, &external) && external.Status == http.StatusNotFound {
		return filterguard.ErrNotFound
	}
	return err
}

// ListEvents returns events starting in [from, to).
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	query := url.Values{}
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))
	var resp struct {
		Events []Event `json:"events"`
	}
	if err := c.http.Get(ctx, "/calendar/events?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// SearchThreads runs a mailbox search and returns at most limit threads,
// newest first.
func (c *Client) SearchThreads(ctx context.Context, q string, after time.Time, limit int) ([]Thread, error) {
	query := url.Values{}
	query.Set("q", q)
	query.Set("after", after.UTC().Format(time.RFC3339))
	query.Set("limit", strconv.Itoa(limit))
	var resp struct {
		Threads []Thread `json:"threads"`
	}
	if err := c.http.Get(ctx, "/mail/threads?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

// FirstMessages returns the first message of every thread carrying label
// whose first message is newer than after.
func (c *Client) FirstMessages(ctx context.Context, label string, after time.Time) ([]Message, error) {
	query := url.Values{}
	query.Set("label", label)
	query.Set("after", after.UTC().Format(time.RFC3339))
	query.Set("first_in_thread", "true")
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.http.Get(ctx, "/mail/messages?"+query.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) GetMessage(ctx context.Context, id string) (Message, error) {
	var message Message
	if err := c.http.Get(ctx, "/mail/messages/"+url.PathEscape(id), &message); err != nil {
		return Message{}, notFound(err)
	}
	return message, nil
}

func (c *Client) CreateDraft(ctx context.Context, draft Draft) (string, error) {
	var resp DraftState
	if err := c.http.Post(ctx, "/mail/drafts", draft, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) DraftState(ctx context.Context, id string) (DraftState, error) {
	var resp DraftState
	if err := c.http.Get(ctx, "/mail/drafts/"+url.PathEscape(id), &resp); err != nil {
		return DraftState{}, notFound(err)
	}
	return resp, nil
}

// LabelMessage adds a label by name to a message's thread.
func (c *Client) LabelMessage(ctx context.Context, messageID, label string) error {
	return c.http.Post(ctx, "/mail/messages/"+url.PathEscape(messageID)+"/labels", map[string]string{"label": label}, nil)
}

func (c *Client) ListLabels(ctx context.Context) ([]filterguard.Label, error) {
	var resp struct {
		Labels []filterguard.Label `json:"labels"`
	}
	if err := c.http.Get(ctx, "/settings/labels", &resp); err != nil {
		return nil, err
	}
	return resp.Labels, nil
}

func (c *Client) GetLabel(ctx context.Context, id string) (filterguard.Label, error) {
	var label filterguard.Label
	if err := c.http.Get(ctx, "/settings/labels/"+url.PathEscape(id), &label); err != nil {
		return filterguard.Label{}, notFound(err)
	}
	return label, nil
}

func (c *Client) CreateLabel(ctx context.Context, name string) (filterguard.Label, error) {
	var label filterguard.Label
	if err := c.http.Post(ctx, "/settings/labels", map[string]string{"name": name}, &label); err != nil {
		return filterguard.Label{}, err
	}
	return label, nil
}

func (c *Client) DeleteLabel(ctx context.Context, id string) error {
	return notFound(c.http.Delete(ctx, "/settings/labels/"+url.PathEscape(id)))
}

func (c *Client) ListFilters(ctx context.Context) ([]filterguard.Filter, error) {
	var resp struct {
		Filters []filterguard.Filter `json:"filters"`
	}
	if err := c.http.Get(ctx, "/settings/filters", &resp); err != nil {
		return nil, err
	}
	return resp.Filters, nil
}

func (c *Client) GetFilter(ctx context.Context, id string) (filterguard.Filter, error) {
	var filter filterguard.Filter
	if err := c.http.Get(ctx, "/settings/filters/"+url.PathEscape(id), &filter); err != nil {
		return filterguard.Filter{}, notFound(err)
	}
	return filter, nil
}

func (c *Client) CreateFilter(ctx context.Context, filter filterguard.Filter) (filterguard.Filter, error) {
	var created filterguard.Filter
	if err := c.http.Post(ctx, "/settings/filters", filter, &created); err != nil {
		return filterguard.Filter{}, err
	}
	return created, nil
}

func (c *Client) DeleteFilter(ctx context.Context, id string) error {
	return notFound(c.http.Delete(ctx, "/settings/filters/"+url.PathEscape(id)))
}

var _ filterguard.Settings = (*Client)(nil)
