package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/httpx"
)

const maxMeetingPages = 10

type MeetingsOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries uint
	RetryDelay time.Duration
}

// MeetingsClient lists recorded meetings from the recorder's REST API.
type MeetingsClient struct {
	http   *httpx.Client
	apiKey string
}

func NewMeetingsClient(opts MeetingsOptions) *MeetingsClient {
	return &MeetingsClient{
		http: httpx.New(httpx.Options{
			Service:    "meetings",
			BaseURL:    opts.BaseURL,
			Headers:    http.Header{"X-Api-Key": []string{opts.APIKey}},
			HTTPClient: opts.HTTPClient,
			MaxRetries: opts.MaxRetries,
			RetryDelay: opts.RetryDelay,
		}),
		apiKey: opts.APIKey,
	}
}

// ListRecent returns meetings created after since, following cursors.
func (c *MeetingsClient) ListRecent(ctx context.Context, since time.Time) ([]Meeting, error) {
	if c.apiKey == "" {
		return nil, apperr.Config("meetings", "CLIENTFLOW_MEETINGS_API_KEY")
	}

	var meetings []Meeting
	cursor := ""
	for page := 0; page < maxMeetingPages; page++ {
		query := url.Values{}
		query.Set("created_after", since.UTC().Format(time.RFC3339))
		query.Set("include_transcript", "true")
		query.Set("include_summary", "true")
		query.Set("include_action_items", "true")
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var raw json.RawMessage
		if err := c.http.Get(ctx, "/meetings?"+query.Encode(), &raw); err != nil {
			return nil, err
		}
		body := gjson.ParseBytes(raw)
		items := body
		if !body.IsArray() {
			items = first(body, "items", "meetings", "data")
		}
		items.ForEach(func(_, item gjson.Result) bool {
			meetings = append(meetings, normalizeResult(item))
			return true
		})

		cursor = body.Get("next_cursor").String()
		if cursor == "" {
			break
		}
	}
	return meetings, nil
}
