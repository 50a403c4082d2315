// Package ai calls the hosted language model that drafts agendas and pulls
// action items out of meeting summaries.
package ai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/httpx"
)

const service = "ai"

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
	MaxRetries uint
	RetryDelay time.Duration
}

type Client struct {
	http      *httpx.Client
	apiKey    string
	model     string
	maxTokens int
}

func NewClient(opts Options) *Client {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Client{
		http: httpx.New(httpx.Options{
			Service: service,
			BaseURL: opts.BaseURL,
			Headers: http.Header{
				"X-Api-Key":         []string{opts.APIKey},
				"Anthropic-Version": []string{"2023-06-01"},
			},
			HTTPClient: opts.HTTPClient,
			MaxRetries: opts.MaxRetries,
			RetryDelay: opts.RetryDelay,
		}),
		apiKey:    strings.TrimSpace(opts.APIKey),
		model:     strings.TrimSpace(opts.Model),
		maxTokens: maxTokens,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends one user turn and returns the concatenated text blocks.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", apperr.Config(service, "CLIENTFLOW_AI_API_KEY")
	}
	if c.model == "" {
		return "", apperr.Config(service, "CLIENTFLOW_AI_MODEL")
	}

	var resp messagesResponse
	err := c.http.Post(ctx, "/v1/messages", messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	}, &resp)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", apperr.External(service, 0, "empty completion", nil)
	}
	return text, nil
}
