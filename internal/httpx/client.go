// Package httpx is the JSON-over-HTTP transport shared by the outbound
// service clients: fixed-backoff retry on transport errors, 429 and 5xx,
// and typed ExternalServiceErrors for everything else.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"clientflow/api/internal/apperr"
)

type Options struct {
	Service    string
	BaseURL    string
	HTTPClient *http.Client
	Headers    http.Header
	MaxRetries uint
	RetryDelay time.Duration
	UserAgent  string
}

type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	headers    http.Header
	maxRetries uint
	retryDelay time.Duration
	userAgent  string
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	headers := opts.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	return &Client{
		service:    opts.Service,
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
		headers:    headers,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}
}

// Do sends payload (JSON-encoded when non-nil) and decodes a 2xx response
// into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.service, err)
		}
		body = encoded
	}
	url := c.baseURL + path

	// lastFailure survives a final RetryAfter so the caller still sees the
	// upstream status.
	var lastFailure error
	operation := func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for key, values := range c.headers {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, apperr.External(c.service, 0, "request failed", err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, apperr.External(c.service, resp.StatusCode, "read response", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return respBody, nil
		}

		failure := apperr.External(c.service, resp.StatusCode, errorMessage(respBody), nil)
		lastFailure = failure
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if seconds := retryAfterSeconds(resp.Header.Get("Retry-After")); seconds > 0 {
				return nil, backoff.RetryAfter(seconds)
			}
			return nil, failure
		}
		return nil, backoff.Permanent(failure)
	}

	respBody, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(c.maxRetries+1),
	)
	if err != nil {
		if apperr.IsExternal(err) {
			return err
		}
		if ctx.Err() == nil && lastFailure != nil {
			return lastFailure
		}
		return apperr.External(c.service, 0, "request failed", err)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.External(c.service, 0, "malformed response", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, payload, out any) error {
	return c.Do(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

func errorMessage(body []byte) string {
	message := strings.TrimSpace(string(body))
	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		for _, key := range []string{"message", "error", "detail"} {
			if value, ok := parsed[key].(string); ok && strings.TrimSpace(value) != "" {
				return value
			}
		}
		if nested, ok := parsed["error"].(map[string]any); ok {
			if value, ok := nested["message"].(string); ok {
				return value
			}
		}
	}
	if len(message) > 300 {
		message = message[:300]
	}
	return message
}

func retryAfterSeconds(header string) int {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
