package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clientflow/api/internal/apperr"
)

func newTestServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "summarizer", req.Model)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": reply}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(url string) *Client {
	return NewClient(Options{BaseURL: url, APIKey: "secret", Model: "summarizer", RetryDelay: time.Millisecond})
}

func TestGenerateAgendaExtractsBody(t *testing.T) {
	server := newTestServer(t, "```html\n<html><head></head><body><h2>Agenda</h2></body></html>\n```")

	html, err := newTestClient(server.URL).GenerateAgenda(context.Background(), AgendaRequest{ClientName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "<h2>Agenda</h2>", html)
}

func TestGenerateAgendaRejectsBlankOutput(t *testing.T) {
	server := newTestServer(t, "```html\n<body>  </body>\n```")

	_, err := newTestClient(server.URL).GenerateAgenda(context.Background(), AgendaRequest{})
	require.Error(t, err)
	assert.True(t, apperr.IsExternal(err))
	assert.True(t, errors.Is(err, ErrEmptyOutput))
}

func TestMissingKeyIsConfigurationError(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://unused", Model: "summarizer"})
	_, err := client.Complete(context.Background(), "", "hi")
	assert.True(t, apperr.IsConfiguration(err))

	client = NewClient(Options{BaseURL: "http://unused", APIKey: "k"})
	_, err = client.Complete(context.Background(), "", "hi")
	assert.True(t, apperr.IsConfiguration(err))
}

func TestNonSuccessIsExternalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid key"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), "", "hi")
	var external *apperr.ExternalServiceError
	require.ErrorAs(t, err, &external)
	assert.Equal(t, http.StatusUnauthorized, external.Status)
}

func TestExtractActionItems(t *testing.T) {
	server := newTestServer(t, "Here you go:\n```json\n[{\"description\":\"Send the proposal\",\"assignee\":\"Jane\",\"due_date\":\"2026-03-10\"},{\"description\":\"  \"}]\n```")

	items, err := newTestClient(server.URL).ExtractActionItems(context.Background(), "notes")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Send the proposal", items[0].Description)
	assert.Equal(t, "Jane", items[0].Assignee)
	require.NotNil(t, items[0].DueDate)
	assert.Equal(t, "2026-03-10", items[0].DueDate.Format("2006-01-02"))
}

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "<p>hi</p>", want: "<p>hi</p>"},
		{in: "```\n<p>hi</p>\n```", want: "<p>hi</p>"},
		{in: "<!DOCTYPE html><html><BODY class=\"x\">\n<p>hi</p>\n</BODY></html>", want: "<p>hi</p>"},
		{in: "```html\n```", err: true},
		{in: "   ", err: true},
	}
	for _, tt := range tests {
		got, err := CleanHTML(tt.in)
		if tt.err {
			assert.ErrorIs(t, err, ErrEmptyOutput, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
