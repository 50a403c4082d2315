package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"clientflow/api/internal/apperr"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestUnconfiguredIsConfigurationError(t *testing.T) {
	err := NewService(Config{}).SendHTMLEmail([]string{"a@example.com"}, "s", "<p>x</p>")
	if !apperr.IsConfiguration(err) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}
}

func TestSendAgenda(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "bot@practice.example", FromName: "Clientflow"})
	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "smtp.example.com:587" || from != "bot@practice.example" {
			t.Errorf("unexpected envelope %s %s", addr, from)
		}
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	start := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	if err := svc.SendAgenda([]string{"owner@practice.example"}, "Acme <Corp>", "Weekly sync", start, "<h2>Topics</h2>"); err != nil {
		t.Fatalf("SendAgenda() error = %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "owner@practice.example" {
		t.Fatalf("to = %v", gotTo)
	}
	for _, want := range []string{"Subject: Agenda: Weekly sync", "From: Clientflow <bot@practice.example>", "<h2>Topics</h2>", "Acme &lt;Corp&gt;", "Wed Mar 4 15:00 UTC"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendFailureIsExternal(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "bot@practice.example"})
	svc.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }

	err := svc.SendHTMLEmail([]string{"a@example.com"}, "s", "<p>x</p>")
	if !apperr.IsExternal(err) {
		t.Fatalf("error = %v, want ExternalServiceError", err)
	}
}
