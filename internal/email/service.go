// Package email delivers generated agendas over SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"clientflow/api/internal/apperr"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart message with a plain-text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return apperr.Config("email", "SMTP_HOST")
	}
	if len(to) == 0 {
		return fmt.Errorf("send email: no recipients")
	}
	msg := buildMessage(s.fromHeader(), to, subject, htmlBody)
	if err := s.send(s.server, s.auth, s.config.From, to, msg); err != nil {
		return apperr.External("email", 0, "smtp send", err)
	}
	return nil
}

func buildMessage(from string, to []string, subject, htmlBody string) []byte {
	boundary := "boundary-clientflow"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", strings.ReplaceAll(subject, "\n", " "))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

type AgendaData struct {
	ClientName   string
	MeetingTitle string
	MeetingStart time.Time
	Body         template.HTML
}

// SendAgenda wraps an already cleaned agenda fragment and mails it.
func (s *Service) SendAgenda(to []string, clientName, meetingTitle string, start time.Time, fragment string) error {
	html, err := renderTemplate(agendaEmailTemplate, AgendaData{
		ClientName:   clientName,
		MeetingTitle: meetingTitle,
		MeetingStart: start,
		Body:         template.HTML(fragment),
	})
	if err != nil {
		return fmt.Errorf("render agenda template: %w", err)
	}
	return s.SendHTMLEmail(to, "Agenda: "+meetingTitle, html)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const agendaEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Agenda: {{.MeetingTitle}}</title>
</head>
<body>
    <p><strong>{{.ClientName}}</strong> &middot; {{.MeetingTitle}} &middot; {{.MeetingStart.Format "Mon Jan 2 15:04 MST"}}</p>
    {{.Body}}
</body>
</html>`
