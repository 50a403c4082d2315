package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"clientflow/api/internal/auth"
	"clientflow/api/internal/clients"
	"clientflow/api/internal/rbac"
	"clientflow/api/internal/search"
	"clientflow/api/internal/store"
	"clientflow/api/internal/webhook"
	"clientflow/api/internal/workflow"
)

// Store is the slice of the Postgres store the API reads. store.PostgresStore
// implements it.
type Store interface {
	Ping(ctx context.Context) error
	ListProcessingLog(ctx context.Context, filter store.ProcessingLogFilter) ([]store.ProcessingLogEntry, error)
	ListUnmatched(ctx context.Context, includeResolved bool, limit int) ([]store.UnmatchedEntry, error)
	ResolveUnmatched(ctx context.Context, id int64) (bool, error)
	ListGeneratedAgendas(ctx context.Context, limit int) ([]store.GeneratedAgenda, error)
	ListClients(ctx context.Context) ([]clients.Client, error)
}

type MeetingHandler interface {
	HandleMeeting(ctx context.Context, meeting webhook.Meeting) (workflow.MeetingOutcome, error)
}

type Runner interface {
	RunNow(ctx context.Context, name string) (workflow.Report, error)
	Names() []string
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type RefusalCounter interface {
	Refusals() int64
}

// Deps wires the service. Search and Guard may be nil.
type Deps struct {
	Store    Store
	Ledger   Pinger
	Meetings MeetingHandler
	Runner   Runner
	Search   Searcher
	Guard    RefusalCounter
	Verifier *webhook.Verifier
	Tokens   *auth.Issuer
	Logger   *slog.Logger
}

type Service struct {
	Deps
}

func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{Deps: deps}
}

// Session is an authenticated operator.
type Session struct {
	Subject   string
	Role      rbac.Role
	ExpiresAt time.Time
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := s.Tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Subject:   claims.Sub,
		Role:      rbac.Normalize(claims.Role),
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

// Readiness pings the durable store and the ledger's fast tier. Only the
// database decides readiness; a cache outage degrades but does not fail it.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]any) {
	checks := map[string]any{"database": map[string]any{"status": "ok"}}
	ready := true
	if err := s.Store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if s.Ledger != nil {
		if err := s.Ledger.Ping(ctx); err != nil {
			checks["cache"] = map[string]any{"status": "degraded", "error": err.Error()}
		} else {
			checks["cache"] = map[string]any{"status": "ok"}
		}
	}
	return ready, checks
}

// ReceiveMeeting verifies, validates and hands a webhook body to the
// workflow. A duplicate delivery is a success.
func (s *Service) ReceiveMeeting(ctx context.Context, body []byte, signature string) (workflow.MeetingOutcome, error) {
	if err := s.Verifier.Check(body, signature); err != nil {
		return workflow.MeetingOutcome{}, err
	}
	meeting, err := webhook.DecodeWebhook(body)
	if err != nil {
		return workflow.MeetingOutcome{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid meeting payload", map[string]any{"reason": err.Error()})
	}
	return s.Meetings.HandleMeeting(ctx, meeting)
}

func (s *Service) ProcessingLog(ctx context.Context, filter store.ProcessingLogFilter) ([]store.ProcessingLogEntry, error) {
	return s.Store.ListProcessingLog(ctx, filter)
}

func (s *Service) Unmatched(ctx context.Context, includeResolved bool, limit int) ([]store.UnmatchedEntry, error) {
	return s.Store.ListUnmatched(ctx, includeResolved, limit)
}

func (s *Service) ResolveUnmatched(ctx context.Context, session Session, id int64) error {
	ok, err := s.Store.ResolveUnmatched(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Unmatched entry not found or already resolved", nil)
	}
	s.Logger.Info("unmatched entry resolved", "id", id, "by", session.Subject)
	return nil
}

func (s *Service) Agendas(ctx context.Context, limit int) ([]store.GeneratedAgenda, error) {
	return s.Store.ListGeneratedAgendas(ctx, limit)
}

func (s *Service) Clients(ctx context.Context) ([]clients.Client, error) {
	return s.Store.ListClients(ctx)
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if s.Deps.Search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "NOT_CONFIGURED", "Search is not configured", nil)
	}
	return s.Deps.Search.Search(ctx, q), nil
}

// Trigger runs one workflow batch now on behalf of session. Filter sync
// mutates mailbox settings and needs admin.
func (s *Service) Trigger(ctx context.Context, session Session, name string) (workflow.Report, error) {
	action := rbac.ActionOperate
	if name == "filters" {
		action = rbac.ActionAdmin
	}
	if !s.Can(session.Role, action) {
		return workflow.Report{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	s.Logger.Info("manual run requested", "trigger", name, "by", session.Subject)
	return s.Runner.RunNow(ctx, name)
}

func (s *Service) Triggers() []string {
	return s.Runner.Names()
}

func (s *Service) GuardRefusals() int64 {
	if s.Guard == nil {
		return 0
	}
	return s.Guard.Refusals()
}
