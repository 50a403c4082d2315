package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clientflow/api/internal/rbac"
	"clientflow/api/internal/search"
	"clientflow/api/internal/store"
	"clientflow/api/internal/util"
	"clientflow/api/internal/webhook"
)

const maxWebhookBody = 5 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: service.Logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) {
	s.logger.Warn("request forbidden", "path", r.URL.Path, "subject", session.Subject, "role", session.Role, "action", action)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Readiness(ctx)
		status, statusCode := "ready", http.StatusOK
		if !ready {
			status, statusCode = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	// Webhooks authenticate by signature, not by session
	if r.Method == http.MethodPost && r.URL.Path == "/api/webhooks/meetings" {
		s.handleMeetingWebhook(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"subject":       session.Subject,
			"role":          session.Role,
			"expiresAt":     session.ExpiresAt.UTC().Format(time.RFC3339),
		})
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api"))

	switch {
	case len(parts) == 1 && parts[0] == "log" && r.Method == http.MethodGet:
		s.requireThen(w, r, session, rbac.ActionRead, func() (any, error) {
			query := r.URL.Query()
			items, err := s.service.ProcessingLog(r.Context(), store.ProcessingLogFilter{
				ActionType: query.Get("action"),
				Status:     query.Get("status"),
				Client:     query.Get("client"),
				Query:      query.Get("q"),
				Limit:      queryInt(r, "limit", 100),
			})
			return map[string]any{"items": items}, err
		})

	case len(parts) == 1 && parts[0] == "unmatched" && r.Method == http.MethodGet:
		s.requireThen(w, r, session, rbac.ActionRead, func() (any, error) {
			items, err := s.service.Unmatched(r.Context(), r.URL.Query().Get("all") == "true", queryInt(r, "limit", 100))
			return map[string]any{"items": items}, err
		})

	case len(parts) == 3 && parts[0] == "unmatched" && parts[2] == "resolve" && r.Method == http.MethodPost:
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "id must be an integer", nil)
			return
		}
		s.requireThen(w, r, session, rbac.ActionOperate, func() (any, error) {
			return map[string]any{"ok": true}, s.service.ResolveUnmatched(r.Context(), session, id)
		})

	case len(parts) == 1 && parts[0] == "agendas" && r.Method == http.MethodGet:
		s.requireThen(w, r, session, rbac.ActionRead, func() (any, error) {
			items, err := s.service.Agendas(r.Context(), queryInt(r, "limit", 50))
			return map[string]any{"items": items}, err
		})

	case len(parts) == 1 && parts[0] == "clients" && r.Method == http.MethodGet:
		s.requireThen(w, r, session, rbac.ActionRead, func() (any, error) {
			items, err := s.service.Clients(r.Context())
			return map[string]any{"items": items}, err
		})

	case len(parts) == 1 && parts[0] == "search" && r.Method == http.MethodGet:
		s.requireThen(w, r, session, rbac.ActionRead, func() (any, error) {
			query := r.URL.Query()
			text := strings.TrimSpace(query.Get("q"))
			if text == "" {
				return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
			}
			kind := search.ResultType(query.Get("type"))
			if kind == "" {
				kind = search.ResultNote
			}
			return s.service.Search(r.Context(), search.Query{
				Text:       text,
				FilterType: kind,
				ClientID:   query.Get("client"),
				Kind:       query.Get("kind"),
				Limit:      queryInt(r, "limit", 20),
				Offset:     queryInt(r, "offset", 0),
			})
		})

	case len(parts) == 1 && parts[0] == "runs" && r.Method == http.MethodGet:
		s.requireThen(w, r, session, rbac.ActionRead, func() (any, error) {
			return map[string]any{"triggers": s.service.Triggers(), "guardRefusals": s.service.GuardRefusals()}, nil
		})

	case len(parts) == 2 && parts[0] == "runs" && r.Method == http.MethodPost:
		report, err := s.service.Trigger(r.Context(), session, parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, report)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// requireThen checks the action, runs fn and writes its result or error.
func (s *HTTPServer) requireThen(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action, fn func() (any, error)) {
	if !s.service.Can(session.Role, action) {
		s.forbid(w, r, session, action)
		return
	}
	result, err := fn()
	if err != nil {
		status, code, message, details := mapError(err)
		if status >= 500 {
			s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		}
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleMeetingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large", nil)
		return
	}
	outcome, err := s.service.ReceiveMeeting(r.Context(), body, r.Header.Get(webhook.SignatureHeader))
	if err != nil {
		status, code, message, details := mapError(err)
		if status >= 500 {
			s.logger.Error("meeting webhook failed", "error", err)
		}
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, "+webhook.SignatureHeader)
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// ListenAndServe serves handler until ctx is done, then shuts down with a
// grace period.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("api shutting down")
		return server.Shutdown(shutdownCtx)
	}
}
