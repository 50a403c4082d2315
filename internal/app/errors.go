package app

import (
	"errors"
	"fmt"
	"net/http"

	"clientflow/api/internal/apperr"
	"clientflow/api/internal/auth"
	"clientflow/api/internal/webhook"
	"clientflow/api/internal/workflow"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var configErr *apperr.ConfigurationError
	if errors.As(err, &configErr) {
		return http.StatusServiceUnavailable, "NOT_CONFIGURED", configErr.Error(), map[string]any{"feature": configErr.Feature}
	}
	var externalErr *apperr.ExternalServiceError
	if errors.As(err, &externalErr) {
		return http.StatusBadGateway, "UPSTREAM_ERROR", externalErr.Service + " request failed", nil
	}
	switch {
	case errors.Is(err, workflow.ErrBusy):
		return http.StatusConflict, "BUSY", "Run already in progress", nil
	case errors.Is(err, workflow.ErrUnknownTrigger):
		return http.StatusNotFound, "NOT_FOUND", "Unknown trigger", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrNoSecret):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, webhook.ErrMissingSignature), errors.Is(err, webhook.ErrSignatureMismatch), errors.Is(err, webhook.ErrNoSecret):
		return http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature rejected", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
