// Package apperr defines the failure taxonomy shared by the workflow engine,
// the outbound service clients and the filter guard.
package apperr

import (
	"errors"
	"fmt"
)

// IdentityError reports that no client matched a set of addresses. It is
// recorded to the unmatched audit table and is never fatal.
type IdentityError struct {
	ItemType  string
	Addresses []string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("no client matched %s participants %v", e.ItemType, e.Addresses)
}

// ExternalServiceError wraps a non-success or malformed response from an
// outbound dependency (AI, task tracker, documents, mail).
type ExternalServiceError struct {
	Service string
	Status  int
	Message string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status=%d %s: %v", e.Service, e.Status, e.Message, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status=%d %s", e.Service, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing key or secret. It is terminal for the
// affected feature and is not retried.
type ConfigurationError struct {
	Feature string
	Key     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: missing %s", e.Feature, e.Key)
}

// SafetyViolation reports an attempted mutation of a resource the system does
// not own. The guard logs and swallows these; they are exposed for callers
// that want to count refusals.
type SafetyViolation struct {
	Operation  string
	ResourceID string
	Reason     string
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("refused %s on %s: %s", e.Operation, e.ResourceID, e.Reason)
}

func External(service string, status int, message string, err error) error {
	return &ExternalServiceError{Service: service, Status: status, Message: message, Err: err}
}

func Config(feature, key string) error {
	return &ConfigurationError{Feature: feature, Key: key}
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsExternal(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

func IsIdentity(err error) bool {
	var target *IdentityError
	return errors.As(err, &target)
}
