package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors. Message is what the
// caller sees; Details carries diagnostic text for 500s only.
type DomainError struct {
	Message    string
	HTTPStatus int
	Details    string
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewValidationError reports missing or malformed input (400).
func NewValidationError(message string) error {
	return &DomainError{Message: message, HTTPStatus: http.StatusBadRequest}
}

// NewNotFound reports an absent resource (404). Tickets that exist but
// are not visible to the caller use this too, so existence never leaks.
func NewNotFound(resource string) error {
	return &DomainError{
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewUnauthorized reports a missing or invalid credential (401).
func NewUnauthorized(message string) error {
	return &DomainError{Message: message, HTTPStatus: http.StatusUnauthorized}
}

// NewForbidden reports a failed role or ownership check (403).
func NewForbidden(message string) error {
	return &DomainError{Message: message, HTTPStatus: http.StatusForbidden}
}

// NewInternalError wraps an unexpected failure (500); the underlying
// error text is surfaced as details.
func NewInternalError(message string, err error) error {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Details:    details,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &DomainError{Message: "resource not found", HTTPStatus: http.StatusNotFound}
	}
	return &DomainError{
		Message:    "Internal Server Error",
		HTTPStatus: http.StatusInternalServerError,
		Details:    err.Error(),
		Err:        err,
	}
}
