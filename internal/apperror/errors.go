// Package apperror provides the domain error type for Keystone. An AppError
// carries an HTTP status code and a message that is safe to show the user.
// The Echo error handler in internal/app maps them to responses, and the
// auth handlers surface validation errors as flash messages.
//
// NEVER return raw database or Redis errors to the client. Wrap them with
// NewInternal so only a generic message leaves the server.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base error type for all domain errors.
type AppError struct {
	// Code is the HTTP status code (e.g., 422, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "validation_error").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Error type classifiers.
const (
	TypeValidation   = "validation_error"
	TypeBadRequest   = "bad_request"
	TypeUnauthorized = "unauthorized"
	TypeNotFound     = "not_found"
	TypeInternal     = "internal_error"
)

// NewValidation creates a 422 error for a failed form rule. Handlers show
// the message to the user and re-render the form.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    TypeValidation,
		Message: message,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeBadRequest,
		Message: message,
	}
}

// NewUnauthorized creates a 401 Unauthorized error. The error handler
// redirects browsers to /login for these.
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeUnauthorized,
		Message: message,
	}
}

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    TypeNotFound,
		Message: message,
	}
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// ValidationMessage returns the user-facing message if err is a validation
// error, and false otherwise.
func ValidationMessage(err error) (string, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Type == TypeValidation {
		return appErr.Message, true
	}
	return "", false
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
