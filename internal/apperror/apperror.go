// Package apperror defines the error kinds shared by the service and handler
// layers. Services return these; handlers translate them to HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrPartial      = errors.New("partially completed")
)

type AppError struct {
	Err     error  // kind sentinel, matched with errors.Is
	Message string // Human-readable error message
	Field   string // Optional: form field causing the error
	Cause   error  // Optional: underlying failure, kept for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the cause so errors.Is can match either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized covers bad credentials, failed OAuth exchanges and missing
// sessions. The message is shown to the user as a transient notification.
func Unauthorized(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
		Cause:   cause,
	}
}

// Partial reports that the first step of a multi-step write succeeded and a
// later step did not. The first step's effect is not undone.
func Partial(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrPartial,
		Message: message,
		Cause:   cause,
	}
}

// FieldOf returns the form field attached to err, if any.
func FieldOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
