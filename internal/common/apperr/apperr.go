// Package apperr provides the application error taxonomy shared by the
// service layer, the HTTP handlers, and the CLI.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds. These appear verbatim in API error bodies.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindConflict   = "conflict"
	KindInternal   = "internal"
)

// Error is an application error carrying a kind, a human-readable message,
// and an optional wrapped cause. Validation errors built from several
// problems keep the individual problems in Details.
type Error struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
	Err     error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a validation error (rejected input).
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationList creates a validation error from a list of problems. The
// message joins them; each problem stays addressable through Details.
func ValidationList(problems []string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: strings.Join(problems, "; "),
		Details: append([]string(nil), problems...),
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// NotFoundf creates a not found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error (operation invalid in the current state).
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Conflictf creates a conflict error with a formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal creates an internal error with a wrapped underlying cause.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Wrap wraps an existing error with additional context. An *Error keeps its
// kind; anything else becomes an internal error.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return &Error{
			Kind:    appErr.Kind,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     err,
		}
	}
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Details returns the structured problem list carried by the error. Errors
// without one come back as a single-entry list holding their message.
func Details(err error) []string {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		if len(appErr.Details) > 0 {
			return appErr.Details
		}
		return []string{appErr.Message}
	}
	return []string{err.Error()}
}

// KindOf returns the error's kind, or KindInternal for non-application errors.
func KindOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsValidation reports whether the error is a validation error.
func IsValidation(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == KindValidation
}

// IsNotFound reports whether the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == KindNotFound
}

// IsConflict reports whether the error is a conflict error.
func IsConflict(err error) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == KindConflict
}

// HTTPStatus returns the HTTP status code for an error.
// Non-application errors map to 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode returns the CLI exit code for an error: 2 validation, 3 not found,
// 4 conflict, 1 anything else. A nil error is 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindValidation:
		return 2
	case KindNotFound:
		return 3
	case KindConflict:
		return 4
	default:
		return 1
	}
}
