package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is the error type returned across service boundaries. It carries a
// machine-readable code, a human-readable message, and the HTTP status the
// API layer should respond with.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Fields     map[string]string `json:"fields,omitempty"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithError attaches an underlying error
func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// Error codes
const (
	CodeConflict       = "CONFLICT"
	CodeNotFound       = "NOT_FOUND"
	CodeValidation     = "VALIDATION_ERROR"
	CodeBadRequest     = "BAD_REQUEST"
	CodeInternal       = "INTERNAL_ERROR"
	CodeUnavailable    = "SERVICE_UNAVAILABLE"
	CodeTimeout        = "TIMEOUT"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeTooManyRequest = "TOO_MANY_REQUESTS"
)

// ErrConflict creates a conflict error (409). Used when a lock is held by
// another worker or a unique constraint is violated.
func ErrConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ErrNotFound creates a not found error (404)
func ErrNotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// ErrValidation creates a validation error (400)
func ErrValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ErrValidationWithFields creates a validation error with per-field detail
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Fields:     fields,
	}
}

// ErrBadRequest creates a bad request error (400)
func ErrBadRequest(message string) *AppError {
	return &AppError{
		Code:       CodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ErrInternal creates an internal server error (500)
func ErrInternal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrUnavailable creates a service unavailable error (503)
func ErrUnavailable(message string, err error) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// ErrTimeout creates a timeout error (504)
func ErrTimeout(message string, err error) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// IsAppError extracts an *AppError from an error chain
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsConflict reports whether err is a conflict AppError
func IsConflict(err error) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == CodeConflict
}

// IsNotFound reports whether err is a not found AppError
func IsNotFound(err error) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == CodeNotFound
}

// IsValidation reports whether err is a validation AppError
func IsValidation(err error) bool {
	appErr, ok := IsAppError(err)
	return ok && (appErr.Code == CodeValidation || appErr.Code == CodeBadRequest)
}

// MapDomainError maps a raw domain error to an AppError by message content.
// Prefer explicit mapping at the application layer; this is the fallback for
// errors that bubble up unmapped.
func MapDomainError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := IsAppError(err); ok {
		return appErr
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return ErrNotFound("resource").WithError(err)
	case strings.Contains(msg, "locked"), strings.Contains(msg, "already exists"), strings.Contains(msg, "conflict"):
		return ErrConflict(err.Error()).WithError(err)
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "cannot"), strings.Contains(msg, "must"):
		return ErrValidation(err.Error()).WithError(err)
	default:
		return ErrInternal("internal error", err)
	}
}
