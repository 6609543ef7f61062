package response

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeTransport     = "TRANSPORT_ERROR"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeInternal      = "INTERNAL_ERROR"

	// ErrCodeConflict is reserved for optimistic locking. Nothing raises it yet:
	// concurrent writers to one entity are last-writer-wins.
	ErrCodeConflict = "CONFLICT"
)

// AppError is the typed error returned by the service layer.
// Details is for logs only and is never written to a client.
type AppError struct {
	Code    string
	Message string
	Details string
	Err     error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details}
}

// NewValidationError creates a validation error
func NewValidationError(message, details string) *AppError {
	return NewAppError(ErrCodeValidation, message, details)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message, details string) *AppError {
	return NewAppError(ErrCodeNotFound, message, details)
}

// NewForbiddenError creates a permission error
func NewForbiddenError(message, details string) *AppError {
	return NewAppError(ErrCodeForbidden, message, details)
}

// NewTransportError wraps a storage I/O or network failure
func NewTransportError(message string, err error) *AppError {
	appErr := NewAppError(ErrCodeTransport, message, "")
	if err != nil {
		appErr.Details = err.Error()
		appErr.Err = err
	}
	return appErr
}

// CodeOf returns the AppError code of err, or "" if err is not an AppError
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsValidation(err error) bool { return CodeOf(err) == ErrCodeValidation }
func IsNotFound(err error) bool   { return CodeOf(err) == ErrCodeNotFound }
func IsForbidden(err error) bool  { return CodeOf(err) == ErrCodeForbidden }
func IsTransport(err error) bool  { return CodeOf(err) == ErrCodeTransport }
func IsConflict(err error) bool   { return CodeOf(err) == ErrCodeConflict }
