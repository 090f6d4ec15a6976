// Package errors provides structured application errors with stable codes.
//
// Expected authentication outcomes (wrong password, lockout, second factor)
// are NOT errors; they travel as tagged results in internal/service. This
// package covers everything else: storage failures, invalid input, and the
// protocol-integrity violations of the federated login flow.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// Protocol-integrity violations of the federated login callback. All of
	// them are fatal for the request and must never establish a session.

	// ErrCodeStateMismatch indicates the callback state did not match the
	// session's stored single-use state.
	ErrCodeStateMismatch ErrorCode = "oauth_state_mismatch"
	// ErrCodeProviderError indicates the IdP reported an error parameter or
	// the token exchange failed.
	ErrCodeProviderError ErrorCode = "oauth_provider_error"
	// ErrCodeMissingCode indicates the callback lacked an authorization code.
	ErrCodeMissingCode ErrorCode = "missing_authorization_code"
	// ErrCodeMissingConfig indicates required federated configuration
	// (client secret, discovery URL, ...) is absent.
	ErrCodeMissingConfig ErrorCode = "missing_federated_configuration"
	// ErrCodeUnresolvableClaims indicates no email could be determined from
	// the identity claims.
	ErrCodeUnresolvableClaims ErrorCode = "unresolvable_identity_claims"
	// ErrCodeCSRF indicates anti-forgery token validation failed.
	ErrCodeCSRF ErrorCode = "csrf_validation_failed"
	// ErrCodeSessionTimeout indicates the session idled out and was destroyed.
	ErrCodeSessionTimeout ErrorCode = "session_timeout"
)

// AppError is a structured application error with a code, message, and
// optional cause. It supports errors.Is/errors.As via Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a NotFound error.
func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

// Conflict creates a Conflict error.
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// Validation creates a Validation error.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// Internal creates an Internal error.
func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// isCode checks whether err carries a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsStateMismatch checks for a single-use OAuth state violation.
func IsStateMismatch(err error) bool { return isCode(err, ErrCodeStateMismatch) }

// IsProviderError checks for an IdP-reported or exchange failure.
func IsProviderError(err error) bool { return isCode(err, ErrCodeProviderError) }

// IsMissingCode checks for a callback without an authorization code.
func IsMissingCode(err error) bool { return isCode(err, ErrCodeMissingCode) }

// IsUnresolvableClaims checks for identity claims without a usable email.
func IsUnresolvableClaims(err error) bool { return isCode(err, ErrCodeUnresolvableClaims) }

// IsSessionTimeout checks for an idle-timeout session destruction.
func IsSessionTimeout(err error) bool { return isCode(err, ErrCodeSessionTimeout) }

// GetCode returns the ErrorCode from an error, or empty string if the error
// is not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
