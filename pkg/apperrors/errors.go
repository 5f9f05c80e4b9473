package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Code identifies a stable, caller-visible error category. Codes are part
// of the API surface and must never be renamed.
type Code string

const (
	CodeInvalidStructure    Code = "INVALID_STRUCTURE"
	CodeInvalidReference    Code = "INVALID_REFERENCE"
	CodeDuplicateContent    Code = "DUPLICATE_CONTENT"
	CodeGateFailed          Code = "GATE_FAILED"
	CodeCompileFailed       Code = "COMPILE_FAILED"
	CodeVerifyFailed        Code = "VERIFY_FAILED"
	CodeDeployFailed        Code = "DEPLOY_FAILED"
	CodeRollbackUnavailable Code = "ROLLBACK_UNAVAILABLE"
	CodeDriftDetected       Code = "DRIFT_DETECTED"
	CodeRegressionFailed    Code = "REGRESSION_FAILED"
	CodeTimeout             Code = "TIMEOUT"
	CodeCanceled            Code = "CANCELED"
)

// Error is a tagged error value carried across pipeline stages unchanged.
// Retryable marks transport/capacity failures a caller may resubmit.
type Error struct {
	Code      Code
	Message   string
	Details   []string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface so the retry
// package can check retryability without importing this package.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// New creates a non-retryable tagged error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a non-retryable tagged error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a tagged error around a cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Retryable creates a retryable tagged error around a cause.
func Retryable(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause, Retryable: true}
}

// WithDetails attaches detail lines (validation locations, gate ids).
func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// CodeOf extracts the stable code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
