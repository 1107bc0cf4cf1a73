package types

import "fmt"

// ErrorCode represents a unified error code across webpilot.
type ErrorCode string

// Trace analysis error codes
const (
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrInvalidFormat ErrorCode = "INVALID_FORMAT"
	ErrLoadFailed    ErrorCode = "LOAD_FAILED"
)

// Browser and session error codes
const (
	ErrSessionActive   ErrorCode = "SESSION_ACTIVE"
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrBrowserLaunch   ErrorCode = "BROWSER_LAUNCH"
	ErrMaxRetries      ErrorCode = "MAX_RETRIES"
	ErrInvalidConfig   ErrorCode = "INVALID_CONFIG"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
