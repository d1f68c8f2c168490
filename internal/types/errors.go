package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a namespaced error code. Each subsystem declares its own codes
// (GRAPH_*, QUEUE_*, PROVIDER_*, MEMORY_*, STORE_*, WORKFLOW_*) in its package.
type ErrorCode string

// Configuration error codes.
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// CoreError is the structured error type used across the research core.
// The Retryable flag drives the job queue's retry decision: transient
// failures (provider timeouts, store timeouts) are retryable, validation
// and structural failures are not.
type CoreError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error formats as "[CODE] message" or "[CODE] message: cause".
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chains.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is matches CoreErrors by code.
func (e *CoreError) Is(target error) bool {
	var coreErr *CoreError
	if errors.As(target, &coreErr) {
		return e.Code == coreErr.Code
	}
	return false
}

// NewError creates a non-retryable CoreError.
func NewError(code ErrorCode, message string) *CoreError {
	return &CoreError{Code: code, Message: message}
}

// NewRetryableError creates a retryable CoreError for transient conditions
// that may succeed on a later attempt.
func NewRetryableError(code ErrorCode, message string) *CoreError {
	return &CoreError{Code: code, Message: message, Retryable: true}
}

// WrapError creates a non-retryable CoreError wrapping an existing cause.
func WrapError(code ErrorCode, message string, cause error) *CoreError {
	return &CoreError{Code: code, Message: message, Cause: cause}
}

// WrapRetryableError creates a retryable CoreError wrapping an existing cause.
func WrapRetryableError(code ErrorCode, message string, cause error) *CoreError {
	return &CoreError{Code: code, Message: message, Retryable: true, Cause: cause}
}

// IsRetryable reports whether err carries a retryable CoreError anywhere in
// its chain. Unknown error types default to not retryable.
func IsRetryable(err error) bool {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Retryable
	}
	return false
}

// CodeOf returns the error code of the CoreError in err's chain, or "" when
// err is not a CoreError.
func CodeOf(err error) ErrorCode {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return ""
}
