package reasoning

import (
	"context"
	"errors"
	"strings"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// Reasoning provider error codes.
const (
	ErrProviderUnavailable  types.ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrProviderTimeout      types.ErrorCode = "PROVIDER_TIMEOUT"
	ErrProviderRateLimited  types.ErrorCode = "PROVIDER_RATE_LIMITED"
	ErrProviderUnauthorized types.ErrorCode = "PROVIDER_UNAUTHORIZED"
	ErrInvalidRequest       types.ErrorCode = "PROVIDER_INVALID_REQUEST"
	ErrParseFailed          types.ErrorCode = "PROVIDER_PARSE_FAILED"
)

// IsParseError reports whether err is a content error: the provider answered
// but the payload did not match the expected schema. Parse errors are retried
// at most once with a stricter prompt, then surface as workflow failures.
func IsParseError(err error) bool {
	return types.CodeOf(err) == ErrParseFailed
}

// NewParseError creates a non-retryable content error.
func NewParseError(message string, cause error) *types.CoreError {
	return types.WrapError(ErrParseFailed, message, cause)
}

// NewTimeoutError creates a retryable timeout error.
func NewTimeoutError(provider string) *types.CoreError {
	return types.NewRetryableError(ErrProviderTimeout, "reasoning provider timed out: "+provider)
}

// TranslateError converts transport-layer errors from an underlying client
// into coded provider errors. Only text sniffing is available for providers
// that return opaque error strings.
func TranslateError(provider string, err error) error {
	if err == nil {
		return nil
	}

	var coreErr *types.CoreError
	if errors.As(err, &coreErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.WrapRetryableError(ErrProviderTimeout,
			"reasoning provider timed out: "+provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "authentication"), strings.Contains(msg, "api key"):
		return types.WrapError(ErrProviderUnauthorized,
			"reasoning provider authentication failed: "+provider, err)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return types.WrapRetryableError(ErrProviderRateLimited,
			"reasoning provider rate limited: "+provider, err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return types.WrapRetryableError(ErrProviderTimeout,
			"reasoning provider timed out: "+provider, err)
	default:
		return types.WrapRetryableError(ErrProviderUnavailable,
			"reasoning provider unavailable: "+provider, err)
	}
}
