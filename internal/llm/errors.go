package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies provider failures. The orchestrator recovers
// not_configured through the stub provider for non-admin callers; every other
// code is surfaced to the caller unchanged.
type ErrorCode string

const (
	CodeNotConfigured   ErrorCode = "not_configured"
	CodeInvalidRequest  ErrorCode = "invalid_request"
	CodeUnauthorized    ErrorCode = "unauthorized"
	CodeForbidden       ErrorCode = "forbidden"
	CodeRateLimited     ErrorCode = "rate_limited"
	CodeUpstreamTimeout ErrorCode = "upstream_timeout"
	CodeUpstreamError   ErrorCode = "upstream_error"
)

// ProviderError is the typed error raised by gateway calls.
type ProviderError struct {
	Code     ErrorCode
	Provider string
	Message  string

	// RetryAfter is a capacity hint for rate_limited errors, zero if unknown.
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

// AsProviderError unwraps err to a ProviderError if one is in the chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// HTTPStatus maps an error code to the status a serving surface should return.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeInvalidRequest:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeForbidden:
		return 403
	case CodeRateLimited:
		return 429
	case CodeUpstreamTimeout:
		return 504
	case CodeNotConfigured, CodeUpstreamError:
		return 502
	}
	return 500
}
