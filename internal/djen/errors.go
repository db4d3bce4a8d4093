package djen

import (
	"fmt"
	"time"

	"djenwatch/internal/services"
)

// RateLimitHint is the fixed operator guidance for HTTP 429.
const RateLimitHint = "wait 60 seconds before retrying"

// RateLimitedError reports an HTTP 429 from the directory.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("directory rate limit exceeded: %s", RateLimitHint)
}

func (e *RateLimitedError) Unwrap() error { return services.ErrRateLimited }

// UpstreamError reports any other directory failure. Status is 0 for
// transport errors and timeouts.
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("directory request failed: %s", e.Message)
	}
	return fmt.Sprintf("directory returned %d: %s", e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{services.ErrUpstream, e.Err}
	}
	return []error{services.ErrUpstream}
}
