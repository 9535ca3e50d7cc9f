package market

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError signals that the upstream throttled us. It is never
// retried within the triggering call; callers suppress further attempts for
// RetryAfter.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("upstream rate limited, retry in %s", e.RetryAfter.Round(time.Millisecond))
}

// FetchError wraps the last underlying cause after retries are exhausted or
// a non-retryable failure occurred.
type FetchError struct {
	Cause error
}

func (e *FetchError) Error() string { return "candle fetch failed: " + e.Cause.Error() }

func (e *FetchError) Unwrap() error { return e.Cause }

// AsRateLimited extracts a RateLimitedError from err, if any.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
