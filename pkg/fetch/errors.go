package fetch

import (
	"fmt"
	"time"
)

// FetchError wraps a network-level failure against a feed host.
type FetchError struct {
	Host string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Host, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps a malformed feed document.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RateLimitedError marks a host that answered 429 through the whole
// retry budget. RetryAfter is zero when the host gave no hint.
type RateLimitedError struct {
	Host       string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s (retry after %s)", e.Host, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited by %s", e.Host)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }
