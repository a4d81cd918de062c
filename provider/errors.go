package provider

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError indicates the service throttled the request. Safe to retry
// once the caller has backed off.
type RateLimitError struct {
	Status     int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("service rate limit (status %d, retry after %s)", e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("service rate limit (status %d)", e.Status)
}

// AuthError indicates the credential was rejected. Never retried.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("service rejected credential (status %d)", e.Status)
}

// TransientError covers network failures, timeouts and 5xx responses.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient service error: %v", e.Err)
	}
	return fmt.Sprintf("transient service error (status %d)", e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err is a throttling response.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsAuthFailure reports whether err is a permanent credential rejection.
func IsAuthFailure(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is worth retrying after backoff. Rate limits
// count as transient; auth failures do not.
func IsTransient(err error) bool {
	if IsRateLimit(err) {
		return true
	}
	var te *TransientError
	return errors.As(err, &te)
}
