package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrTooManyRequests = errors.New("too many requests")
	ErrBlocked         = errors.New("blocked")
	ErrTokenInvalid    = errors.New("invalid or expired token")
	ErrThrottled       = errors.New("throttled")
)

// RateLimitError is returned when a fixed-window budget is exhausted.
type RateLimitError struct {
	Operation  string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Operation, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrTooManyRequests }

// PolicyError lists every password policy violation. The first entry is the
// primary message shown to the user.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	if len(e.Violations) == 0 {
		return "password does not meet requirements"
	}
	return e.Violations[0]
}

func (e *PolicyError) Unwrap() error { return ErrBadRequest }

// Details joins every violation, for logging.
func (e *PolicyError) Details() string { return strings.Join(e.Violations, "; ") }
