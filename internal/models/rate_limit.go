package models

import (
	"fmt"
	"time"
)

// RateLimitRecord is one fixed-window attempt counter, keyed by
// "action:identifier". LockedUntil outlives window resets.
type RateLimitRecord struct {
	Key         string
	Count       int
	WindowStart time.Time
	ExpiresAt   time.Time
	LockedUntil *time.Time
}

// RateLimitResult is the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed
}

// RateLimitError is returned by flows rejected by the rate limiter. Locked
// distinguishes a lockout (which outlives the window) from plain window
// exhaustion.
type RateLimitError struct {
	Locked     bool
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Locked {
		return fmt.Sprintf("account temporarily locked, retry after %s", e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	if e.Locked {
		return target == ErrAccountLocked
	}
	return target == ErrRateLimitExceeded
}
