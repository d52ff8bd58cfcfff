package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

// RateLimitRepository defines the interface for attempt counter storage
type RateLimitRepository interface {
	IncrementOrReset(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error)
	SetLockedUntil(ctx context.Context, key string, until time.Time) error
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// RateLimitPolicy is the limit applied to one action.
type RateLimitPolicy struct {
	MaxAttempts     int
	Window          time.Duration
	LockoutDuration time.Duration // zero means no lockout, just window exhaustion
}

// RateLimitService implements fixed-window rate limiting with optional
// lockout for authentication flows.
type RateLimitService struct {
	repo   RateLimitRepository
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(repo RateLimitRepository, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		repo:   repo,
		logger: logger,
	}
}

// Check records one attempt for action/identifier and reports whether it is
// allowed. The counter is incremented first, so the answer reflects this
// attempt, not the previous state. When the limit is crossed and the policy
// has a lockout, the key is locked for the lockout duration; a lockout
// outlives window resets.
//
// Infrastructure errors fail open: an unreachable database should not lock
// every user out of login.
func (s *RateLimitService) Check(ctx context.Context, action, identifier string, policy RateLimitPolicy) (*models.RateLimitResult, error) {
	key := action + ":" + identifier
	now := time.Now()

	record, err := s.repo.IncrementOrReset(ctx, key, policy.Window)
	if err != nil {
		s.logger.Error("rate limit check failed, allowing request",
			slog.String("action", action),
			slog.Any("error", err))
		return &models.RateLimitResult{Allowed: true, Remaining: policy.MaxAttempts}, nil
	}

	// An active lockout denies regardless of the window state.
	if record.LockedUntil != nil && record.LockedUntil.After(now) {
		return &models.RateLimitResult{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    *record.LockedUntil,
			RetryAfter: record.LockedUntil.Sub(now),
		}, &models.RateLimitError{Locked: true, RetryAfter: record.LockedUntil.Sub(now)}
	}

	if record.Count > policy.MaxAttempts {
		retryAfter := record.ExpiresAt.Sub(now)
		resetAt := record.ExpiresAt

		if policy.LockoutDuration > 0 {
			until := now.Add(policy.LockoutDuration)
			if err := s.repo.SetLockedUntil(ctx, key, until); err != nil {
				s.logger.Error("failed to set lockout",
					slog.String("action", action),
					slog.Any("error", err))
			} else {
				retryAfter = policy.LockoutDuration
				resetAt = until
			}

			s.logger.Warn("rate limit lockout engaged",
				slog.String("action", action),
				slog.Int("attempts", record.Count))

			return &models.RateLimitResult{
				Allowed:    false,
				Remaining:  0,
				ResetAt:    resetAt,
				RetryAfter: retryAfter,
			}, &models.RateLimitError{Locked: true, RetryAfter: retryAfter}
		}

		return &models.RateLimitResult{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}, &models.RateLimitError{RetryAfter: retryAfter}
	}

	return &models.RateLimitResult{
		Allowed:   true,
		Remaining: policy.MaxAttempts - record.Count,
		ResetAt:   record.ExpiresAt,
	}, nil
}

// Clear forgives an identifier's attempt history, typically after a
// successful authentication.
func (s *RateLimitService) Clear(ctx context.Context, action, identifier string) {
	if err := s.repo.Delete(ctx, action+":"+identifier); err != nil {
		s.logger.Error("failed to clear rate limit",
			slog.String("action", action),
			slog.Any("error", err))
	}
}

// CleanupExpired removes counters that can no longer affect a decision.
func (s *RateLimitService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}
