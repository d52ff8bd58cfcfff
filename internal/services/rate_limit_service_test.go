package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerkeep/ledgerkeep/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		MaxAttempts:     5,
		Window:          15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
	}
}

func recordWithCount(key string, count int) *models.RateLimitRecord {
	now := time.Now()
	return &models.RateLimitRecord{
		Key:         key,
		Count:       count,
		WindowStart: now,
		ExpiresAt:   now.Add(15 * time.Minute),
	}
}

func TestCheckAllowsUnderLimit(t *testing.T) {
	repo := &MockRateLimitRepository{
		IncrementOrResetFunc: func(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error) {
			assert.Equal(t, "login:203.0.113.7", key)
			return recordWithCount(key, 3), nil
		},
	}
	svc := NewRateLimitService(repo, discardLogger())

	result, err := svc.Check(context.Background(), "login", "203.0.113.7", testPolicy())
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Remaining)
}

func TestCheckAllowsExactlyAtLimit(t *testing.T) {
	repo := &MockRateLimitRepository{
		IncrementOrResetFunc: func(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error) {
			return recordWithCount(key, 5), nil
		},
	}
	svc := NewRateLimitService(repo, discardLogger())

	result, err := svc.Check(context.Background(), "login", "ip", testPolicy())
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestCheckDeniesAndLocksOverLimit(t *testing.T) {
	var lockedKey string
	var lockedUntil time.Time

	repo := &MockRateLimitRepository{
		IncrementOrResetFunc: func(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error) {
			return recordWithCount(key, 6), nil
		},
		SetLockedUntilFunc: func(ctx context.Context, key string, until time.Time) error {
			lockedKey = key
			lockedUntil = until
			return nil
		},
	}
	svc := NewRateLimitService(repo, discardLogger())

	result, err := svc.Check(context.Background(), "login", "ip", testPolicy())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.False(t, result.Allowed)
	assert.Equal(t, "login:ip", lockedKey)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), lockedUntil, 5*time.Second)

	var rateErr *models.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.True(t, rateErr.Locked)
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))
}

func TestCheckDeniesWithoutLockoutWhenPolicyHasNone(t *testing.T) {
	repo := &MockRateLimitRepository{
		IncrementOrResetFunc: func(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error) {
			return recordWithCount(key, 4), nil
		},
		SetLockedUntilFunc: func(ctx context.Context, key string, until time.Time) error {
			t.Fatal("no lockout expected")
			return nil
		},
	}
	svc := NewRateLimitService(repo, discardLogger())

	policy := RateLimitPolicy{MaxAttempts: 3, Window: time.Hour}
	_, err := svc.Check(context.Background(), "reset", "ip", policy)
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
	assert.NotErrorIs(t, err, models.ErrAccountLocked)
}

func TestCheckDeniesWhileLocked(t *testing.T) {
	until := time.Now().Add(20 * time.Minute)
	repo := &MockRateLimitRepository{
		IncrementOrResetFunc: func(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error) {
			record := recordWithCount(key, 1) // fresh window, lockout persists
			record.LockedUntil = &until
			return record, nil
		},
	}
	svc := NewRateLimitService(repo, discardLogger())

	_, err := svc.Check(context.Background(), "login", "ip", testPolicy())
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestCheckFailsOpenOnRepositoryError(t *testing.T) {
	repo := &MockRateLimitRepository{
		IncrementOrResetFunc: func(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewRateLimitService(repo, discardLogger())

	result, err := svc.Check(context.Background(), "login", "ip", testPolicy())
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestClearDeletesKey(t *testing.T) {
	var deleted string
	repo := &MockRateLimitRepository{
		DeleteFunc: func(ctx context.Context, key string) error {
			deleted = key
			return nil
		},
	}
	svc := NewRateLimitService(repo, discardLogger())

	svc.Clear(context.Background(), "login", "203.0.113.7")
	assert.Equal(t, "login:203.0.113.7", deleted)
}
