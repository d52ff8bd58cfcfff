package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestCleanupManagerRunsAllSweepers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cm := NewCleanupManager(logger, time.Hour)

	var sessions, limits int
	cm.Register("sessions", SweeperFunc(func(ctx context.Context) (int64, error) {
		sessions++
		return 3, nil
	}))
	cm.Register("rate_limits", SweeperFunc(func(ctx context.Context) (int64, error) {
		limits++
		return 0, nil
	}))

	cm.runCleanup(context.Background())

	if sessions != 1 || limits != 1 {
		t.Errorf("expected each sweeper to run once, got sessions=%d limits=%d", sessions, limits)
	}
}

func TestCleanupManagerContinuesPastFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cm := NewCleanupManager(logger, time.Hour)

	ran := false
	cm.Register("broken", SweeperFunc(func(ctx context.Context) (int64, error) {
		return 0, errors.New("connection refused")
	}))
	cm.Register("healthy", SweeperFunc(func(ctx context.Context) (int64, error) {
		ran = true
		return 1, nil
	}))

	cm.runCleanup(context.Background())

	if !ran {
		t.Error("a failing sweeper should not block the others")
	}
}

func TestCleanupManagerStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cm := NewCleanupManager(logger, time.Hour)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	cm.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}
