package background

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper deletes one class of expired rows and reports how many went away
type Sweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// SweeperFunc adapts a function to the Sweeper interface
type SweeperFunc func(ctx context.Context) (int64, error)

func (f SweeperFunc) CleanupExpired(ctx context.Context) (int64, error) {
	return f(ctx)
}

type namedSweeper struct {
	name    string
	sweeper Sweeper
}

// CleanupManager periodically removes expired sessions, rate limit windows,
// stale MFA enrollments and dead login challenges from the database
type CleanupManager struct {
	sweepers []namedSweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Register adds a sweeper to the rotation. Must be called before Start.
func (cm *CleanupManager) Register(name string, sweeper Sweeper) {
	cm.sweepers = append(cm.sweepers, namedSweeper{name: name, sweeper: sweeper})
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup runs every registered sweeper. One failing sweeper does not
// block the others.
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	for _, ns := range cm.sweepers {
		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		rowsDeleted, err := ns.sweeper.CleanupExpired(sweepCtx)
		cancel()

		if err != nil {
			cm.logger.Error("cleanup sweep failed",
				slog.String("sweeper", ns.name),
				slog.Any("error", err))
			continue
		}

		if rowsDeleted > 0 {
			cm.logger.Info("cleanup sweep completed",
				slog.String("sweeper", ns.name),
				slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
