package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerkeep/ledgerkeep/internal/database"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

type RateLimitRepository struct {
	pool *pgxpool.Pool
}

func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{pool: db.Pool}
}

func scanRateLimitRow(scanner rowScanner) (*models.RateLimitRecord, error) {
	var record models.RateLimitRecord

	err := scanner.Scan(
		&record.Key, &record.Count, &record.WindowStart,
		&record.ExpiresAt, &record.LockedUntil,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &record, nil
}

// IncrementOrReset records one attempt against key and returns the resulting
// counter state. A single upsert either starts a fresh window (when none
// exists or the previous one has expired) or increments the current one, so
// concurrent attempts cannot race past the limit. locked_until is never
// touched here; lockouts deliberately outlive window resets.
func (r *RateLimitRepository) IncrementOrReset(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error) {
	query := `
		INSERT INTO rate_limits (key, count, window_start, expires_at)
		VALUES ($1, 1, now(), now() + make_interval(secs => $2))
		ON CONFLICT (key) DO UPDATE SET
			count        = CASE WHEN rate_limits.expires_at <= now() THEN 1
			                    ELSE rate_limits.count + 1 END,
			window_start = CASE WHEN rate_limits.expires_at <= now() THEN now()
			                    ELSE rate_limits.window_start END,
			expires_at   = CASE WHEN rate_limits.expires_at <= now() THEN now() + make_interval(secs => $2)
			                    ELSE rate_limits.expires_at END
		RETURNING key, count, window_start, expires_at, locked_until
	`

	return scanRateLimitRow(r.pool.QueryRow(ctx, query, key, window.Seconds()))
}

// SetLockedUntil marks a key locked. Idempotent: re-locking an already
// locked key only ever extends the lock.
func (r *RateLimitRepository) SetLockedUntil(ctx context.Context, key string, until time.Time) error {
	query := `
		UPDATE rate_limits
		SET locked_until = greatest(locked_until, $1)
		WHERE key = $2
	`

	if _, err := r.pool.Exec(ctx, query, until, key); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// Delete clears a key, forgiving its attempt history and any lockout.
func (r *RateLimitRepository) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM rate_limits WHERE key = $1`

	if _, err := r.pool.Exec(ctx, query, key); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// DeleteExpired removes counters whose window and lockout have both passed.
func (r *RateLimitRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM rate_limits
		WHERE expires_at <= now() AND (locked_until IS NULL OR locked_until <= now())
	`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
