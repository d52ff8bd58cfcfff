package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerkeep/ledgerkeep/internal/database"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

const sessionColumns = `id, user_id, token_version, ip_address, user_agent, last_activity, expires_at, created_at`

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var session models.Session

	err := scanner.Scan(
		&session.ID, &session.UserID, &session.TokenVersion,
		&session.IPAddress, &session.UserAgent,
		&session.LastActivity, &session.ExpiresAt, &session.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &session, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()

	sessions := make([]*models.Session, 0)

	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	session.ID = uuid.New().String()
	session.TokenVersion = 1

	now := time.Now()
	session.LastActivity = now
	session.CreatedAt = now

	query := `
		INSERT INTO sessions (id, user_id, token_version, ip_address, user_agent, last_activity, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + sessionColumns

	return scanSessionRow(r.pool.QueryRow(ctx, query,
		session.ID, session.UserID, session.TokenVersion,
		session.IPAddress, session.UserAgent,
		session.LastActivity, session.ExpiresAt, session.CreatedAt,
	))
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	return scanSessionRow(r.pool.QueryRow(ctx, query, id))
}

// Touch slides the inactivity window forward.
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	query := `UPDATE sessions SET last_activity = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// IncrementTokenVersion bumps the session's token version and returns the
// new value. The bump is atomic, so refresh tokens minted against the old
// version stop working everywhere at once.
func (r *SessionRepository) IncrementTokenVersion(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE sessions SET token_version = token_version + 1
		WHERE id = $1
		RETURNING token_version
	`

	var version int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&version); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return version, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteForUser deletes one session only if it belongs to the given user.
func (r *SessionRepository) DeleteForUser(ctx context.Context, id, userID string) error {
	query := `DELETE FROM sessions WHERE id = $1 AND user_id = $2`

	result, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteOthers deletes all of a user's sessions except the one given.
func (r *SessionRepository) DeleteOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1 AND id != $2`

	result, err := r.pool.Exec(ctx, query, userID, keepSessionID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// ListActiveForUser returns a user's unexpired sessions, most recently
// active first.
func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions WHERE user_id = $1 AND expires_at > now()
		ORDER BY last_activity DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	return scanSessionRows(rows)
}

// DeleteExpiredForUser removes one user's sessions past their absolute
// expiry. Run before trimming to the cap so a dead session never counts
// against it.
func (r *SessionRepository) DeleteExpiredForUser(ctx context.Context, userID string) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1 AND expires_at <= now()`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteLeastActiveOver trims a user's live session count down to max by
// removing the least recently active ones. Expired rows are excluded from
// the ranking; they are the sweeper's (and DeleteExpiredForUser's) problem.
func (r *SessionRepository) DeleteLeastActiveOver(ctx context.Context, userID string, max int) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE id IN (
			SELECT id FROM sessions
			WHERE user_id = $1 AND expires_at > now()
			ORDER BY last_activity DESC
			OFFSET $2
		)
	`

	result, err := r.pool.Exec(ctx, query, userID, max)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// DeleteExpired removes sessions past their absolute expiry. Run by the
// background sweeper.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= now()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
