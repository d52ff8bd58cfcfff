package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerkeep/ledgerkeep/internal/database"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

// MFAPendingRepository stores unconfirmed MFA enrollments, at most one per
// user.
type MFAPendingRepository struct {
	pool *pgxpool.Pool
}

func NewMFAPendingRepository(db *database.DB) *MFAPendingRepository {
	return &MFAPendingRepository{pool: db.Pool}
}

// Upsert stores a pending enrollment, replacing any earlier one for the same
// user.
func (r *MFAPendingRepository) Upsert(ctx context.Context, setup *models.MFAPendingSetup) error {
	setup.CreatedAt = time.Now()

	query := `
		INSERT INTO mfa_pending_setups (user_id, secret, recovery_code_hashes, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			secret = excluded.secret,
			recovery_code_hashes = excluded.recovery_code_hashes,
			created_at = excluded.created_at
	`

	if _, err := r.pool.Exec(ctx, query,
		setup.UserID, setup.Secret, setup.RecoveryCodeHashes, setup.CreatedAt,
	); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *MFAPendingRepository) GetByUserID(ctx context.Context, userID string) (*models.MFAPendingSetup, error) {
	query := `
		SELECT user_id, secret, recovery_code_hashes, created_at
		FROM mfa_pending_setups WHERE user_id = $1
	`

	var setup models.MFAPendingSetup
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&setup.UserID, &setup.Secret, &setup.RecoveryCodeHashes, &setup.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &setup, nil
}

func (r *MFAPendingRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM mfa_pending_setups WHERE user_id = $1`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// DeleteStale removes enrollments begun before the cutoff and never
// confirmed.
func (r *MFAPendingRepository) DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM mfa_pending_setups WHERE created_at <= now() - make_interval(secs => $1)`

	result, err := r.pool.Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// MFAChallengeRepository stores the single-use second factor gates handed
// out during login.
type MFAChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewMFAChallengeRepository(db *database.DB) *MFAChallengeRepository {
	return &MFAChallengeRepository{pool: db.Pool}
}

func (r *MFAChallengeRepository) Create(ctx context.Context, challenge *models.MFALoginChallenge) (*models.MFALoginChallenge, error) {
	challenge.ID = uuid.New().String()
	challenge.CreatedAt = time.Now()

	query := `
		INSERT INTO mfa_login_challenges (id, user_id, remember_me, ip_address, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if _, err := r.pool.Exec(ctx, query,
		challenge.ID, challenge.UserID, challenge.RememberMe,
		challenge.IPAddress, challenge.UserAgent,
		challenge.ExpiresAt, challenge.CreatedAt,
	); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return challenge, nil
}

func (r *MFAChallengeRepository) GetByID(ctx context.Context, id string) (*models.MFALoginChallenge, error) {
	query := `
		SELECT id, user_id, remember_me, ip_address, user_agent, expires_at, created_at
		FROM mfa_login_challenges WHERE id = $1
	`

	var challenge models.MFALoginChallenge
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&challenge.ID, &challenge.UserID, &challenge.RememberMe,
		&challenge.IPAddress, &challenge.UserAgent,
		&challenge.ExpiresAt, &challenge.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &challenge, nil
}

func (r *MFAChallengeRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM mfa_login_challenges WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *MFAChallengeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM mfa_login_challenges WHERE expires_at <= now()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
