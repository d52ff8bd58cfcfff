package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerkeep/ledgerkeep/internal/database"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, password_hash, role, organization_id, email_verified, is_active,
	mfa_enabled, mfa_secret, mfa_recovery_code_hashes, created_at, updated_at`

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var recoveryHashes []string

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.OrganizationID, &user.EmailVerified, &user.IsActive,
		&user.MFAEnabled, &user.MFASecret, &recoveryHashes,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	user.MFARecoveryCodeHashes = recoveryHashes
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := `
		INSERT INTO users (id, email, password_hash, role, organization_id, email_verified, is_active,
			mfa_enabled, mfa_secret, mfa_recovery_code_hashes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Role,
		user.OrganizationID, user.EmailVerified, user.IsActive,
		user.MFAEnabled, user.MFASecret, user.MFARecoveryCodeHashes,
		user.CreatedAt, user.UpdatedAt,
	))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = lower($1)`

	return scanUserRow(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// UpdatePassword swaps the stored hash. Targeted updates keep concurrent
// writers from clobbering unrelated columns.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`

	return r.exec(ctx, query, passwordHash, id)
}

func (r *UserRepository) SetEmailVerified(ctx context.Context, id string) error {
	query := `UPDATE users SET email_verified = true, updated_at = now() WHERE id = $1`

	return r.exec(ctx, query, id)
}

// EnableMFA turns MFA on, storing the confirmed secret and recovery code
// hashes in one statement.
func (r *UserRepository) EnableMFA(ctx context.Context, id, secret string, recoveryHashes []string) error {
	query := `
		UPDATE users
		SET mfa_enabled = true, mfa_secret = $1, mfa_recovery_code_hashes = $2, updated_at = now()
		WHERE id = $3
	`

	return r.exec(ctx, query, secret, recoveryHashes, id)
}

// DisableMFA turns MFA off and discards the secret and any unused recovery
// codes.
func (r *UserRepository) DisableMFA(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET mfa_enabled = false, mfa_secret = NULL, mfa_recovery_code_hashes = '{}', updated_at = now()
		WHERE id = $1
	`

	return r.exec(ctx, query, id)
}

// UpdateRecoveryCodeHashes replaces the stored recovery code hashes when
// the set is regenerated.
func (r *UserRepository) UpdateRecoveryCodeHashes(ctx context.Context, id string, hashes []string) error {
	query := `UPDATE users SET mfa_recovery_code_hashes = $1, updated_at = now() WHERE id = $2`

	return r.exec(ctx, query, hashes, id)
}

// ConsumeRecoveryCode removes one recovery code hash. The predicate makes
// removal atomic: of two concurrent logins presenting the same code, only
// one finds the hash still in the array; the other gets ErrNotFound.
func (r *UserRepository) ConsumeRecoveryCode(ctx context.Context, id, hash string) error {
	query := `
		UPDATE users
		SET mfa_recovery_code_hashes = array_remove(mfa_recovery_code_hashes, $1), updated_at = now()
		WHERE id = $2 AND $1 = ANY(mfa_recovery_code_hashes)
	`

	return r.exec(ctx, query, hash, id)
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// scanUserRows iterates through rows and scans each into User models
func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

// ListByOrganization returns an organization's users, newest first.
func (r *UserRepository) ListByOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users WHERE organization_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}
