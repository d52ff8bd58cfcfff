package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ledgerkeep/ledgerkeep/internal/auth"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
	pkgauth "github.com/ledgerkeep/ledgerkeep/pkg/auth"
)

// MFAPendingRepository defines the interface for unconfirmed enrollments
type MFAPendingRepository interface {
	Upsert(ctx context.Context, setup *models.MFAPendingSetup) error
	GetByUserID(ctx context.Context, userID string) (*models.MFAPendingSetup, error)
	Delete(ctx context.Context, userID string) error
	DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SessionRevoker ends every session a user has except one
type SessionRevoker interface {
	InvalidateOthers(ctx context.Context, userID, keepSessionID string) (int64, error)
}

// MFAService handles TOTP enrollment, verification, and recovery codes.
type MFAService struct {
	users      UserRepository
	pending    MFAPendingRepository
	totp       *auth.TOTPManager
	hasher     *pkgauth.Hasher
	audit      *AuditService
	sessions   SessionRevoker
	pendingTTL time.Duration
	logger     *slog.Logger
}

// NewMFAService creates a new MFAService
func NewMFAService(users UserRepository, pending MFAPendingRepository, totp *auth.TOTPManager, hasher *pkgauth.Hasher, audit *AuditService, sessions SessionRevoker, pendingTTL time.Duration, logger *slog.Logger) *MFAService {
	return &MFAService{
		users:      users,
		pending:    pending,
		totp:       totp,
		hasher:     hasher,
		audit:      audit,
		sessions:   sessions,
		pendingTTL: pendingTTL,
		logger:     logger,
	}
}

// BeginEnrollment creates a fresh secret and recovery codes for a user who
// does not yet have MFA. The secret stays pending (and unusable for login)
// until confirmed; beginning again replaces the previous pending setup.
func (s *MFAService) BeginEnrollment(ctx context.Context, userID, ipAddress string) (*auth.Enrollment, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, models.ErrMFAAlreadyEnabled
	}

	enrollment, err := s.totp.GenerateEnrollment(user.Email)
	if err != nil {
		s.logger.Error("failed to generate MFA enrollment",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashes := make([]string, len(enrollment.RecoveryCodes))
	for i, code := range enrollment.RecoveryCodes {
		hashes[i] = auth.HashRecoveryCode(code)
	}

	if err := s.pending.Upsert(ctx, &models.MFAPendingSetup{
		UserID:             userID,
		Secret:             enrollment.Secret,
		RecoveryCodeHashes: hashes,
	}); err != nil {
		s.logger.Error("failed to store pending MFA setup",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, models.AuditMFAEnrollmentStarted, userID, ipAddress, nil)

	return enrollment, nil
}

// ConfirmEnrollment proves the user's authenticator works by validating one
// code against the pending secret, then turns MFA on.
func (s *MFAService) ConfirmEnrollment(ctx context.Context, userID, code, ipAddress string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAEnabled {
		return models.ErrMFAAlreadyEnabled
	}

	setup, err := s.pending.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMFANotEnabled
		}
		return err
	}

	if s.pendingTTL > 0 && time.Since(setup.CreatedAt) > s.pendingTTL {
		_ = s.pending.Delete(ctx, userID)
		return models.ErrMFANotEnabled
	}

	if !s.totp.ValidateCode(setup.Secret, code) {
		return models.ErrInvalidMFACode
	}

	if err := s.users.EnableMFA(ctx, userID, setup.Secret, setup.RecoveryCodeHashes); err != nil {
		s.logger.Error("failed to enable MFA",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.pending.Delete(ctx, userID); err != nil {
		s.logger.Error("failed to delete pending MFA setup",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	s.audit.Record(ctx, models.AuditMFAEnabled, userID, ipAddress, nil)
	s.logger.Info("MFA enabled", slog.String("user_id", userID))

	return nil
}

// Disable turns MFA off. Requires the password and a current second factor
// (TOTP or recovery code), so a stolen session alone cannot weaken the
// account. Every other session is revoked since the account just got easier
// to log in to.
func (s *MFAService) Disable(ctx context.Context, userID, sessionID, password, code, ipAddress string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return models.ErrMFANotEnabled
	}

	if !s.hasher.Compare(password, user.PasswordHash) {
		return models.ErrInvalidCredentials
	}

	ok, _, err := s.VerifySecondFactor(ctx, user, code)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrInvalidMFACode
	}

	if err := s.users.DisableMFA(ctx, userID); err != nil {
		s.logger.Error("failed to disable MFA",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if s.sessions != nil {
		if _, err := s.sessions.InvalidateOthers(ctx, userID, sessionID); err != nil {
			s.logger.Error("failed to revoke other sessions after MFA disable",
				slog.String("user_id", userID),
				slog.Any("error", err))
		}
	}

	s.audit.Record(ctx, models.AuditMFADisabled, userID, ipAddress, nil)
	s.logger.Info("MFA disabled", slog.String("user_id", userID))

	return nil
}

// RegenerateRecoveryCodes replaces any remaining recovery codes with a fresh
// batch and returns the new plaintext codes. Requires the password.
func (s *MFAService) RegenerateRecoveryCodes(ctx context.Context, userID, password, ipAddress string) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, models.ErrMFANotEnabled
	}

	if !s.hasher.Compare(password, user.PasswordHash) {
		return nil, models.ErrInvalidCredentials
	}

	codes, err := auth.GenerateRecoveryCodes(10)
	if err != nil {
		s.logger.Error("failed to generate recovery codes",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = auth.HashRecoveryCode(code)
	}

	if err := s.users.UpdateRecoveryCodeHashes(ctx, userID, hashes); err != nil {
		s.logger.Error("failed to store recovery codes",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, models.AuditRecoveryCodesRotated, userID, ipAddress, nil)

	return codes, nil
}

// VerifySecondFactor checks a TOTP or recovery code for an MFA-enabled
// user. A matching recovery code is consumed: its hash is removed from the
// stored set so the code can never be used again. usedRecovery reports which
// kind matched.
func (s *MFAService) VerifySecondFactor(ctx context.Context, user *models.User, code string) (ok bool, usedRecovery bool, err error) {
	if user.MFASecret != nil && s.totp.ValidateCode(*user.MFASecret, code) {
		return true, false, nil
	}

	if !auth.ValidateRecoveryCodeFormat(code) {
		return false, false, nil
	}

	for i, hash := range user.MFARecoveryCodeHashes {
		if auth.VerifyRecoveryCode(code, hash) {
			// Consumption is a single conditional UPDATE in the repository,
			// so when two logins race on the same code only one wins; the
			// loser sees the hash already gone and fails.
			if err := s.users.ConsumeRecoveryCode(ctx, user.ID, hash); err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return false, false, nil
				}
				s.logger.Error("failed to consume recovery code",
					slog.String("user_id", user.ID),
					slog.Any("error", err))
				return false, false, models.ErrInternalServer
			}

			remaining := make([]string, 0, len(user.MFARecoveryCodeHashes)-1)
			remaining = append(remaining, user.MFARecoveryCodeHashes[:i]...)
			remaining = append(remaining, user.MFARecoveryCodeHashes[i+1:]...)
			user.MFARecoveryCodeHashes = remaining

			s.logger.Info("recovery code consumed",
				slog.String("user_id", user.ID),
				slog.Int("remaining", len(remaining)))
			return true, true, nil
		}
	}

	return false, false, nil
}

// CleanupStalePending removes enrollments that were begun but never
// confirmed within the TTL.
func (s *MFAService) CleanupStalePending(ctx context.Context) (int64, error) {
	if s.pendingTTL <= 0 {
		return 0, nil
	}
	return s.pending.DeleteStale(ctx, s.pendingTTL)
}
