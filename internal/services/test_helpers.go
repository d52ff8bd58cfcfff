package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	CreateFunc                   func(ctx context.Context, user *models.User) (*models.User, error)
	GetByIDFunc                  func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc               func(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordFunc           func(ctx context.Context, id, passwordHash string) error
	SetEmailVerifiedFunc         func(ctx context.Context, id string) error
	EnableMFAFunc                func(ctx context.Context, id, secret string, recoveryHashes []string) error
	DisableMFAFunc               func(ctx context.Context, id string) error
	UpdateRecoveryCodeHashesFunc func(ctx context.Context, id string, hashes []string) error
	ConsumeRecoveryCodeFunc      func(ctx context.Context, id, hash string) error
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) SetEmailVerified(ctx context.Context, id string) error {
	if m.SetEmailVerifiedFunc != nil {
		return m.SetEmailVerifiedFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) EnableMFA(ctx context.Context, id, secret string, recoveryHashes []string) error {
	if m.EnableMFAFunc != nil {
		return m.EnableMFAFunc(ctx, id, secret, recoveryHashes)
	}
	return nil
}

func (m *MockUserRepository) DisableMFA(ctx context.Context, id string) error {
	if m.DisableMFAFunc != nil {
		return m.DisableMFAFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) UpdateRecoveryCodeHashes(ctx context.Context, id string, hashes []string) error {
	if m.UpdateRecoveryCodeHashesFunc != nil {
		return m.UpdateRecoveryCodeHashesFunc(ctx, id, hashes)
	}
	return nil
}

func (m *MockUserRepository) ConsumeRecoveryCode(ctx context.Context, id, hash string) error {
	if m.ConsumeRecoveryCodeFunc != nil {
		return m.ConsumeRecoveryCodeFunc(ctx, id, hash)
	}
	return nil
}

// MockOrganizationRepository implements OrganizationRepository for testing
type MockOrganizationRepository struct {
	CreateFunc  func(ctx context.Context, name string) (*models.Organization, error)
	GetByIDFunc func(ctx context.Context, id string) (*models.Organization, error)
	DeleteFunc  func(ctx context.Context, id string) error
}

func (m *MockOrganizationRepository) Create(ctx context.Context, name string) (*models.Organization, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, name)
	}
	return &models.Organization{ID: "org_mock", Name: name, CreatedAt: time.Now()}, nil
}

func (m *MockOrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockOrganizationRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc                func(ctx context.Context, session *models.Session) (*models.Session, error)
	GetByIDFunc               func(ctx context.Context, id string) (*models.Session, error)
	TouchFunc                 func(ctx context.Context, id string) error
	IncrementTokenVersionFunc func(ctx context.Context, id string) (int, error)
	DeleteFunc                func(ctx context.Context, id string) error
	DeleteForUserFunc         func(ctx context.Context, id, userID string) error
	DeleteAllForUserFunc      func(ctx context.Context, userID string) (int64, error)
	DeleteOthersFunc          func(ctx context.Context, userID, keepSessionID string) (int64, error)
	ListActiveForUserFunc     func(ctx context.Context, userID string) ([]*models.Session, error)
	DeleteExpiredForUserFunc  func(ctx context.Context, userID string) (int64, error)
	DeleteLeastActiveOverFunc func(ctx context.Context, userID string, max int) (int64, error)
	DeleteExpiredFunc         func(ctx context.Context) (int64, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	session.ID = "session_mock"
	session.TokenVersion = 1
	now := time.Now()
	session.LastActivity = now
	session.CreatedAt = now
	return session, nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Touch(ctx context.Context, id string) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionRepository) IncrementTokenVersion(ctx context.Context, id string) (int, error) {
	if m.IncrementTokenVersionFunc != nil {
		return m.IncrementTokenVersionFunc(ctx, id)
	}
	return 2, nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionRepository) DeleteForUser(ctx context.Context, id, userID string) error {
	if m.DeleteForUserFunc != nil {
		return m.DeleteForUserFunc(ctx, id, userID)
	}
	return nil
}

func (m *MockSessionRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	if m.DeleteAllForUserFunc != nil {
		return m.DeleteAllForUserFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockSessionRepository) DeleteOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	if m.DeleteOthersFunc != nil {
		return m.DeleteOthersFunc(ctx, userID, keepSessionID)
	}
	return 0, nil
}

func (m *MockSessionRepository) ListActiveForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	if m.ListActiveForUserFunc != nil {
		return m.ListActiveForUserFunc(ctx, userID)
	}
	return []*models.Session{}, nil
}

func (m *MockSessionRepository) DeleteExpiredForUser(ctx context.Context, userID string) (int64, error) {
	if m.DeleteExpiredForUserFunc != nil {
		return m.DeleteExpiredForUserFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockSessionRepository) DeleteLeastActiveOver(ctx context.Context, userID string, max int) (int64, error) {
	if m.DeleteLeastActiveOverFunc != nil {
		return m.DeleteLeastActiveOverFunc(ctx, userID, max)
	}
	return 0, nil
}

func (m *MockSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockRateLimitRepository implements RateLimitRepository for testing
type MockRateLimitRepository struct {
	IncrementOrResetFunc func(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error)
	SetLockedUntilFunc   func(ctx context.Context, key string, until time.Time) error
	DeleteFunc           func(ctx context.Context, key string) error
	DeleteExpiredFunc    func(ctx context.Context) (int64, error)
}

func (m *MockRateLimitRepository) IncrementOrReset(ctx context.Context, key string, window time.Duration) (*models.RateLimitRecord, error) {
	if m.IncrementOrResetFunc != nil {
		return m.IncrementOrResetFunc(ctx, key, window)
	}
	now := time.Now()
	return &models.RateLimitRecord{Key: key, Count: 1, WindowStart: now, ExpiresAt: now.Add(window)}, nil
}

func (m *MockRateLimitRepository) SetLockedUntil(ctx context.Context, key string, until time.Time) error {
	if m.SetLockedUntilFunc != nil {
		return m.SetLockedUntilFunc(ctx, key, until)
	}
	return nil
}

func (m *MockRateLimitRepository) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	return nil
}

func (m *MockRateLimitRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockMFAPendingRepository implements MFAPendingRepository for testing
type MockMFAPendingRepository struct {
	UpsertFunc      func(ctx context.Context, setup *models.MFAPendingSetup) error
	GetByUserIDFunc func(ctx context.Context, userID string) (*models.MFAPendingSetup, error)
	DeleteFunc      func(ctx context.Context, userID string) error
	DeleteStaleFunc func(ctx context.Context, olderThan time.Duration) (int64, error)
}

func (m *MockMFAPendingRepository) Upsert(ctx context.Context, setup *models.MFAPendingSetup) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, setup)
	}
	return nil
}

func (m *MockMFAPendingRepository) GetByUserID(ctx context.Context, userID string) (*models.MFAPendingSetup, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockMFAPendingRepository) Delete(ctx context.Context, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFAPendingRepository) DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if m.DeleteStaleFunc != nil {
		return m.DeleteStaleFunc(ctx, olderThan)
	}
	return 0, nil
}

// MockMFAChallengeRepository implements MFAChallengeRepository for testing
type MockMFAChallengeRepository struct {
	CreateFunc        func(ctx context.Context, challenge *models.MFALoginChallenge) (*models.MFALoginChallenge, error)
	GetByIDFunc       func(ctx context.Context, id string) (*models.MFALoginChallenge, error)
	DeleteFunc        func(ctx context.Context, id string) error
	DeleteExpiredFunc func(ctx context.Context) (int64, error)
}

func (m *MockMFAChallengeRepository) Create(ctx context.Context, challenge *models.MFALoginChallenge) (*models.MFALoginChallenge, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, challenge)
	}
	challenge.ID = "challenge_mock"
	challenge.CreatedAt = time.Now()
	return challenge, nil
}

func (m *MockMFAChallengeRepository) GetByID(ctx context.Context, id string) (*models.MFALoginChallenge, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockMFAChallengeRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *MockMFAChallengeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	AppendFunc       func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	ListByUserIDFunc func(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
	Events           []string
}

func (m *MockAuditLogRepository) Append(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	m.Events = append(m.Events, log.Event)
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, log)
	}
	return log, nil
}

func (m *MockAuditLogRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendVerificationEmailFunc  func(ctx context.Context, email, token string) error
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string) error
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, token)
	}
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token)
	}
	return nil
}
