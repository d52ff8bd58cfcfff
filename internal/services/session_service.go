package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

// SessionRepository defines the interface for session storage
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, id string) error
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteForUser(ctx context.Context, id, userID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	DeleteOthers(ctx context.Context, userID, keepSessionID string) (int64, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*models.Session, error)
	DeleteExpiredForUser(ctx context.Context, userID string) (int64, error)
	DeleteLeastActiveOver(ctx context.Context, userID string, max int) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionPolicy holds session lifetime settings.
type SessionPolicy struct {
	InactivityTimeout     time.Duration
	AbsoluteTimeout       time.Duration
	RememberMeDuration    time.Duration
	MaxConcurrentSessions int
}

// SessionService manages server-side login sessions.
type SessionService struct {
	repo   SessionRepository
	policy SessionPolicy
	logger *slog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(repo SessionRepository, policy SessionPolicy, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		policy: policy,
		logger: logger,
	}
}

// Create opens a new session for a user. rememberMe selects the remember-me
// duration as the absolute expiry instead of the standard timeout. When the
// user is over the concurrent session cap, the least recently active
// sessions are evicted.
func (s *SessionService) Create(ctx context.Context, userID, ipAddress, userAgent string, rememberMe bool) (*models.Session, error) {
	lifetime := s.policy.AbsoluteTimeout
	if rememberMe && s.policy.RememberMeDuration > 0 {
		lifetime = s.policy.RememberMeDuration
	}

	session := &models.Session{
		UserID:    userID,
		ExpiresAt: time.Now().Add(lifetime),
	}
	if ipAddress != "" {
		session.IPAddress = &ipAddress
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}

	created, err := s.repo.Create(ctx, session)
	if err != nil {
		s.logger.Error("failed to create session",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if s.policy.MaxConcurrentSessions > 0 {
		// Expired sessions go first so they never crowd a live one out of
		// the cap.
		if _, err := s.repo.DeleteExpiredForUser(ctx, userID); err != nil {
			s.logger.Error("failed to purge expired sessions",
				slog.String("user_id", userID),
				slog.Any("error", err))
		}

		evicted, err := s.repo.DeleteLeastActiveOver(ctx, userID, s.policy.MaxConcurrentSessions)
		if err != nil {
			s.logger.Error("failed to trim sessions",
				slog.String("user_id", userID),
				slog.Any("error", err))
		} else if evicted > 0 {
			s.logger.Info("evicted oldest sessions over cap",
				slog.String("user_id", userID),
				slog.Int64("evicted", evicted))
		}
	}

	return created, nil
}

// Validate checks a session against both timeouts. A session past either
// timeout is deleted and reported invalid with a human-readable reason. A
// live session has its inactivity window slid forward.
func (s *SessionService) Validate(ctx context.Context, sessionID string) (*models.SessionValidation, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.SessionValidation{Valid: false, Reason: models.SessionReasonNotFound}, nil
		}
		return nil, err
	}

	now := time.Now()

	if now.After(session.ExpiresAt) {
		s.deleteQuietly(ctx, sessionID)
		return &models.SessionValidation{Valid: false, Reason: models.SessionReasonAbsoluteTimeout}, nil
	}

	if s.policy.InactivityTimeout > 0 && now.Sub(session.LastActivity) > s.policy.InactivityTimeout {
		s.deleteQuietly(ctx, sessionID)
		return &models.SessionValidation{Valid: false, Reason: models.SessionReasonInactivityTimeout}, nil
	}

	if err := s.repo.Touch(ctx, sessionID); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to touch session",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}

	session.LastActivity = now
	return &models.SessionValidation{Valid: true, Session: session}, nil
}

// IncrementTokenVersion revokes all refresh tokens minted against the
// session so far and returns the version new tokens must carry.
func (s *SessionService) IncrementTokenVersion(ctx context.Context, sessionID string) (int, error) {
	return s.repo.IncrementTokenVersion(ctx, sessionID)
}

// Invalidate ends one session.
func (s *SessionService) Invalidate(ctx context.Context, sessionID string) error {
	return s.repo.Delete(ctx, sessionID)
}

// InvalidateForUser ends one session only if it belongs to userID, so a
// user cannot revoke someone else's session by guessing ids.
func (s *SessionService) InvalidateForUser(ctx context.Context, sessionID, userID string) error {
	return s.repo.DeleteForUser(ctx, sessionID, userID)
}

// InvalidateAll ends every session a user has.
func (s *SessionService) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteAllForUser(ctx, userID)
}

// InvalidateOthers ends every session except the caller's own.
func (s *SessionService) InvalidateOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	return s.repo.DeleteOthers(ctx, userID, keepSessionID)
}

// ListActive returns a user's live sessions for display.
func (s *SessionService) ListActive(ctx context.Context, userID string) ([]*models.Session, error) {
	return s.repo.ListActiveForUser(ctx, userID)
}

// CleanupExpired removes sessions past their absolute expiry.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

func (s *SessionService) deleteQuietly(ctx context.Context, sessionID string) {
	if err := s.repo.Delete(ctx, sessionID); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to delete expired session",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
}
