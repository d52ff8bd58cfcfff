package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerkeep/ledgerkeep/internal/auth"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
	pkgauth "github.com/ledgerkeep/ledgerkeep/pkg/auth"
	pkglogger "github.com/ledgerkeep/ledgerkeep/pkg/logger"
)

// UserRepository defines the interface for user storage
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetEmailVerified(ctx context.Context, id string) error
	EnableMFA(ctx context.Context, id, secret string, recoveryHashes []string) error
	DisableMFA(ctx context.Context, id string) error
	UpdateRecoveryCodeHashes(ctx context.Context, id string, hashes []string) error
	ConsumeRecoveryCode(ctx context.Context, id, hash string) error
}

// OrganizationRepository defines the interface for organization storage
type OrganizationRepository interface {
	Create(ctx context.Context, name string) (*models.Organization, error)
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	Delete(ctx context.Context, id string) error
}

// MFAChallengeRepository defines the interface for login second factor gates
type MFAChallengeRepository interface {
	Create(ctx context.Context, challenge *models.MFALoginChallenge) (*models.MFALoginChallenge, error)
	GetByID(ctx context.Context, id string) (*models.MFALoginChallenge, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Rate limit action names. The identifier is an IP for pre-auth flows and a
// user id once one is known.
const (
	actionLogin = "login"
	actionMFA   = "mfa"
	actionReset = "reset"
)

// AuthPolicies bundles the knobs the auth flows need.
type AuthPolicies struct {
	Login        RateLimitPolicy
	MFA          RateLimitPolicy
	Reset        RateLimitPolicy
	ChallengeTTL time.Duration
}

// AuthService orchestrates signup, login, token refresh, and the password
// lifecycle.
type AuthService struct {
	users      UserRepository
	orgs       OrganizationRepository
	challenges MFAChallengeRepository
	sessions   *SessionService
	mfa        *MFAService
	limiter    *RateLimitService
	tm         *auth.TokenManager
	hasher     *pkgauth.Hasher
	email      EmailService
	audit      *AuditService
	timing     *auth.TimingDelay
	policies   AuthPolicies
	logger     *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserRepository,
	orgs OrganizationRepository,
	challenges MFAChallengeRepository,
	sessions *SessionService,
	mfa *MFAService,
	limiter *RateLimitService,
	tm *auth.TokenManager,
	hasher *pkgauth.Hasher,
	email EmailService,
	audit *AuditService,
	timing *auth.TimingDelay,
	policies AuthPolicies,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		orgs:       orgs,
		challenges: challenges,
		sessions:   sessions,
		mfa:        mfa,
		limiter:    limiter,
		tm:         tm,
		hasher:     hasher,
		email:      email,
		audit:      audit,
		timing:     timing,
		policies:   policies,
		logger:     logger,
	}
}

// UserResponse represents a user in HTTP responses
type UserResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id,omitempty"`
	EmailVerified  bool   `json:"email_verified"`
	MFAEnabled     bool   `json:"mfa_enabled"`
	CreatedAt      string `json:"created_at"`
}

// AuthTokens is the token pair handed out on successful authentication
type AuthTokens struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	SessionID    string        `json:"session_id"`
	User         *UserResponse `json:"user"`
}

// LoginResult is either a finished login or an MFA challenge to complete.
type LoginResult struct {
	MFARequired bool        `json:"mfa_required"`
	ChallengeID string      `json:"challenge_id,omitempty"`
	Auth        *AuthTokens `json:"auth,omitempty"`
}

func userModelToResponse(user *models.User) *UserResponse {
	resp := &UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		Role:          string(user.Role),
		EmailVerified: user.EmailVerified,
		MFAEnabled:    user.MFAEnabled,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
	}
	if user.OrganizationID != nil {
		resp.OrganizationID = *user.OrganizationID
	}
	return resp
}

// Signup registers a new account. When organizationName is given a fresh
// organization is created and the user becomes its admin; otherwise the
// account starts without an organization. The account cannot log in until
// the email is verified.
func (s *AuthService) Signup(ctx context.Context, email, password, organizationName, ipAddress string) (*UserResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Reject a taken email before touching the organizations table, so the
	// common duplicate-signup path leaves nothing behind.
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		s.logger.Info("signup rejected: email already registered")
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check email availability", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		IsActive:     true,
	}

	var orgID string
	if organizationName != "" {
		org, err := s.orgs.Create(ctx, organizationName)
		if err != nil {
			s.logger.Error("failed to create organization", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		orgID = org.ID
		user.OrganizationID = &org.ID
		user.Role = models.RoleAdmin
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		if orgID != "" {
			// Lost a race on the unique email; drop the org so the failed
			// signup leaves no partial state.
			if delErr := s.orgs.Delete(ctx, orgID); delErr != nil {
				s.logger.Error("failed to remove organization after signup conflict",
					slog.String("organization_id", orgID),
					slog.Any("error", delErr))
			}
		}
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("signup rejected: email already registered")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.sendVerificationEmail(created)
	s.audit.Record(ctx, models.AuditSignupSuccess, created.ID, ipAddress, nil)
	s.logger.Info("user signed up",
		slog.String("user_id", created.ID),
		slog.String("email", pkglogger.SanitizedEmail(created.Email)))

	return userModelToResponse(created), nil
}

// VerifyEmail consumes an email-verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token, ipAddress string) error {
	claims, err := s.tm.VerifyVerificationToken(token)
	if err != nil {
		return err
	}

	if err := s.users.SetEmailVerified(ctx, claims.UserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to mark email verified",
			slog.String("user_id", claims.UserID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Record(ctx, models.AuditEmailVerified, claims.UserID, ipAddress, nil)
	return nil
}

// ResendVerification sends a fresh verification email. Always reports
// success so the endpoint cannot be used to probe which emails exist.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to look up user for resend", slog.Any("error", err))
		}
		return nil
	}
	if user.EmailVerified {
		return nil
	}

	s.sendVerificationEmail(user)
	return nil
}

// Login checks credentials and either returns tokens or, for MFA-enabled
// accounts, a single-use challenge to complete with a second factor.
// Attempts are rate limited per client IP; failures are padded with a
// timing delay so the failure cause is not observable from latency.
func (s *AuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string, rememberMe bool) (*LoginResult, error) {
	start := time.Now()

	if _, err := s.limiter.Check(ctx, actionLogin, ipAddress, s.policies.Login); err != nil {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login failed: invalid credentials")
			s.audit.Record(ctx, models.AuditLoginFailed, "", ipAddress, map[string]string{"reason": "invalid_credentials"})
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !s.hasher.Compare(password, user.PasswordHash) {
		s.logger.Info("login failed: invalid credentials")
		s.audit.Record(ctx, models.AuditLoginFailed, user.ID, ipAddress, map[string]string{"reason": "invalid_credentials"})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	if !user.IsActive {
		s.audit.Record(ctx, models.AuditLoginFailed, user.ID, ipAddress, map[string]string{"reason": "account_disabled"})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrAccountDisabled
	}

	if !user.EmailVerified {
		s.audit.Record(ctx, models.AuditLoginFailed, user.ID, ipAddress, map[string]string{"reason": "email_not_verified"})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrEmailNotVerified
	}

	if user.MFAEnabled {
		challenge := &models.MFALoginChallenge{
			UserID:     user.ID,
			RememberMe: rememberMe,
			ExpiresAt:  time.Now().Add(s.policies.ChallengeTTL),
		}
		if ipAddress != "" {
			challenge.IPAddress = &ipAddress
		}
		if userAgent != "" {
			challenge.UserAgent = &userAgent
		}

		created, err := s.challenges.Create(ctx, challenge)
		if err != nil {
			s.logger.Error("failed to create MFA challenge",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.audit.Record(ctx, models.AuditMFAChallengeIssued, user.ID, ipAddress, nil)
		return &LoginResult{MFARequired: true, ChallengeID: created.ID}, nil
	}

	tokens, err := s.issueSession(ctx, user, ipAddress, userAgent, rememberMe)
	if err != nil {
		return nil, err
	}

	s.limiter.Clear(ctx, actionLogin, ipAddress)
	s.audit.Record(ctx, models.AuditLoginSuccess, user.ID, ipAddress, nil)
	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	return &LoginResult{Auth: tokens}, nil
}

// LoginMFA completes a challenged login with a TOTP or recovery code.
// Second factor attempts are rate limited per user, not per IP, so an
// attacker cannot dodge the limit by rotating addresses.
func (s *AuthService) LoginMFA(ctx context.Context, challengeID, code, ipAddress, userAgent string) (*AuthTokens, error) {
	challenge, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrChallengeExpired
		}
		return nil, models.ErrInternalServer
	}

	if time.Now().After(challenge.ExpiresAt) {
		_ = s.challenges.Delete(ctx, challengeID)
		return nil, models.ErrChallengeExpired
	}

	if _, err := s.limiter.Check(ctx, actionMFA, challenge.UserID, s.policies.MFA); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, challenge.UserID)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	if !user.MFAEnabled {
		// MFA was disabled between password check and second factor; make
		// the client restart the login.
		_ = s.challenges.Delete(ctx, challengeID)
		return nil, models.ErrChallengeExpired
	}

	ok, usedRecovery, err := s.mfa.VerifySecondFactor(ctx, user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.audit.Record(ctx, models.AuditMFAChallengeFailed, user.ID, ipAddress, nil)
		s.timing.Wait(false)
		return nil, models.ErrInvalidMFACode
	}

	if err := s.challenges.Delete(ctx, challengeID); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to delete MFA challenge",
			slog.String("challenge_id", challengeID),
			slog.Any("error", err))
	}

	tokens, err := s.issueSession(ctx, user, ipAddress, userAgent, challenge.RememberMe)
	if err != nil {
		return nil, err
	}

	s.limiter.Clear(ctx, actionMFA, user.ID)
	s.limiter.Clear(ctx, actionLogin, ipAddress)

	if usedRecovery {
		s.audit.Record(ctx, models.AuditRecoveryCodeUsed, user.ID, ipAddress,
			map[string]string{"remaining": strconv.Itoa(len(user.MFARecoveryCodeHashes))})
	}
	s.audit.Record(ctx, models.AuditLoginSuccess, user.ID, ipAddress, map[string]string{"mfa": "true"})
	s.logger.Info("user logged in with MFA", slog.String("user_id", user.ID))

	return tokens, nil
}

// Refresh exchanges a live refresh token for a fresh access+refresh pair.
// The presented token's version must exactly match the session's current
// version; a mismatch means the token was minted before an explicit
// revocation and is rejected outright. Plain refresh never moves the
// version, only revocation actions do, so a client may refresh any number
// of times against the same session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ipAddress string) (*AuthTokens, error) {
	claims, err := s.tm.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	validation, err := s.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		s.logger.Error("failed to validate session for refresh", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !validation.Valid {
		return nil, models.ErrSessionExpired
	}

	if claims.TokenVersion != validation.Session.TokenVersion {
		// Minted against a version that has since been revoked.
		s.logger.Warn("refresh token version mismatch",
			slog.String("session_id", claims.SessionID),
			slog.Int("presented", claims.TokenVersion),
			slog.Int("current", validation.Session.TokenVersion))
		return nil, models.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, models.ErrInvalidToken
	}
	if !user.IsActive {
		return nil, models.ErrAccountDisabled
	}

	accessToken, err := s.tm.GenerateAccessToken(user, claims.SessionID)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	newRefreshToken, err := s.tm.GenerateRefreshToken(user, claims.SessionID, validation.Session.TokenVersion)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, models.AuditTokenRefreshed, user.ID, ipAddress, nil)

	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		SessionID:    claims.SessionID,
		User:         userModelToResponse(user),
	}, nil
}

// Logout ends the caller's session. Best effort: logging out an already
// dead session is still a successful logout.
func (s *AuthService) Logout(ctx context.Context, sessionID, userID, ipAddress string) {
	if err := s.sessions.Invalidate(ctx, sessionID); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to invalidate session on logout",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
	s.audit.Record(ctx, models.AuditLogout, userID, ipAddress, nil)
}

// LogoutAll ends every session the user has, including the caller's.
func (s *AuthService) LogoutAll(ctx context.Context, userID, ipAddress string) (int64, error) {
	count, err := s.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		s.logger.Error("failed to invalidate all sessions",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	s.audit.Record(ctx, models.AuditLogoutAll, userID, ipAddress,
		map[string]string{"sessions": strconv.Itoa(int(count))})
	return count, nil
}

// RequestPasswordReset emails a reset link. Always reports success; whether
// the email maps to an account is not observable from the response. Rate
// limited per client IP.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, ipAddress string) error {
	if _, err := s.limiter.Check(ctx, actionReset, ipAddress, s.policies.Reset); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to look up user for password reset", slog.Any("error", err))
		}
		return nil
	}

	token, err := s.tm.GeneratePasswordResetToken(user)
	if err != nil {
		s.logger.Error("failed to generate reset token",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.email.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
			s.logger.Error("failed to send password reset email", slog.Any("error", err))
		}
	}()

	s.audit.Record(ctx, models.AuditPasswordResetRequested, user.ID, ipAddress, nil)
	return nil
}

// CompletePasswordReset consumes a reset token and sets a new password. The
// token carries a snapshot of the password hash it was issued against; any
// password change since then (including a previous use of the same token)
// invalidates it. All sessions are revoked afterward.
func (s *AuthService) CompletePasswordReset(ctx context.Context, token, newPassword, ipAddress string) error {
	claims, err := s.tm.VerifyPasswordResetToken(token)
	if err != nil {
		return err
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return models.ErrInvalidToken
	}

	if claims.PasswordHashSnapshot != user.PasswordHash {
		s.logger.Info("reset token rejected: password changed since issuance",
			slog.String("user_id", user.ID))
		return models.ErrInvalidToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.logger.Error("failed to update password",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.sessions.InvalidateAll(ctx, user.ID); err != nil {
		s.logger.Error("failed to invalidate sessions after reset",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	s.audit.Record(ctx, models.AuditPasswordResetCompleted, user.ID, ipAddress, nil)
	s.logger.Info("password reset completed", slog.String("user_id", user.ID))

	return nil
}

// ChangePassword changes the password of a logged-in user who knows the
// current one. Other sessions are revoked; the caller's stays alive.
func (s *AuthService) ChangePassword(ctx context.Context, userID, sessionID, currentPassword, newPassword, ipAddress string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Compare(currentPassword, user.PasswordHash) {
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		s.logger.Error("failed to update password",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.sessions.InvalidateOthers(ctx, userID, sessionID); err != nil {
		s.logger.Error("failed to invalidate other sessions",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	s.audit.Record(ctx, models.AuditPasswordChanged, userID, ipAddress, nil)
	s.logger.Info("password changed", slog.String("user_id", userID))

	return nil
}

// CleanupExpiredChallenges removes expired MFA login challenges.
func (s *AuthService) CleanupExpiredChallenges(ctx context.Context) (int64, error) {
	return s.challenges.DeleteExpired(ctx)
}

// issueSession opens a session and mints the token pair for it.
func (s *AuthService) issueSession(ctx context.Context, user *models.User, ipAddress, userAgent string, rememberMe bool) (*AuthTokens, error) {
	session, err := s.sessions.Create(ctx, user.ID, ipAddress, userAgent, rememberMe)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tm.GenerateAccessToken(user, session.ID)
	if err != nil {
		s.logger.Error("failed to generate access token",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user, session.ID, session.TokenVersion)
	if err != nil {
		s.logger.Error("failed to generate refresh token",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    session.ID,
		User:         userModelToResponse(user),
	}, nil
}

// sendVerificationEmail mints a verification token and emails it without
// blocking the caller.
func (s *AuthService) sendVerificationEmail(user *models.User) {
	token, err := s.tm.GenerateVerificationToken(user)
	if err != nil {
		s.logger.Error("failed to generate verification token",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.email.SendVerificationEmail(ctx, user.Email, token); err != nil {
			s.logger.Error("failed to send verification email", slog.Any("error", err))
		}
	}()
}
