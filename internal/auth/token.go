package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

// TokenKind discriminates the four signing contexts. Each kind has its own
// secret, audience, and expiry; a token of one kind never verifies as
// another.
type TokenKind string

const (
	TokenKindAccess            TokenKind = "access"
	TokenKindRefresh           TokenKind = "refresh"
	TokenKindEmailVerification TokenKind = "email-verification"
	TokenKindPasswordReset     TokenKind = "password-reset"
)

// Claims is the claim set shared by all four token kinds. Kind-specific
// fields are omitted when empty.
type Claims struct {
	Type           string `json:"type"`
	UserID         string `json:"user_id"`
	Email          string `json:"email,omitempty"`
	Role           string `json:"role,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	TokenVersion   int    `json:"token_version,omitempty"`
	// PasswordHashSnapshot pins a password-reset token to the hash that was
	// current at issuance; a later password change invalidates the token.
	PasswordHashSnapshot string `json:"pwd_snapshot,omitempty"`
	jwt.RegisteredClaims
}

// TokenSecrets holds one HMAC secret per token kind.
type TokenSecrets struct {
	Access            string
	Refresh           string
	EmailVerification string
	PasswordReset     string
}

// TokenExpiries holds the lifetime of each token kind.
type TokenExpiries struct {
	Access            time.Duration
	Refresh           time.Duration
	EmailVerification time.Duration
	PasswordReset     time.Duration
}

// TokenManager signs and verifies the four JWT kinds.
type TokenManager struct {
	secrets  TokenSecrets
	expiries TokenExpiries
	issuer   string
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secrets TokenSecrets, expiries TokenExpiries, issuer string) *TokenManager {
	return &TokenManager{
		secrets:  secrets,
		expiries: expiries,
		issuer:   issuer,
	}
}

func (tm *TokenManager) secretFor(kind TokenKind) []byte {
	switch kind {
	case TokenKindAccess:
		return []byte(tm.secrets.Access)
	case TokenKindRefresh:
		return []byte(tm.secrets.Refresh)
	case TokenKindEmailVerification:
		return []byte(tm.secrets.EmailVerification)
	case TokenKindPasswordReset:
		return []byte(tm.secrets.PasswordReset)
	}
	return nil
}

func (tm *TokenManager) expiryFor(kind TokenKind) time.Duration {
	switch kind {
	case TokenKindAccess:
		return tm.expiries.Access
	case TokenKindRefresh:
		return tm.expiries.Refresh
	case TokenKindEmailVerification:
		return tm.expiries.EmailVerification
	case TokenKindPasswordReset:
		return tm.expiries.PasswordReset
	}
	return 0
}

func (tm *TokenManager) audienceFor(kind TokenKind) string {
	return tm.issuer + ":" + string(kind)
}

func (tm *TokenManager) generate(kind TokenKind, claims *Claims) (string, error) {
	now := time.Now()
	claims.Type = string(kind)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    tm.issuer,
		Audience:  jwt.ClaimStrings{tm.audienceFor(kind)},
		ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiryFor(kind))),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secretFor(kind))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// GenerateAccessToken creates a short-lived access token bound to a session.
func (tm *TokenManager) GenerateAccessToken(user *models.User, sessionID string) (string, error) {
	return tm.generate(TokenKindAccess, &Claims{
		UserID:         user.ID,
		Email:          user.Email,
		Role:           string(user.Role),
		OrganizationID: derefOr(user.OrganizationID, ""),
		SessionID:      sessionID,
	})
}

// GenerateRefreshToken creates a long-lived refresh token carrying the
// session's token version at issuance time.
func (tm *TokenManager) GenerateRefreshToken(user *models.User, sessionID string, tokenVersion int) (string, error) {
	return tm.generate(TokenKindRefresh, &Claims{
		UserID:         user.ID,
		Email:          user.Email,
		Role:           string(user.Role),
		OrganizationID: derefOr(user.OrganizationID, ""),
		SessionID:      sessionID,
		TokenVersion:   tokenVersion,
	})
}

// GenerateVerificationToken creates an email-verification token.
func (tm *TokenManager) GenerateVerificationToken(user *models.User) (string, error) {
	return tm.generate(TokenKindEmailVerification, &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
	})
}

// GeneratePasswordResetToken creates a password-reset token snapshotting the
// user's current password hash. The snapshot makes the token effectively
// single-use: once the password changes, the snapshot no longer matches.
func (tm *TokenManager) GeneratePasswordResetToken(user *models.User) (string, error) {
	return tm.generate(TokenKindPasswordReset, &Claims{
		UserID:               user.ID,
		Email:                user.Email,
		PasswordHashSnapshot: user.PasswordHash,
	})
}

// Verify checks signature, issuer, audience, expiry, and the type claim for
// the given kind. The type claim is checked first (on the unverified
// payload) so that presenting a token of the wrong kind reports
// ErrWrongTokenType rather than a bare signature failure.
func (tm *TokenManager) Verify(kind TokenKind, tokenString string) (*Claims, error) {
	if peek := tm.Decode(tokenString); peek != nil && peek.Type != "" && peek.Type != string(kind) {
		return nil, models.ErrWrongTokenType
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secretFor(kind), nil
	},
		jwt.WithIssuer(tm.issuer),
		jwt.WithAudience(tm.audienceFor(kind)),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrInvalidToken
	}

	if !token.Valid {
		return nil, models.ErrInvalidToken
	}

	if claims.Type != string(kind) {
		return nil, models.ErrWrongTokenType
	}

	return claims, nil
}

// VerifyAccessToken verifies an access token.
func (tm *TokenManager) VerifyAccessToken(tokenString string) (*Claims, error) {
	return tm.Verify(TokenKindAccess, tokenString)
}

// VerifyRefreshToken verifies a refresh token.
func (tm *TokenManager) VerifyRefreshToken(tokenString string) (*Claims, error) {
	return tm.Verify(TokenKindRefresh, tokenString)
}

// VerifyVerificationToken verifies an email-verification token.
func (tm *TokenManager) VerifyVerificationToken(tokenString string) (*Claims, error) {
	return tm.Verify(TokenKindEmailVerification, tokenString)
}

// VerifyPasswordResetToken verifies a password-reset token.
func (tm *TokenManager) VerifyPasswordResetToken(tokenString string) (*Claims, error) {
	return tm.Verify(TokenKindPasswordReset, tokenString)
}

// Decode parses a token without verifying its signature. For logging and
// debugging only; never use the result for authorization decisions.
func (tm *TokenManager) Decode(tokenString string) *Claims {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}

// IsExpired reports whether the token's exp claim is in the past. Malformed
// tokens and tokens without an expiry count as expired.
func (tm *TokenManager) IsExpired(tokenString string) bool {
	claims := tm.Decode(tokenString)
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return time.Now().After(claims.ExpiresAt.Time)
}

// Expiration returns the token's expiry time, if present.
func (tm *TokenManager) Expiration(tokenString string) (time.Time, bool) {
	claims := tm.Decode(tokenString)
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ExtractBearerToken pulls the token out of an "Authorization: Bearer ..."
// header value. Returns "" when the header is missing or malformed.
func ExtractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
