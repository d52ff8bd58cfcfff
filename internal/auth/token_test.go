package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

func newTestTokenManager(accessExpiry time.Duration) *TokenManager {
	return NewTokenManager(
		TokenSecrets{
			Access:            "access-secret-0123456789abcdef",
			Refresh:           "refresh-secret-0123456789abcdef",
			EmailVerification: "verify-secret-0123456789abcdef",
			PasswordReset:     "reset-secret-0123456789abcdefgh",
		},
		TokenExpiries{
			Access:            accessExpiry,
			Refresh:           7 * 24 * time.Hour,
			EmailVerification: 24 * time.Hour,
			PasswordReset:     time.Hour,
		},
		"ledgerkeep",
	)
}

func testUser() *models.User {
	org := "org-1"
	return &models.User{
		ID:             "user-1",
		Email:          "alice@example.com",
		PasswordHash:   "$2a$12$somethinghashed",
		Role:           models.RoleAccountant,
		OrganizationID: &org,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tm := newTestTokenManager(15 * time.Minute)

	token, err := tm.GenerateAccessToken(testUser(), "session-1")
	require.NoError(t, err)

	claims, err := tm.VerifyAccessToken(token)
	require.NoError(t, err)

	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "accountant", claims.Role)
	assert.Equal(t, "org-1", claims.OrganizationID)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.NotEmpty(t, claims.ID)
}

func TestRefreshTokenCarriesTokenVersion(t *testing.T) {
	tm := newTestTokenManager(15 * time.Minute)

	token, err := tm.GenerateRefreshToken(testUser(), "session-1", 3)
	require.NoError(t, err)

	claims, err := tm.VerifyRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, 3, claims.TokenVersion)
	assert.Equal(t, "session-1", claims.SessionID)
}

func TestCrossKindVerificationFailsWithWrongTokenType(t *testing.T) {
	tm := newTestTokenManager(15 * time.Minute)

	access, err := tm.GenerateAccessToken(testUser(), "session-1")
	require.NoError(t, err)

	_, err = tm.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, models.ErrWrongTokenType)

	refresh, err := tm.GenerateRefreshToken(testUser(), "session-1", 1)
	require.NoError(t, err)

	_, err = tm.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, models.ErrWrongTokenType)

	_, err = tm.VerifyPasswordResetToken(access)
	assert.ErrorIs(t, err, models.ErrWrongTokenType)
}

func TestExpiredTokenFailsWithTokenExpired(t *testing.T) {
	tm := newTestTokenManager(-1 * time.Minute)

	token, err := tm.GenerateAccessToken(testUser(), "session-1")
	require.NoError(t, err)

	_, err = tm.VerifyAccessToken(token)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
	assert.True(t, tm.IsExpired(token))
}

func TestTamperedTokenFailsWithInvalidToken(t *testing.T) {
	tm := newTestTokenManager(15 * time.Minute)

	token, err := tm.GenerateAccessToken(testUser(), "session-1")
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	_, err = tm.VerifyAccessToken(tampered)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestTokenFromDifferentIssuerRejected(t *testing.T) {
	tm := newTestTokenManager(15 * time.Minute)
	other := NewTokenManager(
		TokenSecrets{
			Access:            "access-secret-0123456789abcdef",
			Refresh:           "refresh-secret-0123456789abcdef",
			EmailVerification: "verify-secret-0123456789abcdef",
			PasswordReset:     "reset-secret-0123456789abcdefgh",
		},
		TokenExpiries{Access: 15 * time.Minute},
		"someone-else",
	)

	token, err := other.GenerateAccessToken(testUser(), "session-1")
	require.NoError(t, err)

	_, err = tm.VerifyAccessToken(token)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestPasswordResetTokenSnapshotsHash(t *testing.T) {
	tm := newTestTokenManager(15 * time.Minute)
	user := testUser()

	token, err := tm.GeneratePasswordResetToken(user)
	require.NoError(t, err)

	claims, err := tm.VerifyPasswordResetToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.PasswordHash, claims.PasswordHashSnapshot)
}

func TestDecodeIsUnverified(t *testing.T) {
	tm := newTestTokenManager(15 * time.Minute)

	token, err := tm.GenerateAccessToken(testUser(), "session-1")
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	claims := tm.Decode(tampered)
	require.NotNil(t, claims)
	assert.Equal(t, "user-1", claims.UserID)

	assert.Nil(t, tm.Decode("garbage"))
}

func TestExpiration(t *testing.T) {
	tm := newTestTokenManager(15 * time.Minute)

	token, err := tm.GenerateAccessToken(testUser(), "session-1")
	require.NoError(t, err)

	exp, ok := tm.Expiration(token)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	_, ok = tm.Expiration("garbage")
	assert.False(t, ok)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc.def.ghi", ExtractBearerToken("Bearer abc.def.ghi"))
	assert.Equal(t, "abc.def.ghi", ExtractBearerToken("bearer abc.def.ghi"))
	assert.Equal(t, "", ExtractBearerToken(""))
	assert.Equal(t, "", ExtractBearerToken("Basic abc"))
	assert.Equal(t, "", ExtractBearerToken("Bearer"))
}
