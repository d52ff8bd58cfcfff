package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DB_PASSWORD", "testpassword")
	t.Setenv("JWT_ACCESS_SECRET", "access-secret-0123456789abcdef")
	t.Setenv("JWT_REFRESH_SECRET", "refresh-secret-0123456789abcdef")
	t.Setenv("JWT_VERIFICATION_SECRET", "verify-secret-0123456789abcdef")
	t.Setenv("JWT_RESET_SECRET", "reset-secret-0123456789abcdefgh")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.Equal(t, 24*time.Hour, cfg.Auth.VerificationTokenExpiry)
	assert.Equal(t, 1*time.Hour, cfg.Auth.PasswordResetTokenExpiry)
	assert.Equal(t, 30*time.Minute, cfg.Auth.SessionInactivityTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionAbsoluteTimeout)
	assert.Equal(t, 5, cfg.Auth.MaxConcurrentSessions)
	assert.Equal(t, 5, cfg.Auth.LoginMaxAttempts)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("DB_PASSWORD", "testpassword")
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")
	t.Setenv("JWT_VERIFICATION_SECRET", "")
	t.Setenv("JWT_RESET_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsShortSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_ACCESS_SECRET", "short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsWeakBcryptCost(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BCRYPT_COST", "10")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadProductionRequiresLongSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("JWT_ACCESS_SECRET", "only-twenty-chars-xx")

	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres",
		Password: "pw", Name: "ledgerkeep", SSLMode: "disable",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=pw dbname=ledgerkeep sslmode=disable",
		cfg.DSN())
}
