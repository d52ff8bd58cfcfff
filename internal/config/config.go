package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	// One secret per token kind so a leaked secret for one kind cannot be
	// used to forge another.
	AccessTokenSecret        string
	RefreshTokenSecret       string
	VerificationTokenSecret  string
	PasswordResetTokenSecret string

	AccessTokenExpiry        time.Duration
	RefreshTokenExpiry       time.Duration
	VerificationTokenExpiry  time.Duration
	PasswordResetTokenExpiry time.Duration

	BcryptCost int

	SessionInactivityTimeout time.Duration
	SessionAbsoluteTimeout   time.Duration
	RememberMeDuration       time.Duration
	MaxConcurrentSessions    int

	LoginMaxAttempts     int
	LoginWindow          time.Duration
	LoginLockoutDuration time.Duration
	MFAMaxAttempts       int
	MFAWindow            time.Duration
	MFALockoutDuration   time.Duration
	ResetMaxAttempts     int
	ResetWindow          time.Duration

	MFAIssuer       string
	MFAPendingTTL   time.Duration
	MFAChallengeTTL time.Duration

	TimingDelayBaseMs   int
	TimingDelayRandomMs int

	CleanupInterval time.Duration
}

type EmailConfig struct {
	Provider    string // "ses" or "log"
	AWSRegion   string
	FromAddress string
	AppBaseURL  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "ledgerkeep"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "")),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			AccessTokenSecret:        getEnv("JWT_ACCESS_SECRET", ""),
			RefreshTokenSecret:       getEnv("JWT_REFRESH_SECRET", ""),
			VerificationTokenSecret:  getEnv("JWT_VERIFICATION_SECRET", ""),
			PasswordResetTokenSecret: getEnv("JWT_RESET_SECRET", ""),

			AccessTokenExpiry:        getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:       getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			VerificationTokenExpiry:  getEnvAsDuration("VERIFICATION_TOKEN_EXPIRY", 24*time.Hour),
			PasswordResetTokenExpiry: getEnvAsDuration("PASSWORD_RESET_TOKEN_EXPIRY", 1*time.Hour),

			BcryptCost: getEnvAsInt("BCRYPT_COST", 12),

			SessionInactivityTimeout: getEnvAsDuration("SESSION_INACTIVITY_TIMEOUT", 30*time.Minute),
			SessionAbsoluteTimeout:   getEnvAsDuration("SESSION_ABSOLUTE_TIMEOUT", 24*time.Hour),
			RememberMeDuration:       getEnvAsDuration("REMEMBER_ME_DURATION", 30*24*time.Hour),
			MaxConcurrentSessions:    getEnvAsInt("MAX_CONCURRENT_SESSIONS", 5),

			LoginMaxAttempts:     getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:          getEnvAsDuration("LOGIN_WINDOW", 15*time.Minute),
			LoginLockoutDuration: getEnvAsDuration("LOGIN_LOCKOUT_DURATION", 30*time.Minute),
			MFAMaxAttempts:       getEnvAsInt("MFA_MAX_ATTEMPTS", 5),
			MFAWindow:            getEnvAsDuration("MFA_WINDOW", 15*time.Minute),
			MFALockoutDuration:   getEnvAsDuration("MFA_LOCKOUT_DURATION", 15*time.Minute),
			ResetMaxAttempts:     getEnvAsInt("RESET_MAX_ATTEMPTS", 3),
			ResetWindow:          getEnvAsDuration("RESET_WINDOW", 1*time.Hour),

			MFAIssuer:       getEnv("MFA_ISSUER", "Ledgerkeep"),
			MFAPendingTTL:   getEnvAsDuration("MFA_PENDING_TTL", 1*time.Hour),
			MFAChallengeTTL: getEnvAsDuration("MFA_CHALLENGE_TTL", 5*time.Minute),

			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),

			CleanupInterval: getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", "log"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@ledgerkeep.example"),
			AppBaseURL:  getEnv("APP_BASE_URL", "http://localhost:3000"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Auth.BcryptCost < 12 {
		return nil, fmt.Errorf("BCRYPT_COST must be at least 12 (got %d)", cfg.Auth.BcryptCost)
	}

	secrets := map[string]string{
		"JWT_ACCESS_SECRET":       cfg.Auth.AccessTokenSecret,
		"JWT_REFRESH_SECRET":      cfg.Auth.RefreshTokenSecret,
		"JWT_VERIFICATION_SECRET": cfg.Auth.VerificationTokenSecret,
		"JWT_RESET_SECRET":        cfg.Auth.PasswordResetTokenSecret,
	}
	for name, secret := range secrets {
		if secret == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
		if err := validateTokenSecret(name, secret, env); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// validateTokenSecret enforces minimum strength for JWT signing secrets
func validateTokenSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
