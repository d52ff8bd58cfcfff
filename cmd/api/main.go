package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerkeep/ledgerkeep/internal/auth"
	"github.com/ledgerkeep/ledgerkeep/internal/background"
	"github.com/ledgerkeep/ledgerkeep/internal/config"
	"github.com/ledgerkeep/ledgerkeep/internal/database"
	"github.com/ledgerkeep/ledgerkeep/internal/handlers"
	middlewareCustom "github.com/ledgerkeep/ledgerkeep/internal/middleware"
	"github.com/ledgerkeep/ledgerkeep/internal/repositories"
	"github.com/ledgerkeep/ledgerkeep/internal/routes"
	"github.com/ledgerkeep/ledgerkeep/internal/services"
	pkgauth "github.com/ledgerkeep/ledgerkeep/pkg/auth"
	pkghttp "github.com/ledgerkeep/ledgerkeep/pkg/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)
	mfaPendingRepo := repositories.NewMFAPendingRepository(db)
	mfaChallengeRepo := repositories.NewMFAChallengeRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	// Token manager, one secret per token kind
	tokenManager := auth.NewTokenManager(
		auth.TokenSecrets{
			Access:            cfg.Auth.AccessTokenSecret,
			Refresh:           cfg.Auth.RefreshTokenSecret,
			EmailVerification: cfg.Auth.VerificationTokenSecret,
			PasswordReset:     cfg.Auth.PasswordResetTokenSecret,
		},
		auth.TokenExpiries{
			Access:            cfg.Auth.AccessTokenExpiry,
			Refresh:           cfg.Auth.RefreshTokenExpiry,
			EmailVerification: cfg.Auth.VerificationTokenExpiry,
			PasswordReset:     cfg.Auth.PasswordResetTokenExpiry,
		},
		"ledgerkeep",
	)

	totpManager := auth.NewTOTPManager(cfg.Auth.MFAIssuer)
	hasher := pkgauth.NewHasher(cfg.Auth.BcryptCost)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	// Email delivery
	var emailService services.EmailService
	switch cfg.Email.Provider {
	case "ses":
		emailService, err = services.NewAWSSESEmailService(
			cfg.Email.AWSRegion,
			cfg.Email.FromAddress,
			cfg.Email.AppBaseURL,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	default:
		emailService = services.NewLogEmailService(logger)
	}

	// Initialize services
	auditService := services.NewAuditService(auditRepo, logger)
	rateLimitService := services.NewRateLimitService(rateLimitRepo, logger)
	sessionService := services.NewSessionService(sessionRepo, services.SessionPolicy{
		InactivityTimeout:     cfg.Auth.SessionInactivityTimeout,
		AbsoluteTimeout:       cfg.Auth.SessionAbsoluteTimeout,
		RememberMeDuration:    cfg.Auth.RememberMeDuration,
		MaxConcurrentSessions: cfg.Auth.MaxConcurrentSessions,
	}, logger)
	mfaService := services.NewMFAService(userRepo, mfaPendingRepo, totpManager, hasher, auditService, sessionService, cfg.Auth.MFAPendingTTL, logger)

	authPolicies := services.AuthPolicies{
		Login: services.RateLimitPolicy{
			MaxAttempts:     cfg.Auth.LoginMaxAttempts,
			Window:          cfg.Auth.LoginWindow,
			LockoutDuration: cfg.Auth.LoginLockoutDuration,
		},
		MFA: services.RateLimitPolicy{
			MaxAttempts:     cfg.Auth.MFAMaxAttempts,
			Window:          cfg.Auth.MFAWindow,
			LockoutDuration: cfg.Auth.MFALockoutDuration,
		},
		Reset: services.RateLimitPolicy{
			MaxAttempts: cfg.Auth.ResetMaxAttempts,
			Window:      cfg.Auth.ResetWindow,
		},
		ChallengeTTL: cfg.Auth.MFAChallengeTTL,
	}
	authService := services.NewAuthService(
		userRepo, orgRepo, mfaChallengeRepo,
		sessionService, mfaService, rateLimitService,
		tokenManager, hasher, emailService, auditService, timingDelay,
		authPolicies, logger,
	)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "strict",
	}
	refreshMaxAge := int(cfg.Auth.RefreshTokenExpiry.Seconds())

	authHandler := handlers.NewAuthHandler(authService, ipConfig, cookieConfig, refreshMaxAge)
	mfaHandler := handlers.NewMFAHandler(mfaService, ipConfig)
	sessionHandler := handlers.NewSessionHandler(sessionService)

	// Background cleanup of expired sessions, rate limit windows, stale MFA
	// enrollments and dead login challenges
	cleanupManager := background.NewCleanupManager(logger, cfg.Auth.CleanupInterval)
	cleanupManager.Register("sessions", background.SweeperFunc(sessionService.CleanupExpired))
	cleanupManager.Register("rate_limits", background.SweeperFunc(rateLimitService.CleanupExpired))
	cleanupManager.Register("mfa_pending", background.SweeperFunc(mfaService.CleanupStalePending))
	cleanupManager.Register("mfa_challenges", background.SweeperFunc(authService.CleanupExpiredChallenges))

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, mfaHandler, sessionHandler,
		tokenManager, sessionService, auth.SessionConfig{FailClosed: cfg.Server.Env == "production"},
		middlewareCustom.DefaultAuthRateLimit())

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
