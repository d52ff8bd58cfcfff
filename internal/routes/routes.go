package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/ledgerkeep/ledgerkeep/internal/auth"
	"github.com/ledgerkeep/ledgerkeep/internal/handlers"
	"github.com/ledgerkeep/ledgerkeep/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	mfaHandler *handlers.MFAHandler,
	sessionHandler *handlers.SessionHandler,
	tokenManager *auth.TokenManager,
	sessions auth.SessionValidator,
	sessionConfig auth.SessionConfig,
	rateLimitConfig middleware.RateLimitConfig,
) {
	// Transport-level rate limit for the unauthenticated auth surface. The
	// per-account lockout logic lives in the auth service.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/login/mfa", authHandler.LoginMFA)
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/verify-email", authHandler.VerifyEmail)
		r.Post("/auth/resend-verification", authHandler.ResendVerification)
		r.Post("/auth/password-reset/request", authHandler.RequestPasswordReset)
		r.Post("/auth/password-reset/complete", authHandler.CompletePasswordReset)
	})

	// Protected routes - valid access token and live session required
	router.Group(func(r chi.Router) {
		r.Use(auth.MiddlewareWithSessions(tokenManager, sessions, sessionConfig))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.Post("/auth/password/change", authHandler.ChangePassword)

		r.Post("/auth/mfa/enroll", mfaHandler.Enroll)
		r.Post("/auth/mfa/confirm", mfaHandler.ConfirmEnrollment)
		r.Post("/auth/mfa/disable", mfaHandler.Disable)
		r.Post("/auth/mfa/recovery-codes/regenerate", mfaHandler.RegenerateRecoveryCodes)

		r.Get("/auth/sessions", sessionHandler.List)
		r.Delete("/auth/sessions/{id}", sessionHandler.Revoke)
		r.Post("/auth/sessions/revoke-others", sessionHandler.RevokeOthers)
	})
}
