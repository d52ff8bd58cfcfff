package auth

import (
	"context"
	"net/http"

	"github.com/ledgerkeep/ledgerkeep/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// SessionValidator checks whether the session an access token is bound to is
// still live. Validation has the side effect of sliding the inactivity
// window.
type SessionValidator interface {
	Validate(ctx context.Context, sessionID string) (*models.SessionValidation, error)
}

// SessionConfig holds configuration for session check behavior
type SessionConfig struct {
	FailClosed bool // If true, deny access when the session check itself fails
}

// Middleware validates access tokens and injects user claims into context
func Middleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return MiddlewareWithSessions(tm, nil, SessionConfig{FailClosed: false})
}

// MiddlewareWithSessions validates access tokens and additionally requires
// the bound session to still exist and be within its timeouts. A revoked or
// timed-out session turns an otherwise valid token away.
func MiddlewareWithSessions(tm *TokenManager, sessions SessionValidator, sessionConfig SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractBearerToken(r.Header.Get("Authorization"))
			if tokenString == "" {
				http.Error(w, "missing or malformed authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := tm.VerifyAccessToken(tokenString)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			if sessions != nil && claims.SessionID != "" {
				validation, err := sessions.Validate(r.Context(), claims.SessionID)
				if err != nil {
					if sessionConfig.FailClosed {
						http.Error(w, "unable to verify session", http.StatusServiceUnavailable)
						return
					}
					// Fail open on infrastructure errors; invalid tokens are
					// still rejected above.
				} else if !validation.Valid {
					http.Error(w, "session is no longer valid", http.StatusUnauthorized)
					return
				}
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces a minimum role. Roles are ordered, so an admin passes
// a check that asks for accountant.
func RequireRole(minRole models.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			role := models.Role(claims.Role)
			if !role.Valid() || !role.AtLeast(minRole) {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *Claims {
	claims, ok := r.Context().Value(UserContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
