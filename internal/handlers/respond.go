package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ledgerkeep/ledgerkeep/internal/models"
	pkgauth "github.com/ledgerkeep/ledgerkeep/pkg/auth"
	pkghttp "github.com/ledgerkeep/ledgerkeep/pkg/http"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeServiceError maps service-layer sentinel errors onto HTTP responses.
// Credential-shaped failures all collapse to the same 401 so responses do
// not reveal whether an email exists or why a login failed.
func writeServiceError(w http.ResponseWriter, err error) {
	var rateErr *models.RateLimitError
	if errors.As(err, &rateErr) {
		code := "RATE_LIMITED"
		message := "Too many attempts. Please try again later."
		if rateErr.Locked {
			code = "LOCKED"
			message = "Temporarily locked due to repeated failures. Please try again later."
		}
		pkghttp.WriteTooManyRequests(w, code, message, rateErr.RetryAfter)
		return
	}

	var valErr *pkgauth.PasswordValidationError
	if errors.As(err, &valErr) {
		pkghttp.WriteBadRequest(w, valErr.Error())
		return
	}

	switch {
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrEmailNotVerified),
		errors.Is(err, models.ErrAccountDisabled):
		// One message for every credential failure mode.
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteUnauthorized(w, "Token has expired")
	case errors.Is(err, models.ErrInvalidToken),
		errors.Is(err, models.ErrWrongTokenType),
		errors.Is(err, models.ErrSessionExpired),
		errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Invalid or expired token")
	case errors.Is(err, models.ErrChallengeExpired):
		pkghttp.WriteUnauthorized(w, "Challenge is invalid or expired. Please log in again.")
	case errors.Is(err, models.ErrInvalidMFACode):
		pkghttp.WriteUnauthorized(w, "Invalid verification code")
	case errors.Is(err, models.ErrMFAAlreadyEnabled):
		pkghttp.WriteConflict(w, "MFA is already enabled")
	case errors.Is(err, models.ErrMFANotEnabled):
		pkghttp.WriteBadRequest(w, "MFA is not enabled")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
