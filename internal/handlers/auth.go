package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ledgerkeep/ledgerkeep/internal/auth"
	"github.com/ledgerkeep/ledgerkeep/internal/services"
	pkghttp "github.com/ledgerkeep/ledgerkeep/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Signup(ctx context.Context, email, password, organizationName, ipAddress string) (*services.UserResponse, error)
	VerifyEmail(ctx context.Context, token, ipAddress string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password, ipAddress, userAgent string, rememberMe bool) (*services.LoginResult, error)
	LoginMFA(ctx context.Context, challengeID, code, ipAddress, userAgent string) (*services.AuthTokens, error)
	Refresh(ctx context.Context, refreshToken, ipAddress string) (*services.AuthTokens, error)
	Logout(ctx context.Context, sessionID, userID, ipAddress string)
	LogoutAll(ctx context.Context, userID, ipAddress string) (int64, error)
	RequestPasswordReset(ctx context.Context, email, ipAddress string) error
	CompletePasswordReset(ctx context.Context, token, newPassword, ipAddress string) error
	ChangePassword(ctx context.Context, userID, sessionID, currentPassword, newPassword, ipAddress string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service       AuthServiceInterface
	ipConfig      *pkghttp.IPConfig
	cookieConfig  auth.CookieConfig
	refreshMaxAge int // seconds
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, cookieConfig auth.CookieConfig, refreshMaxAge int) *AuthHandler {
	return &AuthHandler{
		service:       service,
		ipConfig:      ipConfig,
		cookieConfig:  cookieConfig,
		refreshMaxAge: refreshMaxAge,
	}
}

// Request DTOs

// SignupRequest represents the request body for signup
type SignupRequest struct {
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required"`
	OrganizationName string `json:"organization_name" validate:"omitempty,min=1,max=120"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// LoginMFARequest represents the request body for completing an MFA login
type LoginMFARequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,min=6,max=16"`
}

// RefreshRequest represents the request body for token refresh. The token
// may come from the body or the refresh cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// VerifyEmailRequest represents the request body for email verification
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// ResendVerificationRequest represents the request body for resending verification
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordResetRequest represents the request body for requesting a reset
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordResetCompleteRequest represents the request body for completing a reset
type PasswordResetCompleteRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePasswordRequest represents the request body for changing the password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// MessageResponse is a generic acknowledgement body
type MessageResponse struct {
	Message string `json:"message"`
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// Signup handles account registration
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	user, err := h.service.Signup(r.Context(), req.Email, req.Password, req.OrganizationName, ipAddress)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login handles the first (password) step of login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent, req.RememberMe)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if result.Auth != nil {
		auth.SetRefreshTokenCookie(w, result.Auth.RefreshToken, h.refreshMaxAge, h.cookieConfig)
	}
	writeJSON(w, http.StatusOK, result)
}

// LoginMFA handles the second factor step of login
func (h *AuthHandler) LoginMFA(w http.ResponseWriter, r *http.Request) {
	var req LoginMFARequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	tokens, err := h.service.LoginMFA(r.Context(), req.ChallengeID, req.Code, ipAddress, userAgent)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	auth.SetRefreshTokenCookie(w, tokens.RefreshToken, h.refreshMaxAge, h.cookieConfig)
	writeJSON(w, http.StatusOK, tokens)
}

// Refresh rotates a refresh token, taken from the body or the cookie
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	// Body is optional here; the token usually arrives as a cookie.
	_ = json.NewDecoder(r.Body).Decode(&req)

	token := req.RefreshToken
	if token == "" {
		if cookieToken, err := auth.GetRefreshTokenCookie(r); err == nil {
			token = cookieToken
		}
	}
	if token == "" {
		pkghttp.WriteUnauthorized(w, "Missing refresh token")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	tokens, err := h.service.Refresh(r.Context(), token, ipAddress)
	if err != nil {
		auth.ClearRefreshTokenCookie(w, h.cookieConfig)
		writeServiceError(w, err)
		return
	}

	auth.SetRefreshTokenCookie(w, tokens.RefreshToken, h.refreshMaxAge, h.cookieConfig)
	writeJSON(w, http.StatusOK, tokens)
}

// Logout ends the caller's session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	h.service.Logout(r.Context(), claims.SessionID, claims.UserID, ipAddress)

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// LogoutAll ends every session the caller has
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if _, err := h.service.LogoutAll(r.Context(), claims.UserID, ipAddress); err != nil {
		writeServiceError(w, err)
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out everywhere"})
}

// VerifyEmail consumes an email-verification token
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.VerifyEmail(r.Context(), req.Token, ipAddress); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Email verified"})
}

// ResendVerification re-sends the verification email
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	// Same response whether or not the account exists.
	writeJSON(w, http.StatusOK, MessageResponse{Message: "If the account exists, a verification email has been sent"})
}

// RequestPasswordReset emails a reset link
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.RequestPasswordReset(r.Context(), req.Email, ipAddress); err != nil {
		writeServiceError(w, err)
		return
	}

	// Same response whether or not the account exists.
	writeJSON(w, http.StatusOK, MessageResponse{Message: "If the account exists, a password reset email has been sent"})
}

// CompletePasswordReset consumes a reset token and sets a new password
func (h *AuthHandler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetCompleteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.CompletePasswordReset(r.Context(), req.Token, req.NewPassword, ipAddress); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset. Please log in again."})
}

// ChangePassword changes a logged-in user's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	err := h.service.ChangePassword(r.Context(), claims.UserID, claims.SessionID, req.CurrentPassword, req.NewPassword, ipAddress)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password changed"})
}
