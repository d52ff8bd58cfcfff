package handlers

import (
	"context"
	"net/http"

	"github.com/ledgerkeep/ledgerkeep/internal/auth"
	pkghttp "github.com/ledgerkeep/ledgerkeep/pkg/http"
)

// MFAServiceInterface defines the interface for MFA business logic
type MFAServiceInterface interface {
	BeginEnrollment(ctx context.Context, userID, ipAddress string) (*auth.Enrollment, error)
	ConfirmEnrollment(ctx context.Context, userID, code, ipAddress string) error
	Disable(ctx context.Context, userID, sessionID, password, code, ipAddress string) error
	RegenerateRecoveryCodes(ctx context.Context, userID, password, ipAddress string) ([]string, error)
}

// MFAHandler handles MFA enrollment HTTP requests
type MFAHandler struct {
	service  MFAServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewMFAHandler creates a new MFAHandler
func NewMFAHandler(service MFAServiceInterface, ipConfig *pkghttp.IPConfig) *MFAHandler {
	return &MFAHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// EnrollResponse is the body returned when enrollment begins. The secret
// and recovery codes appear here exactly once.
type EnrollResponse struct {
	Secret        string   `json:"secret"`
	OTPAuthURL    string   `json:"otpauth_url"`
	QRCode        string   `json:"qr_code"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// ConfirmEnrollmentRequest represents the request body for confirming enrollment
type ConfirmEnrollmentRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// DisableMFARequest represents the request body for disabling MFA
type DisableMFARequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,min=6,max=16"`
}

// RegenerateRecoveryCodesRequest represents the request body for rotating codes
type RegenerateRecoveryCodesRequest struct {
	Password string `json:"password" validate:"required"`
}

// RecoveryCodesResponse carries a fresh batch of plaintext recovery codes
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// Enroll begins MFA enrollment for the caller
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	enrollment, err := h.service.BeginEnrollment(r.Context(), claims.UserID, ipAddress)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EnrollResponse{
		Secret:        enrollment.Secret,
		OTPAuthURL:    enrollment.OTPAuthURL,
		QRCode:        enrollment.QRCodeDataURL,
		RecoveryCodes: enrollment.RecoveryCodes,
	})
}

// ConfirmEnrollment turns MFA on after the caller proves their authenticator works
func (h *MFAHandler) ConfirmEnrollment(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ConfirmEnrollmentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.ConfirmEnrollment(r.Context(), claims.UserID, req.Code, ipAddress); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "MFA enabled"})
}

// Disable turns MFA off
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req DisableMFARequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	if err := h.service.Disable(r.Context(), claims.UserID, claims.SessionID, req.Password, req.Code, ipAddress); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "MFA disabled"})
}

// RegenerateRecoveryCodes replaces the caller's recovery codes
func (h *MFAHandler) RegenerateRecoveryCodes(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req RegenerateRecoveryCodesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	codes, err := h.service.RegenerateRecoveryCodes(r.Context(), claims.UserID, req.Password, ipAddress)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RecoveryCodesResponse{RecoveryCodes: codes})
}
