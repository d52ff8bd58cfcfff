package models

import "time"

// AuditLog is one append-only security event row.
type AuditLog struct {
	ID        int64
	UserID    *string
	Event     string
	Metadata  map[string]string
	IPAddress string
	CreatedAt time.Time
}

// Audit event names.
const (
	AuditSignupSuccess          = "SIGNUP_SUCCESS"
	AuditEmailVerified          = "EMAIL_VERIFIED"
	AuditLoginSuccess           = "LOGIN_SUCCESS"
	AuditLoginFailed            = "LOGIN_FAILED"
	AuditMFAChallengeIssued     = "MFA_CHALLENGE_ISSUED"
	AuditMFAChallengeFailed     = "MFA_CHALLENGE_FAILED"
	AuditTokenRefreshed         = "TOKEN_REFRESHED"
	AuditLogout                 = "LOGOUT"
	AuditLogoutAll              = "LOGOUT_ALL"
	AuditSessionRevoked         = "SESSION_REVOKED"
	AuditPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	AuditPasswordResetCompleted = "PASSWORD_RESET_COMPLETED"
	AuditPasswordChanged        = "PASSWORD_CHANGED"
	AuditMFAEnrollmentStarted   = "MFA_ENROLLMENT_STARTED"
	AuditMFAEnabled             = "MFA_ENABLED"
	AuditMFADisabled            = "MFA_DISABLED"
	AuditRecoveryCodesRotated   = "RECOVERY_CODES_ROTATED"
	AuditRecoveryCodeUsed       = "RECOVERY_CODE_USED"
)
