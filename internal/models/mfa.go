package models

import "time"

// MFAPendingSetup holds an enrollment that has been begun but not confirmed.
// At most one exists per user; a new enrollment attempt supersedes it and a
// successful confirmation consumes it.
type MFAPendingSetup struct {
	UserID             string
	Secret             string
	RecoveryCodeHashes []string
	CreatedAt          time.Time
}

// MFALoginChallenge is the short-lived, single-use second factor gate handed
// out when a password check succeeds for an MFA-enabled user. The client
// exchanges it plus a TOTP or recovery code for a real session.
type MFALoginChallenge struct {
	ID         string
	UserID     string
	RememberMe bool
	IPAddress  *string
	UserAgent  *string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
