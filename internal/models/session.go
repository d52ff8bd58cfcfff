package models

import "time"

// Session is a server-side login session. TokenVersion is the revocation
// primitive: refresh tokens embed the version they were minted against and
// become unusable once the session's version moves past it.
type Session struct {
	ID           string
	UserID       string
	TokenVersion int
	IPAddress    *string
	UserAgent    *string
	LastActivity time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// Session validation failure reasons.
const (
	SessionReasonNotFound          = "Session not found"
	SessionReasonAbsoluteTimeout   = "Session expired (absolute timeout)"
	SessionReasonInactivityTimeout = "Session expired (inactivity timeout)"
)

// SessionValidation is the result of validating a session by id.
type SessionValidation struct {
	Valid   bool
	Session *Session
	Reason  string
}
