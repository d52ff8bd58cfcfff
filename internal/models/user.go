package models

import (
	"time"
)

type User struct {
	ID                    string
	Email                 string // stored lower-cased, unique
	PasswordHash          string
	Role                  Role
	OrganizationID        *string
	EmailVerified         bool
	IsActive              bool
	MFAEnabled            bool
	MFASecret             *string
	MFARecoveryCodeHashes []string // single-use; entries removed as codes are consumed
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
