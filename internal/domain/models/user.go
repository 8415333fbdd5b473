// File: internal/domain/models/user.go
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the directory record owned by the credential store. The core only
// reads it, except for the password hash on password change.
type User struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	TenantID          uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	Email             string     `json:"email" db:"email"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	IsActive          bool       `json:"is_active" db:"is_active"`
	IsVerified        bool       `json:"is_verified" db:"is_verified"`
	MFAEnabled        bool       `json:"mfa_enabled" db:"mfa_enabled"`
	PasswordChangedAt *time.Time `json:"password_changed_at,omitempty" db:"password_changed_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// NormalizeEmail is the canonical form used for lookups and the attempt ledger.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
