// File: internal/domain/models/mfa_secret.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// MFAStatus is the per-user state of the TOTP factor.
type MFAStatus string

const (
	MFAStatusNotConfigured     MFAStatus = "not_configured"
	MFAStatusPendingActivation MFAStatus = "pending_activation"
	MFAStatusEnabled           MFAStatus = "enabled"
)

// MFASecret maps to the 'mfa_secrets' table. One row per user.
type MFASecret struct {
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	TenantID        uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	EncryptedSecret string     `json:"-" db:"encrypted_secret"` // base64 of nonce+ciphertext
	Enabled         bool       `json:"enabled" db:"enabled"`
	EnabledAt       *time.Time `json:"enabled_at,omitempty" db:"enabled_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Status maps a possibly-missing row to the factor state.
func (s *MFASecret) Status() MFAStatus {
	switch {
	case s == nil:
		return MFAStatusNotConfigured
	case s.Enabled:
		return MFAStatusEnabled
	default:
		return MFAStatusPendingActivation
	}
}

// RecoveryCode maps to the 'mfa_recovery_codes' table.
type RecoveryCode struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	TenantID  uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	CodeHash  string     `json:"-" db:"code_hash"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
}

// MFASetup is handed out once by Setup and never again.
type MFASetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCodePNG       []byte `json:"qr_code_png"`
}
