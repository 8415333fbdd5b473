// File: internal/domain/service/totp_service.go
package service

import "time"

// TOTPKey is a freshly generated TOTP secret with its enrollment artifacts.
type TOTPKey struct {
	Secret    string // base32
	URL       string // otpauth:// provisioning URI
	QRCodePNG []byte
}

// TOTPService generates and checks time-based one-time codes.
type TOTPService interface {
	// GenerateKey creates a new secret for accountName.
	GenerateKey(accountName string) (*TOTPKey, error)

	// ValidateCode checks code against secret at the given instant, allowing
	// the configured clock skew.
	ValidateCode(secretBase32, code string, at time.Time) (bool, error)
}
