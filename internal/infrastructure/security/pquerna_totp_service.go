// File: internal/infrastructure/security/pquerna_totp_service.go
package security

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/service"
)

const (
	totpPeriod     = 30
	totpSecretSize = 20
	qrCodeSize     = 200
)

// PquernaTOTPService implements service.TOTPService with pquerna/otp.
type PquernaTOTPService struct {
	issuer string
	skew   uint
}

// NewPquernaTOTPService creates the service; skew is the number of periods accepted on either side of now.
func NewPquernaTOTPService(issuer string, skew uint) (*PquernaTOTPService, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("totp issuer name must be configured")
	}
	if strings.Contains(issuer, ":") {
		return nil, errors.New("totp issuer name cannot contain a colon")
	}
	return &PquernaTOTPService{issuer: issuer, skew: skew}, nil
}

func (s *PquernaTOTPService) GenerateKey(accountName string) (*service.TOTPKey, error) {
	if strings.TrimSpace(accountName) == "" {
		return nil, errors.New("account name cannot be empty")
	}
	if strings.Contains(accountName, ":") {
		return nil, errors.New("account name cannot contain a colon")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  totpSecretSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &service.TOTPKey{
		Secret:    key.Secret(),
		URL:       key.URL(),
		QRCodePNG: buf.Bytes(),
	}, nil
}

// ValidateCode returns (false, err) for malformed input and (false, nil) for a wrong code.
func (s *PquernaTOTPService) ValidateCode(secretBase32, code string, at time.Time) (bool, error) {
	if strings.TrimSpace(secretBase32) == "" {
		return false, errors.New("secret cannot be empty")
	}
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secretBase32, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      s.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("totp validation: %w", err)
	}
	return valid, nil
}

var _ service.TOTPService = (*PquernaTOTPService)(nil)
