// File: internal/domain/service/encryption_service.go
package service

import (
	"encoding/hex"
	"fmt"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
)

// EncryptionService is the authenticated encryption used for MFA secrets at rest.
type EncryptionService interface {
	// Encrypt takes plaintext and a hex-encoded key, returns base64-encoded ciphertext.
	Encrypt(plainText string, keyHex string) (string, error)
	// Decrypt takes base64-encoded ciphertext and a hex-encoded key, returns plaintext.
	Decrypt(cipherTextBase64 string, keyHex string) (string, error)
}

const encryptionKeySize = 32

// placeholderKeys are values shipped in sample configs and docs.
var placeholderKeys = map[string]struct{}{
	"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef": {},
	"000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f": {},
	"deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef": {},
}

// minDistinctKeyBytes rejects keys built from a short repeated pattern.
const minDistinctKeyBytes = 12

// ValidateEncryptionKey rejects keys that are not 32 hex-encoded bytes or
// that are obviously not random.
func ValidateEncryptionKey(keyHex string) error {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return fmt.Errorf("%w: not hex: %w", domainErrors.ErrWeakEncryptionKey, err)
	}
	if len(key) != encryptionKeySize {
		return fmt.Errorf("%w: need %d bytes, got %d", domainErrors.ErrWeakEncryptionKey, encryptionKeySize, len(key))
	}
	if _, known := placeholderKeys[hex.EncodeToString(key)]; known {
		return fmt.Errorf("%w: placeholder value", domainErrors.ErrWeakEncryptionKey)
	}
	distinct := make(map[byte]struct{}, len(key))
	for _, b := range key {
		distinct[b] = struct{}{}
	}
	if len(distinct) < minDistinctKeyBytes {
		return fmt.Errorf("%w: low entropy", domainErrors.ErrWeakEncryptionKey)
	}
	return nil
}
