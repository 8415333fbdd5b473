// File: internal/utils/random/random.go
package random

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// recoveryAlphabet omits characters that are easy to confuse when read aloud or typed.
const recoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateRandomBytes генерирует случайные байты указанной длины
func GenerateRandomBytes(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// GenerateURLSafeToken returns n random bytes, base64url without padding.
func GenerateURLSafeToken(n int) (string, error) {
	b, err := GenerateRandomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateFromAlphabet draws length characters uniformly from alphabet.
func GenerateFromAlphabet(alphabet string, length int) (string, error) {
	if alphabet == "" || length <= 0 {
		return "", fmt.Errorf("alphabet and length must be non-empty")
	}
	max := big.NewInt(int64(len(alphabet)))
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}

// GenerateRecoveryCode returns a code formatted as XXXXX-XXXXX.
func GenerateRecoveryCode() (string, error) {
	raw, err := GenerateFromAlphabet(recoveryAlphabet, 10)
	if err != nil {
		return "", err
	}
	return raw[:5] + "-" + raw[5:], nil
}

// NormalizeRecoveryCode strips separators and whitespace and upper-cases the code.
func NormalizeRecoveryCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, strings.TrimSpace(code))
}
