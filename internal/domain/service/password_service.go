// File: internal/domain/service/password_service.go
package service

// PasswordService defines the adaptive hashing used for passwords and
// recovery codes.
type PasswordService interface {
	// HashPassword returns an encoded hash including algorithm and parameters.
	HashPassword(password string) (string, error)

	// CheckPasswordHash compares in constant time. A malformed hash is an error.
	CheckPasswordHash(password, hash string) (bool, error)

	// NeedsRehash reports a hash made by a legacy algorithm or older parameters.
	NeedsRehash(hash string) bool
}
