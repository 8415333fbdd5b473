// File: internal/domain/models/token.go
package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "typ" claim.
const (
	TokenTypeAccess       = "access"
	TokenTypeMFAChallenge = "mfa_challenge"
)

// AccessClaims are the claims of a short-lived access token.
type AccessClaims struct {
	UserID    uuid.UUID `json:"uid"`
	TenantID  uuid.UUID `json:"tid"`
	SessionID uuid.UUID `json:"sid"`
	TokenType string    `json:"typ"`
	jwt.RegisteredClaims
}

// MFAChallengeClaims bind the first login step to a user and tenant.
type MFAChallengeClaims struct {
	UserID    uuid.UUID `json:"uid"`
	TenantID  uuid.UUID `json:"tid"`
	TokenType string    `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken      string        `json:"access_token"`
	RefreshToken     string        `json:"refresh_token"`
	SessionID        uuid.UUID     `json:"session_id"`
	ExpiresIn        time.Duration `json:"expires_in"`
	AccessExpiresAt  time.Time     `json:"access_expires_at"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
}
