// File: internal/domain/service/token_management_service.go
package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

// RefreshTokenValue is a generated refresh token. Value goes to the client,
// Hash goes to the store.
type RefreshTokenValue struct {
	JTI   uuid.UUID
	Value string
	Hash  string
}

// TokenManagementService signs and verifies the tokens handed to clients.
type TokenManagementService interface {
	// GenerateAccessToken signs a short-lived access token bound to a session.
	GenerateAccessToken(userID, tenantID, sessionID uuid.UUID) (string, time.Time, error)

	// ValidateAccessToken checks signature, expiry, issuer, audience and token
	// type. It never consults the session store.
	ValidateAccessToken(token string) (*models.AccessClaims, error)

	// GenerateMFAChallengeToken signs the token that links the two login steps.
	GenerateMFAChallengeToken(userID, tenantID uuid.UUID) (string, time.Time, error)

	// ValidateMFAChallengeToken checks signature, expiry and token type.
	ValidateMFAChallengeToken(token string) (*models.MFAChallengeClaims, error)

	// GenerateRefreshToken creates an opaque "<jti>.<secret>" value.
	GenerateRefreshToken() (*RefreshTokenValue, error)

	// ParseRefreshToken splits a presented value into its jti and the hash to
	// compare with the stored one.
	ParseRefreshToken(value string) (uuid.UUID, string, error)

	// AccessTokenTTL and RefreshTokenTTL expose the configured lifetimes.
	AccessTokenTTL() time.Duration
	RefreshTokenTTL() time.Duration

	// GetJWKS returns the public key set in JWKS format.
	GetJWKS() (map[string]interface{}, error)
}
