// File: internal/infrastructure/security/rsa_jwt_service.go
package security

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/service"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/random"
)

// refreshSecretBytes is the entropy of the secret half of a refresh token.
const refreshSecretBytes = 32

// RSATokenManagementService signs access and MFA challenge tokens with RS256
// and mints opaque refresh tokens.
type RSATokenManagementService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	cfg        config.JWTConfig
	clock      service.Clock
}

// NewRSATokenManagementService loads the key pair from the configured PEM files.
func NewRSATokenManagementService(cfg config.JWTConfig, clock service.Clock) (*RSATokenManagementService, error) {
	if cfg.RSAPrivateKeyPEMFile == "" || cfg.RSAPublicKeyPEMFile == "" {
		return nil, errors.New("RSA private and public key files must be configured")
	}

	privateKeyBytes, err := os.ReadFile(cfg.RSAPrivateKeyPEMFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read RSA private key PEM file '%s': %w", cfg.RSAPrivateKeyPEMFile, err)
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA private key from PEM: %w", err)
	}

	publicKeyBytes, err := os.ReadFile(cfg.RSAPublicKeyPEMFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read RSA public key PEM file '%s': %w", cfg.RSAPublicKeyPEMFile, err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA public key from PEM: %w", err)
	}
	if publicKey.N.Cmp(privateKey.PublicKey.N) != 0 {
		return nil, errors.New("RSA public key does not match the private key")
	}

	return newRSATokenManagementService(privateKey, cfg, clock)
}

// NewRSATokenManagementServiceFromKey builds the service around an in-memory key.
func NewRSATokenManagementServiceFromKey(privateKey *rsa.PrivateKey, cfg config.JWTConfig, clock service.Clock) (*RSATokenManagementService, error) {
	if privateKey == nil {
		return nil, errors.New("RSA private key is required")
	}
	return newRSATokenManagementService(privateKey, cfg, clock)
}

func newRSATokenManagementService(privateKey *rsa.PrivateKey, cfg config.JWTConfig, clock service.Clock) (*RSATokenManagementService, error) {
	if cfg.JWKSKeyID == "" {
		return nil, errors.New("JWKS key id must be configured")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 || cfg.MFAChallengeTokenTTL <= 0 {
		return nil, errors.New("access, refresh and mfa challenge token TTLs must be configured")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("JWT issuer and audience must be configured")
	}
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &RSATokenManagementService{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		cfg:        cfg,
		clock:      clock,
	}, nil
}

func (s *RSATokenManagementService) registered(subject uuid.UUID, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject.String(),
		Issuer:    s.cfg.Issuer,
		Audience:  jwt.ClaimStrings{s.cfg.Audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func (s *RSATokenManagementService) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.cfg.JWKSKeyID
	return token.SignedString(s.privateKey)
}

func (s *RSATokenManagementService) GenerateAccessToken(userID, tenantID, sessionID uuid.UUID) (string, time.Time, error) {
	now := s.clock.Now()
	claims := &models.AccessClaims{
		UserID:           userID,
		TenantID:         tenantID,
		SessionID:        sessionID,
		TokenType:        models.TokenTypeAccess,
		RegisteredClaims: s.registered(userID, now, s.cfg.AccessTokenTTL),
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (s *RSATokenManagementService) ValidateAccessToken(tokenString string) (*models.AccessClaims, error) {
	claims := &models.AccessClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != models.TokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", domainErrors.ErrInvalidToken, claims.TokenType)
	}
	if claims.SessionID == uuid.Nil || claims.TenantID == uuid.Nil || claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing identity claims", domainErrors.ErrInvalidToken)
	}
	return claims, nil
}

func (s *RSATokenManagementService) GenerateMFAChallengeToken(userID, tenantID uuid.UUID) (string, time.Time, error) {
	now := s.clock.Now()
	claims := &models.MFAChallengeClaims{
		UserID:           userID,
		TenantID:         tenantID,
		TokenType:        models.TokenTypeMFAChallenge,
		RegisteredClaims: s.registered(userID, now, s.cfg.MFAChallengeTokenTTL),
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign mfa challenge token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

func (s *RSATokenManagementService) ValidateMFAChallengeToken(tokenString string) (*models.MFAChallengeClaims, error) {
	claims := &models.MFAChallengeClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != models.TokenTypeMFAChallenge {
		return nil, fmt.Errorf("%w: unexpected token type %q", domainErrors.ErrInvalidToken, claims.TokenType)
	}
	if claims.TenantID == uuid.Nil || claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing identity claims", domainErrors.ErrInvalidToken)
	}
	return claims, nil
}

func (s *RSATokenManagementService) parse(tokenString string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if kid, ok := token.Header["kid"].(string); ok && kid != s.cfg.JWKSKeyID {
			return nil, fmt.Errorf("token kid %q does not match %q", kid, s.cfg.JWKSKeyID)
		}
		return s.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", domainErrors.ErrInvalidToken, err)
	}
	return nil
}

// GenerateRefreshToken returns "<jti>.<secret>" and the SHA-256 of the whole value.
func (s *RSATokenManagementService) GenerateRefreshToken() (*service.RefreshTokenValue, error) {
	secret, err := random.GenerateURLSafeToken(refreshSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token entropy: %w", err)
	}
	jti := uuid.New()
	value := jti.String() + "." + secret
	return &service.RefreshTokenValue{JTI: jti, Value: value, Hash: HashRefreshToken(value)}, nil
}

func (s *RSATokenManagementService) ParseRefreshToken(value string) (uuid.UUID, string, error) {
	jtiPart, secret, ok := strings.Cut(value, ".")
	if !ok || secret == "" {
		return uuid.Nil, "", fmt.Errorf("%w: malformed refresh token", domainErrors.ErrInvalidToken)
	}
	jti, err := uuid.Parse(jtiPart)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: malformed refresh token id", domainErrors.ErrInvalidToken)
	}
	raw, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil || len(raw) != refreshSecretBytes {
		return uuid.Nil, "", fmt.Errorf("%w: malformed refresh token secret", domainErrors.ErrInvalidToken)
	}
	return jti, HashRefreshToken(value), nil
}

// HashRefreshToken is the at-rest form of a refresh token.
func HashRefreshToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func (s *RSATokenManagementService) AccessTokenTTL() time.Duration  { return s.cfg.AccessTokenTTL }
func (s *RSATokenManagementService) RefreshTokenTTL() time.Duration { return s.cfg.RefreshTokenTTL }

// GetJWKS returns the public key set in JWKS format.
func (s *RSATokenManagementService) GetJWKS() (map[string]interface{}, error) {
	if s.publicKey == nil {
		return nil, errors.New("public key not configured, cannot generate JWKS")
	}
	jwk := map[string]interface{}{
		"kty": "RSA",
		"kid": s.cfg.JWKSKeyID,
		"use": "sig",
		"alg": jwt.SigningMethodRS256.Alg(),
		"n":   base64.RawURLEncoding.EncodeToString(s.publicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(s.publicKey.E)).Bytes()),
	}
	return map[string]interface{}{"keys": []map[string]interface{}{jwk}}, nil
}

var _ service.TokenManagementService = (*RSATokenManagementService)(nil)
