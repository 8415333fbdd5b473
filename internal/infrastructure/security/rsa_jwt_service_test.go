// File: internal/infrastructure/security/rsa_jwt_service_test.go
package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

const (
	testRSABits   = 2048
	testJWKSKeyID = "test-kid"
	testIssuer    = "test-issuer"
	testAudience  = "test-audience"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		JWKSKeyID:            testJWKSKeyID,
		Issuer:               testIssuer,
		Audience:             testAudience,
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		MFAChallengeTokenTTL: 5 * time.Minute,
	}
}

// generateTestRSAKeys writes a fresh key pair as PEM files into a temp dir.
func generateTestRSAKeys(t *testing.T) (privKeyPath, pubKeyPath string, key *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, testRSABits)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubASN1, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubASN1})

	dir := t.TempDir()
	privKeyPath = filepath.Join(dir, "priv.pem")
	pubKeyPath = filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(privKeyPath, privPEM, 0o600))
	require.NoError(t, os.WriteFile(pubKeyPath, pubPEM, 0o644))
	return privKeyPath, pubKeyPath, key
}

func newTestTokenService(t *testing.T) (*RSATokenManagementService, *manualClock) {
	t.Helper()
	privPath, pubPath, _ := generateTestRSAKeys(t)
	cfg := testJWTConfig()
	cfg.RSAPrivateKeyPEMFile = privPath
	cfg.RSAPublicKeyPEMFile = pubPath

	clock := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewRSATokenManagementService(cfg, clock)
	require.NoError(t, err)
	return svc, clock
}

func TestNewRSATokenManagementService_Errors(t *testing.T) {
	privPath, pubPath, _ := generateTestRSAKeys(t)

	t.Run("missing files", func(t *testing.T) {
		_, err := NewRSATokenManagementService(testJWTConfig(), nil)
		assert.Error(t, err)
	})

	t.Run("mismatched pair", func(t *testing.T) {
		_, otherPub, _ := generateTestRSAKeys(t)
		cfg := testJWTConfig()
		cfg.RSAPrivateKeyPEMFile = privPath
		cfg.RSAPublicKeyPEMFile = otherPub
		_, err := NewRSATokenManagementService(cfg, nil)
		assert.ErrorContains(t, err, "does not match")
	})

	t.Run("missing ttl", func(t *testing.T) {
		cfg := testJWTConfig()
		cfg.RSAPrivateKeyPEMFile = privPath
		cfg.RSAPublicKeyPEMFile = pubPath
		cfg.MFAChallengeTokenTTL = 0
		_, err := NewRSATokenManagementService(cfg, nil)
		assert.Error(t, err)
	})
}

func TestAccessToken_RoundTrip(t *testing.T) {
	svc, clock := newTestTokenService(t)
	userID, tenantID, sessionID := uuid.New(), uuid.New(), uuid.New()

	token, expiresAt, err := svc.GenerateAccessToken(userID, tenantID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), expiresAt)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, models.TokenTypeAccess, claims.TokenType)
	assert.Equal(t, userID.String(), claims.Subject)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, testJWKSKeyID, parsed.Header["kid"])
}

func TestAccessToken_Expired(t *testing.T) {
	svc, clock := newTestTokenService(t)

	token, _, err := svc.GenerateAccessToken(uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, domainErrors.ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	svc, _ := newTestTokenService(t)

	challenge, _, err := svc.GenerateMFAChallengeToken(uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(challenge)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)

	access, _, err := svc.GenerateAccessToken(uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = svc.ValidateMFAChallengeToken(access)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)

	claims, err := svc.ValidateMFAChallengeToken(challenge)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeMFAChallenge, claims.TokenType)
}

func TestAccessToken_RejectsForeignSignerAndAudience(t *testing.T) {
	svc, clock := newTestTokenService(t)

	_, _, otherKey := generateTestRSAKeys(t)
	foreign, err := NewRSATokenManagementServiceFromKey(otherKey, testJWTConfig(), clock)
	require.NoError(t, err)
	token, _, err := foreign.GenerateAccessToken(uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)

	cfg := testJWTConfig()
	cfg.Audience = "someone-else"
	sameKeyOtherAudience, err := NewRSATokenManagementServiceFromKey(svc.privateKey, cfg, clock)
	require.NoError(t, err)
	token, _, err = sameKeyOtherAudience.GenerateAccessToken(uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(token)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)

	_, err = svc.ValidateAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)
}

func TestRefreshToken_GenerateAndParse(t *testing.T) {
	svc, _ := newTestTokenService(t)

	rt, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rt.Value, rt.JTI.String()+"."))
	assert.Len(t, rt.Hash, 64)
	assert.NotContains(t, rt.Hash, rt.Value)

	jti, hash, err := svc.ParseRefreshToken(rt.Value)
	require.NoError(t, err)
	assert.Equal(t, rt.JTI, jti)
	assert.Equal(t, rt.Hash, hash)

	for _, bad := range []string{"", "nodot", "not-a-uuid.abc", rt.JTI.String() + ".", rt.JTI.String() + ".c2hvcnQ"} {
		_, _, err := svc.ParseRefreshToken(bad)
		assert.ErrorIs(t, err, domainErrors.ErrInvalidToken, bad)
	}
}

func TestGetJWKS(t *testing.T) {
	svc, _ := newTestTokenService(t)

	jwks, err := svc.GetJWKS()
	require.NoError(t, err)
	keys, ok := jwks["keys"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, keys, 1)
	assert.Equal(t, testJWKSKeyID, keys[0]["kid"])
	assert.Equal(t, "RS256", keys[0]["alg"])
	assert.Equal(t, "AQAB", keys[0]["e"])
}
