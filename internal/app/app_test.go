package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository/memory"
	domainService "github.com/ruther77/MassaCorp-sub001/internal/domain/service"
	"github.com/ruther77/MassaCorp-sub001/internal/infrastructure/security"
)

func testConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "authcore", Environment: config.EnvDevelopment},
		Database: config.DatabaseConfig{Driver: config.DatabaseDriverMemory},
		JWT: config.JWTConfig{
			JWKSKeyID:            "app-test",
			Issuer:               "authcore-test",
			Audience:             "authcore-test",
			AccessTokenTTL:       15 * time.Minute,
			RefreshTokenTTL:      7 * 24 * time.Hour,
			MFAChallengeTokenTTL: 5 * time.Minute,
		},
		Security: config.SecurityConfig{
			Lockout:      config.LockoutConfig{MaxFailedAttempts: 5, Window: 15 * time.Minute},
			PasswordHash: config.PasswordHashConfig{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
			Throttle:     config.ThrottleConfig{Enabled: true, Backend: config.ThrottleBackendLocal, Limit: 20, Window: time.Minute},
			Sessions:     config.SessionsConfig{AbsoluteTTL: 30 * 24 * time.Hour},
		},
		MFA: config.MFAConfig{
			Enabled:           true,
			TOTPIssuerName:    "authcore",
			TOTPEncryptionKey: "8f3c2a1b9e7d6c5f4a3b2c1d0e9f8a7b6c5d4e3f2a1b0c9d8e7f6a5b4c3d2e1f",
			TOTPSkew:          1,
			RecoveryCodeCount: 4,
		},
		Retention: config.RetentionConfig{Interval: time.Hour, LoginAttempts: 90 * 24 * time.Hour, ExpiredTokens: 7 * 24 * time.Hour},
	}
}

func testTokens(t *testing.T, cfg *config.Config) domainService.TokenManagementService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens, err := security.NewRSATokenManagementServiceFromKey(key, cfg.JWT, domainService.SystemClock{})
	require.NoError(t, err)
	return tokens
}

func TestNew_MemoryStoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	store := memory.NewStore()
	repos := MemoryRepositories(store)

	a, err := New(ctx, cfg, zaptest.NewLogger(t), Options{Repos: &repos, Tokens: testTokens(t, cfg)})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.MFA)
	require.NotNil(t, a.Retention)
	assert.NoError(t, a.Ping(ctx))

	passwords, err := security.NewArgon2idPasswordService(cfg.Security.PasswordHash)
	require.NoError(t, err)
	hash, err := passwords.HashPassword("correct horse battery staple")
	require.NoError(t, err)

	tenant := uuid.New()
	store.Users().Put(ctx, &models.User{
		ID: uuid.New(), TenantID: tenant, Email: "wired@example.com",
		PasswordHash: hash, IsActive: true, IsVerified: true,
	})

	outcome, err := a.Authenticator.Login(ctx, domainService.LoginRequest{
		Email: "wired@example.com", Password: "correct horse battery staple",
		TenantID: tenant, IP: "192.0.2.1", UserAgent: "app-test",
	})
	require.NoError(t, err)
	issued, ok := outcome.(models.Issued)
	require.True(t, ok)

	rotated, err := a.Authenticator.Refresh(ctx, issued.Tokens.RefreshToken, "192.0.2.1", "app-test")
	require.NoError(t, err)
	assert.Equal(t, issued.Tokens.SessionID, rotated.SessionID)

	require.NoError(t, a.Retention.RunOnce(ctx))
}

func TestNew_BuildsMemoryStoreFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MFA.Enabled = false

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{Tokens: testTokens(t, cfg)})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.MFA)
	assert.NotNil(t, a.Repos.Transactor)
}

func TestNew_RefusesMemoryStoreInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.App.Environment = config.EnvProduction

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{Tokens: testTokens(t, cfg)})
	assert.Error(t, err)
}
