package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository/memory"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/service"
	"github.com/ruther77/MassaCorp-sub001/internal/infrastructure/security"
)

const (
	testEncryptionKey = "8f3c2a1b9e7d6c5f4a3b2c1d0e9f8a7b6c5d4e3f2a1b0c9d8e7f6a5b4c3d2e1f"
	testPassword      = "correct horse battery staple"
	testIP            = "203.0.113.10"
	testUserAgent     = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

var (
	rsaKeyOnce sync.Once
	rsaKey     *rsa.PrivateKey
)

// sharedRSAKey generates one signing key for the whole package.
func sharedRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	rsaKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		rsaKey = key
	})
	return rsaKey
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// switchableAuditRepo fails writes of one event type on demand.
type switchableAuditRepo struct {
	repository.AuditLogRepository
	mu     sync.Mutex
	failOn string
}

func (r *switchableAuditRepo) FailOn(eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn = eventType
}

func (r *switchableAuditRepo) Create(ctx context.Context, event *models.AuditEvent) error {
	r.mu.Lock()
	fail := r.failOn != "" && r.failOn == event.EventType
	r.mu.Unlock()
	if fail {
		return errAuditDown
	}
	return r.AuditLogRepository.Create(ctx, event)
}

type mockRateLimiter struct {
	mock.Mock
}

func (m *mockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *mockRateLimiter) Reset(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

type publishedEvent struct {
	Type    string
	Subject string
}

func (p *recordingPublisher) PublishCloudEvent(ctx context.Context, eventType, subject string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{Type: eventType, Subject: subject})
	return nil
}

type harnessOptions struct {
	maxFailed        int
	relaxed          bool
	maxActivePerUser int
	withoutMFA       bool
	production       bool
	throttle         service.ThrottlePolicy
	publisher        service.EventPublisher
}

type harness struct {
	ctx       context.Context
	store     *memory.Store
	clock     *fakeClock
	logs      *observer.ObservedLogs
	auditRepo *switchableAuditRepo

	passwords *security.Argon2idPasswordService
	tokens    *security.RSATokenManagementService
	totp      *security.PquernaTOTPService

	audit    *service.AuditLogService
	sessions *service.SessionRegistry
	ledger   *service.TokenLedger
	mfa      *service.MFARegistry
	auth     *service.Authenticator

	tenant uuid.UUID
}

func newHarness(t *testing.T, mods ...func(*harnessOptions)) *harness {
	t.Helper()
	opts := harnessOptions{maxFailed: 3}
	for _, m := range mods {
		m(&opts)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	h := &harness{
		ctx:    context.Background(),
		store:  memory.NewStore(),
		clock:  &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
		logs:   logs,
		tenant: uuid.New(),
	}
	h.auditRepo = &switchableAuditRepo{AuditLogRepository: h.store.AuditLogs()}

	var err error
	h.passwords, err = security.NewArgon2idPasswordService(config.PasswordHashConfig{
		Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)
	h.tokens, err = security.NewRSATokenManagementServiceFromKey(sharedRSAKey(t), config.JWTConfig{
		JWKSKeyID:            "test-kid",
		Issuer:               "authcore-test",
		Audience:             "authcore-test-clients",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		MFAChallengeTokenTTL: 5 * time.Minute,
	}, h.clock)
	require.NoError(t, err)
	h.totp, err = security.NewPquernaTOTPService("AuthCore", 1)
	require.NoError(t, err)

	h.audit = service.NewAuditLogService(h.auditRepo, opts.publisher, h.clock, logger)

	h.sessions, err = service.NewSessionRegistry(service.SessionRegistryConfig{
		Transactor:    h.store,
		Sessions:      h.store.Sessions(),
		RefreshTokens: h.store.RefreshTokens(),
		LoginAttempts: h.store.LoginAttempts(),
		Audit:         h.audit,
		Clock:         h.clock,
		Logger:        logger,
		Lockout: service.LockoutPolicy{
			MaxFailedAttempts: opts.maxFailed,
			Window:            15 * time.Minute,
			RelaxedForTesting: opts.relaxed,
		},
		SessionTTL:       30 * 24 * time.Hour,
		MaxActivePerUser: opts.maxActivePerUser,
	})
	require.NoError(t, err)

	h.ledger, err = service.NewTokenLedger(service.TokenLedgerConfig{
		Transactor:    h.store,
		Sessions:      h.store.Sessions(),
		RefreshTokens: h.store.RefreshTokens(),
		Tokens:        h.tokens,
		Audit:         h.audit,
		Clock:         h.clock,
		Logger:        logger,
	})
	require.NoError(t, err)

	if !opts.withoutMFA {
		h.mfa, err = service.NewMFARegistry(service.MFARegistryConfig{
			Transactor:        h.store,
			Secrets:           h.store.MFASecrets(),
			RecoveryCodes:     h.store.RecoveryCodes(),
			TOTP:              h.totp,
			Encryption:        security.NewAESGCMEncryptionService(),
			Hasher:            h.passwords,
			Audit:             h.audit,
			Clock:             h.clock,
			Logger:            logger,
			EncryptionKey:     testEncryptionKey,
			RecoveryCodeCount: 4,
		})
		require.NoError(t, err)
	}

	h.auth, err = service.NewAuthenticator(service.AuthenticatorConfig{
		Users:      h.store.Users(),
		Transactor: h.store,
		Sessions:   h.sessions,
		Ledger:     h.ledger,
		MFA:        h.mfa,
		Tokens:     h.tokens,
		Passwords:  h.passwords,
		Audit:      h.audit,
		Throttle:   opts.throttle,
		Clock:      h.clock,
		Logger:     logger,
		Production: opts.production,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) addUser(t *testing.T, email string, mutate ...func(*models.User)) *models.User {
	t.Helper()
	hash, err := h.passwords.HashPassword(testPassword)
	require.NoError(t, err)
	u := &models.User{
		ID:           uuid.New(),
		TenantID:     h.tenant,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsVerified:   true,
		CreatedAt:    h.clock.Now(),
		UpdatedAt:    h.clock.Now(),
	}
	for _, m := range mutate {
		m(u)
	}
	h.store.Users().Put(h.ctx, u)
	return u
}

func (h *harness) login(email, password string) (models.LoginOutcome, error) {
	return h.auth.Login(h.ctx, service.LoginRequest{
		Email:     email,
		Password:  password,
		TenantID:  h.tenant,
		IP:        testIP,
		UserAgent: testUserAgent,
	})
}

// mustIssue logs in and expects tokens straight away.
func (h *harness) mustIssue(t *testing.T, email string) models.Issued {
	t.Helper()
	outcome, err := h.login(email, testPassword)
	require.NoError(t, err)
	issued, ok := outcome.(models.Issued)
	require.True(t, ok, "expected tokens, got %T", outcome)
	return issued
}

// enrollMFA runs setup and activation and returns the secret and recovery codes.
func (h *harness) enrollMFA(t *testing.T, user *models.User) (string, []string) {
	t.Helper()
	setup, err := h.mfa.Setup(h.ctx, user.TenantID, user.ID, user.Email)
	require.NoError(t, err)
	codes, err := h.mfa.Enable(h.ctx, user.TenantID, user.ID, h.code(t, setup.Secret))
	require.NoError(t, err)
	return setup.Secret, codes
}

func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCode(secret, h.clock.Now())
	require.NoError(t, err)
	return c
}

// wrongCode returns a six-digit code that no window within the skew accepts.
func (h *harness) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	now := h.clock.Now()
	valid := map[string]struct{}{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, err := totp.GenerateCode(secret, now.Add(d))
		require.NoError(t, err)
		valid[c] = struct{}{}
	}
	for i := 0; ; i++ {
		candidate := fmt.Sprintf("%06d", i)
		if _, ok := valid[candidate]; !ok {
			return candidate
		}
	}
}

// auditTypes lists the tenant's audit event types, oldest first.
func (h *harness) auditTypes(t *testing.T) []string {
	t.Helper()
	tenant := h.tenant
	events, _, err := h.store.AuditLogs().List(h.ctx, models.AuditLogFilter{TenantID: &tenant})
	require.NoError(t, err)
	out := make([]string, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i].EventType)
	}
	return out
}

func (h *harness) auditEvents(t *testing.T, eventType string) []*models.AuditEvent {
	t.Helper()
	tenant := h.tenant
	events, _, err := h.store.AuditLogs().List(h.ctx, models.AuditLogFilter{TenantID: &tenant, EventType: eventType})
	require.NoError(t, err)
	return events
}
