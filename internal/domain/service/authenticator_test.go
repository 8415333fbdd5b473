package service_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/service"
)

func withThreshold(n int) func(*harnessOptions) {
	return func(o *harnessOptions) { o.maxFailed = n }
}

func (h *harness) completeMFA(token, code string) (models.LoginOutcome, error) {
	return h.auth.CompleteMFALogin(h.ctx, service.MFALoginRequest{
		Token:            token,
		Code:             code,
		IP:               testIP,
		UserAgent:        testUserAgent,
		ExpectedTenantID: h.tenant,
	})
}

func (h *harness) mustChallenge(t *testing.T, email string) models.MFAChallenge {
	t.Helper()
	outcome, err := h.login(email, testPassword)
	require.NoError(t, err)
	challenge, ok := outcome.(models.MFAChallenge)
	require.True(t, ok, "expected an mfa challenge, got %T", outcome)
	return challenge
}

func TestAuthenticator_LoginRefreshReplay(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "user@example.com")

	issued := h.mustIssue(t, "  User@Example.com ")
	assert.NotEmpty(t, issued.Tokens.AccessToken)
	assert.NotEqual(t, uuid.Nil, issued.Tokens.SessionID)
	assert.False(t, issued.Signals.Any())

	claims, err := h.auth.ValidateToken(issued.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, h.tenant, claims.TenantID)

	next, err := h.auth.Refresh(h.ctx, issued.Tokens.RefreshToken, testIP, testUserAgent)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Tokens.RefreshToken, next.RefreshToken)

	_, err = h.auth.Refresh(h.ctx, issued.Tokens.RefreshToken, testIP, testUserAgent)
	assert.ErrorIs(t, err, domainErrors.ErrTokenReplayDetected)

	success := h.auditEvents(t, models.AuditEventLoginSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, issued.Tokens.SessionID, *success[0].SessionID)
}

func TestAuthenticator_WrongTOTPThenRecoveryCode(t *testing.T) {
	h := newHarness(t, withThreshold(5))
	user := h.addUser(t, "mfa@example.com")
	secret, codes := h.enrollMFA(t, user)

	challenge := h.mustChallenge(t, user.Email)
	for i := 0; i < 3; i++ {
		_, err := h.completeMFA(challenge.Token, h.wrongCode(t, secret))
		require.ErrorIs(t, err, domainErrors.ErrMFAInvalid)
	}

	outcome, err := h.completeMFA(challenge.Token, codes[0])
	require.NoError(t, err)
	issued, ok := outcome.(models.Issued)
	require.True(t, ok)
	assert.NotEmpty(t, issued.Tokens.RefreshToken)

	// Использованный recovery-код не принимается и с новым challenge.
	next := h.mustChallenge(t, user.Email)
	_, err = h.completeMFA(next.Token, codes[0])
	assert.ErrorIs(t, err, domainErrors.ErrMFAInvalid)

	assert.Len(t, h.auditEvents(t, models.AuditEventMFALoginFailed), 4)
	assert.Len(t, h.auditEvents(t, models.AuditEventLoginMFAChallenge), 2)
}

func TestAuthenticator_MFAChallengeIsSingleUse(t *testing.T) {
	h := newHarness(t)
	user := h.addUser(t, "once@example.com")
	secret, codes := h.enrollMFA(t, user)
	challenge := h.mustChallenge(t, user.Email)

	outcome, err := h.completeMFA(challenge.Token, h.code(t, secret))
	require.NoError(t, err)
	require.IsType(t, models.Issued{}, outcome)

	h.clock.Advance(30 * time.Second)
	_, err = h.completeMFA(challenge.Token, h.code(t, secret))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)

	// Отказ происходит до проверки кода: recovery-код остается в запасе.
	_, err = h.completeMFA(challenge.Token, codes[1])
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)
	remaining, err := h.mfa.RemainingRecoveryCodes(h.ctx, user.TenantID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, len(codes), remaining)

	active, err := h.sessions.ListSessions(h.ctx, h.tenant, user.ID, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Len(t, h.auditEvents(t, models.AuditEventLoginSuccess), 1)
	assert.Len(t, h.auditEvents(t, models.AuditEventMFAChallengeReused), 2)
	assert.Empty(t, h.auditEvents(t, models.AuditEventMFALoginFailed), "reuse is not a wrong code")

	// Новый challenge того же пользователя проходит.
	h.clock.Advance(30 * time.Second)
	fresh := h.mustChallenge(t, user.Email)
	outcome, err = h.completeMFA(fresh.Token, h.code(t, secret))
	require.NoError(t, err)
	assert.IsType(t, models.Issued{}, outcome)
}

func TestAuthenticator_LockoutIsPerTenant(t *testing.T) {
	h := newHarness(t, withThreshold(5))
	h.addUser(t, "user@example.com")
	otherTenant := uuid.New()
	h.addUser(t, "user@example.com", func(u *models.User) { u.TenantID = otherTenant })

	for i := 0; i < 5; i++ {
		_, err := h.login("user@example.com", "wrong password")
		require.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)
		h.clock.Advance(time.Minute)
	}

	_, err := h.login("user@example.com", testPassword)
	assert.ErrorIs(t, err, domainErrors.ErrAccountLocked)
	assert.Len(t, h.auditEvents(t, models.AuditEventLoginLocked), 1)

	outcome, err := h.auth.Login(h.ctx, service.LoginRequest{
		Email: "user@example.com", Password: testPassword, TenantID: otherTenant, IP: testIP, UserAgent: testUserAgent,
	})
	require.NoError(t, err)
	assert.IsType(t, models.Issued{}, outcome)
}

func TestAuthenticator_UnknownUserLooksLikeWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "known@example.com")

	_, unknown := h.login("nobody@example.com", testPassword)
	_, wrong := h.login("known@example.com", "nope")
	assert.ErrorIs(t, unknown, domainErrors.ErrInvalidCredentials)
	assert.ErrorIs(t, wrong, domainErrors.ErrInvalidCredentials)
	assert.Equal(t, unknown.Error(), wrong.Error())
}

func TestAuthenticator_LoginUpgradesLegacyHash(t *testing.T) {
	h := newHarness(t)
	legacy, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user := h.addUser(t, "legacy@example.com", func(u *models.User) { u.PasswordHash = string(legacy) })

	h.mustIssue(t, "legacy@example.com")

	stored, err := h.store.Users().FindByID(h.ctx, h.tenant, user.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	assert.False(t, h.passwords.NeedsRehash(stored.PasswordHash))
	assert.Nil(t, stored.PasswordChangedAt, "a rehash is not a password change")

	h.mustIssue(t, "legacy@example.com")

	_, err = h.login("legacy@example.com", "wrong password")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)
	after, err := h.store.Users().FindByID(h.ctx, h.tenant, user.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.PasswordHash, after.PasswordHash)
}

func TestAuthenticator_CurrentHashIsLeftAlone(t *testing.T) {
	h := newHarness(t)
	user := h.addUser(t, "fresh@example.com")

	h.mustIssue(t, "fresh@example.com")

	stored, err := h.store.Users().FindByID(h.ctx, h.tenant, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.PasswordHash, stored.PasswordHash)
}

func TestAuthenticator_InactiveUser(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "gone@example.com", func(u *models.User) { u.IsActive = false })

	_, err := h.login("gone@example.com", "wrong")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials, "inactivity is not revealed before the password matches")

	_, err = h.login("gone@example.com", testPassword)
	assert.ErrorIs(t, err, domainErrors.ErrInactiveUser)
}

func TestAuthenticator_MFATenantMismatch(t *testing.T) {
	h := newHarness(t)
	user := h.addUser(t, "cross@example.com")
	secret, _ := h.enrollMFA(t, user)
	challenge := h.mustChallenge(t, user.Email)

	_, err := h.auth.CompleteMFALogin(h.ctx, service.MFALoginRequest{
		Token:            challenge.Token,
		Code:             h.code(t, secret),
		ExpectedTenantID: uuid.New(),
	})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)

	mismatch := h.auditEvents(t, models.AuditEventMFATenantMismatch)
	require.Len(t, mismatch, 1)
	assert.Equal(t, models.AuditSeverityCritical, mismatch[0].Severity)
	assert.Empty(t, h.auditEvents(t, models.AuditEventLoginSuccess))
}

func TestAuthenticator_MFAChallengeExpires(t *testing.T) {
	h := newHarness(t)
	user := h.addUser(t, "slow@example.com")
	secret, _ := h.enrollMFA(t, user)
	challenge := h.mustChallenge(t, user.Email)

	h.clock.Advance(6 * time.Minute)
	_, err := h.completeMFA(challenge.Token, h.code(t, secret))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)
}

func TestAuthenticator_AccessTokenIsNotAChallenge(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "swap@example.com")
	issued := h.mustIssue(t, "swap@example.com")

	_, err := h.completeMFA(issued.Tokens.AccessToken, "123456")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)
}

func TestAuthenticator_DirectoryFlagWithoutRegistry(t *testing.T) {
	h := newHarness(t, func(o *harnessOptions) { o.withoutMFA = true })
	h.addUser(t, "flag@example.com", func(u *models.User) { u.MFAEnabled = true })

	_, err := h.login("flag@example.com", testPassword)
	assert.ErrorIs(t, err, domainErrors.ErrMFARequired)
	assert.Empty(t, h.auditEvents(t, models.AuditEventLoginSuccess))
	assert.GreaterOrEqual(t, h.logs.FilterMessageSnippet("MFA registry is NOT configured").Len(), 1)
}

func TestNewAuthenticator_ProductionRequiresMFA(t *testing.T) {
	h := newHarness(t)
	_, err := service.NewAuthenticator(service.AuthenticatorConfig{
		Users:      h.store.Users(),
		Transactor: h.store,
		Sessions:   h.sessions,
		Ledger:     h.ledger,
		Tokens:     h.tokens,
		Passwords:  h.passwords,
		Audit:      h.audit,
		Production: true,
	})
	assert.ErrorIs(t, err, domainErrors.ErrMFACollaboratorMissing)
}

func TestAuthenticator_ThrottleFailsOpen(t *testing.T) {
	limiter := new(mockRateLimiter)
	h := newHarness(t, func(o *harnessOptions) {
		o.throttle = service.ThrottlePolicy{Limiter: limiter, Limit: 10, Window: time.Minute}
	})
	h.addUser(t, "busy@example.com")

	limiter.On("Allow", mock.Anything, "login:ip:"+testIP, 10, time.Minute).Return(false, nil).Once()
	_, err := h.login("busy@example.com", testPassword)
	assert.ErrorIs(t, err, domainErrors.ErrTooManyAttempts)
	assert.Len(t, h.auditEvents(t, models.AuditEventLoginThrottled), 1)

	limiter.On("Allow", mock.Anything, "login:ip:"+testIP, 10, time.Minute).Return(false, errors.New("redis down")).Once()
	_, err = h.login("busy@example.com", testPassword)
	assert.NoError(t, err, "a broken throttle backend must not block logins")
	limiter.AssertExpectations(t)
}

func TestAuthenticator_AuditFailureAbortsLogin(t *testing.T) {
	h := newHarness(t)
	user := h.addUser(t, "audit@example.com")

	h.auditRepo.FailOn(models.AuditEventLoginSuccess)
	_, err := h.login(user.Email, testPassword)
	require.ErrorIs(t, err, domainErrors.ErrAuditWriteFailed)

	sessions, err := h.sessions.ListSessions(h.ctx, h.tenant, user.ID, false)
	require.NoError(t, err)
	assert.Empty(t, sessions, "no session may survive an unaudited login")
}

func TestAuthenticator_SuspiciousSignalsOnNewDevice(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "roam@example.com")
	h.mustIssue(t, "roam@example.com")

	outcome, err := h.auth.Login(h.ctx, service.LoginRequest{
		Email:     "roam@example.com",
		Password:  testPassword,
		TenantID:  h.tenant,
		IP:        "198.51.100.200",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	})
	require.NoError(t, err)
	issued := outcome.(models.Issued)
	assert.True(t, issued.Signals.NewIP)
	assert.True(t, issued.Signals.NewDevice)
	assert.Equal(t, 1, issued.Signals.ActiveSessions)

	success := h.auditEvents(t, models.AuditEventLoginSuccess)
	require.Len(t, success, 2)
	assert.Equal(t, models.AuditSeverityWarning, success[0].Severity, "newest login carries the signals")
}

func TestAuthenticator_LogoutAndLogoutAll(t *testing.T) {
	h := newHarness(t)
	user := h.addUser(t, "multi@example.com")
	a := h.mustIssue(t, user.Email)
	b := h.mustIssue(t, user.Email)
	c := h.mustIssue(t, user.Email)

	claims, err := h.auth.ValidateToken(a.Tokens.AccessToken)
	require.NoError(t, err)
	require.NoError(t, h.auth.LogoutCurrent(h.ctx, claims))
	_, err = h.auth.Refresh(h.ctx, a.Tokens.RefreshToken, testIP, testUserAgent)
	assert.ErrorIs(t, err, domainErrors.ErrTokenRevoked)

	keep := b.Tokens.SessionID
	n, err := h.auth.LogoutAll(h.ctx, user.ID, h.tenant, &keep)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = h.auth.Refresh(h.ctx, c.Tokens.RefreshToken, testIP, testUserAgent)
	assert.ErrorIs(t, err, domainErrors.ErrTokenRevoked)
	_, err = h.auth.Refresh(h.ctx, b.Tokens.RefreshToken, testIP, testUserAgent)
	assert.NoError(t, err)

	assert.ErrorIs(t, h.auth.Logout(h.ctx, uuid.New(), h.tenant, keep), domainErrors.ErrSessionNotFound)
	assert.Len(t, h.auditEvents(t, models.AuditEventLogout), 1)
	assert.Len(t, h.auditEvents(t, models.AuditEventLogoutAll), 1)
}

func TestAuthenticator_ChangePassword(t *testing.T) {
	h := newHarness(t)
	user := h.addUser(t, "rotate@example.com")
	current := h.mustIssue(t, user.Email)
	other := h.mustIssue(t, user.Email)

	keep := current.Tokens.SessionID
	req := service.ChangePasswordRequest{
		UserID:           user.ID,
		TenantID:         h.tenant,
		CurrentPassword:  "wrong",
		NewPassword:      "a much better passphrase",
		CurrentSessionID: &keep,
	}
	assert.ErrorIs(t, h.auth.ChangePassword(h.ctx, req), domainErrors.ErrInvalidCredentials)

	req.CurrentPassword = testPassword
	require.NoError(t, h.auth.ChangePassword(h.ctx, req))

	_, err := h.auth.Refresh(h.ctx, other.Tokens.RefreshToken, testIP, testUserAgent)
	assert.ErrorIs(t, err, domainErrors.ErrTokenRevoked)
	_, err = h.auth.Refresh(h.ctx, current.Tokens.RefreshToken, testIP, testUserAgent)
	assert.NoError(t, err)

	_, err = h.login(user.Email, testPassword)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)
	h.mustIssueWith(t, user.Email, "a much better passphrase")
}

func (h *harness) mustIssueWith(t *testing.T, email, password string) {
	t.Helper()
	outcome, err := h.login(email, password)
	require.NoError(t, err)
	assert.IsType(t, models.Issued{}, outcome)
}
