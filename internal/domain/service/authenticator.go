// File: internal/domain/service/authenticator.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/metrics"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/telemetry"
)

// Login result label values
const (
	loginResultSuccess      = "success"
	loginResultMFAChallenge = "mfa_challenge"
	loginResultInvalid      = "invalid_credentials"
	loginResultInactive     = "inactive_user"
	loginResultLocked       = "locked"
	loginResultThrottled    = "throttled"
	loginResultMFAInvalid   = "mfa_invalid"
	loginResultMFARequired  = "mfa_required"
	loginResultError        = "error"
)

// dummyPassword is hashed once at startup so unknown users cost the same as known ones.
const dummyPassword = "authcore-timing-equalizer"

// LoginRequest is the first login step.
type LoginRequest struct {
	Email     string
	Password  string
	TenantID  uuid.UUID
	IP        string
	UserAgent string
}

// MFALoginRequest completes a login that returned an MFA challenge.
type MFALoginRequest struct {
	Token            string
	Code             string
	IP               string
	UserAgent        string
	ExpectedTenantID uuid.UUID
}

// ChangePasswordRequest: CurrentSessionID, when set, survives the change.
type ChangePasswordRequest struct {
	UserID           uuid.UUID
	TenantID         uuid.UUID
	CurrentPassword  string
	NewPassword      string
	CurrentSessionID *uuid.UUID
	IP               string
	UserAgent        string
}

// ThrottlePolicy configures the optional per-IP login throttle.
type ThrottlePolicy struct {
	Limiter RateLimiter // nil disables the throttle
	Limit   int
	Window  time.Duration
}

// AuthenticatorConfig holds dependencies for Authenticator.
type AuthenticatorConfig struct {
	Users      repository.UserRepository
	Transactor repository.Transactor
	Sessions   *SessionRegistry
	Ledger     *TokenLedger
	MFA        *MFARegistry // required when Production is set
	Tokens     TokenManagementService
	Passwords  PasswordService
	Audit      *AuditLogService
	Throttle   ThrottlePolicy
	Clock      Clock
	Logger     *zap.Logger

	Production           bool
	RequireVerifiedEmail bool
}

// Authenticator orchestrates login, MFA completion, refresh and logout.
type Authenticator struct {
	users     repository.UserRepository
	tx        repository.Transactor
	sessions  *SessionRegistry
	ledger    *TokenLedger
	mfa       *MFARegistry
	tokens    TokenManagementService
	passwords PasswordService
	audit     *AuditLogService
	throttle  ThrottlePolicy
	clock     Clock
	logger    *zap.Logger

	requireVerified bool
	dummyHash       string
}

// NewAuthenticator создает новый экземпляр Authenticator
func NewAuthenticator(cfg AuthenticatorConfig) (*Authenticator, error) {
	if cfg.Users == nil || cfg.Transactor == nil || cfg.Sessions == nil || cfg.Ledger == nil ||
		cfg.Tokens == nil || cfg.Passwords == nil || cfg.Audit == nil {
		return nil, errors.New("authenticator: users, transactor, registries, token, password and audit services are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	logger := cfg.Logger.Named("authenticator")

	if cfg.MFA == nil {
		if cfg.Production {
			return nil, domainErrors.ErrMFACollaboratorMissing
		}
		logger.Warn("MFA registry is NOT configured: every login of a user with MFA enabled will fail with MFA_REQUIRED")
	}
	if cfg.Throttle.Limiter != nil && (cfg.Throttle.Limit <= 0 || cfg.Throttle.Window <= 0) {
		return nil, errors.New("authenticator: throttle limit and window must be positive")
	}

	dummyHash, err := cfg.Passwords.HashPassword(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("authenticator: failed to prepare dummy hash: %w", err)
	}

	return &Authenticator{
		users:           cfg.Users,
		tx:              cfg.Transactor,
		sessions:        cfg.Sessions,
		ledger:          cfg.Ledger,
		mfa:             cfg.MFA,
		tokens:          cfg.Tokens,
		passwords:       cfg.Passwords,
		audit:           cfg.Audit,
		throttle:        cfg.Throttle,
		clock:           cfg.Clock,
		logger:          logger,
		requireVerified: cfg.RequireVerifiedEmail,
		dummyHash:       dummyHash,
	}, nil
}

// Authenticate checks credentials within one tenant. Unknown user and wrong
// password are indistinguishable; an inactive user is reported only after
// the password matched.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string, tenantID uuid.UUID) (*models.User, error) {
	if tenantID == uuid.Nil {
		return nil, domainErrors.ErrTenantRequired
	}
	user, err := a.users.FindByEmail(ctx, tenantID, models.NormalizeEmail(email))
	if err != nil {
		if domainErrors.IsNotFound(err) {
			_, _ = a.passwords.CheckPasswordHash(password, a.dummyHash)
			return nil, domainErrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	match, err := a.passwords.CheckPasswordHash(password, user.PasswordHash)
	if err != nil {
		a.logger.Error("Stored password hash is unreadable", zap.Error(err), zap.String("user_id", user.ID.String()))
		return nil, domainErrors.ErrInvalidCredentials
	}
	if !match {
		return nil, domainErrors.ErrInvalidCredentials
	}
	if !user.IsActive || (a.requireVerified && !user.IsVerified) {
		return nil, domainErrors.ErrInactiveUser
	}
	if a.passwords.NeedsRehash(user.PasswordHash) {
		a.upgradeHash(ctx, user, password)
	}
	return user, nil
}

// upgradeHash re-encodes a verified password with the current parameters.
// Failures are logged and never fail the login.
func (a *Authenticator) upgradeHash(ctx context.Context, user *models.User, password string) {
	hash, err := a.passwords.HashPassword(password)
	if err != nil {
		a.logger.Warn("Failed to rehash password", zap.Error(err), zap.String("user_id", user.ID.String()))
		return
	}
	swapped, err := a.users.RehashPassword(ctx, user.TenantID, user.ID, user.PasswordHash, hash, a.clock.Now())
	if err != nil {
		a.logger.Warn("Failed to store rehashed password", zap.Error(err), zap.String("user_id", user.ID.String()))
		return
	}
	if swapped {
		user.PasswordHash = hash
		a.logger.Info("Password hash upgraded", zap.String("user_id", user.ID.String()))
	}
}

// Login runs THROTTLE → LOCK_CHECK → VERIFY → MFA_BRANCH → ISSUE.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (outcome models.LoginOutcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "Authenticator.Login")
	span.SetAttributes(attribute.String("tenant_id", req.TenantID.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	email := models.NormalizeEmail(req.Email)
	if req.TenantID == uuid.Nil || email == "" {
		return nil, fmt.Errorf("login: tenant and email are required: %w", domainErrors.ErrInvalidRequest)
	}

	if err := a.checkThrottle(ctx, req); err != nil {
		return nil, err
	}

	status, err := a.sessions.IsAccountLocked(ctx, email, req.TenantID)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(loginResultError).Inc()
		return nil, err
	}
	if status.Locked {
		return nil, a.rejectLocked(ctx, email, req.TenantID, req.IP, req.UserAgent, status)
	}

	user, err := a.Authenticate(ctx, email, req.Password, req.TenantID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrInvalidCredentials) || errors.Is(err, domainErrors.ErrInactiveUser) {
			return nil, a.rejectCredentials(ctx, email, req, err)
		}
		metrics.LoginAttemptsTotal.WithLabelValues(loginResultError).Inc()
		return nil, err
	}

	required, err := a.mfaRequired(ctx, user)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(loginResultError).Inc()
		return nil, err
	}
	if required {
		return a.challenge(ctx, user, req)
	}

	return a.issue(ctx, user, req.IP, req.UserAgent, models.LoginAttemptKindPassword, nil)
}

func (a *Authenticator) checkThrottle(ctx context.Context, req LoginRequest) error {
	if a.throttle.Limiter == nil || req.IP == "" {
		return nil
	}
	allowed, err := a.throttle.Limiter.Allow(ctx, "login:ip:"+req.IP, a.throttle.Limit, a.throttle.Window)
	if err != nil {
		// fail open: the attempt ledger is still enforced
		metrics.RateLimiterErrorsTotal.Inc()
		a.logger.Error("Login throttle backend failed, continuing without it", zap.Error(err), zap.String("ip", req.IP))
		return nil
	}
	if allowed {
		return nil
	}
	metrics.LoginAttemptsTotal.WithLabelValues(loginResultThrottled).Inc()
	auditErr := a.audit.LogAction(ctx, &models.AuditEvent{
		EventType: models.AuditEventLoginThrottled,
		Severity:  models.AuditSeverityWarning,
		TenantID:  req.TenantID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
		Metadata:  auditMetadata(map[string]interface{}{"email": models.NormalizeEmail(req.Email)}),
	})
	return joinAudit(domainErrors.ErrTooManyAttempts, auditErr)
}

// rejectLocked audits a refused attempt. It is not recorded as an attempt.
func (a *Authenticator) rejectLocked(ctx context.Context, email string, tenantID uuid.UUID, ip, userAgent string, status models.LockoutStatus) error {
	metrics.LoginAttemptsTotal.WithLabelValues(loginResultLocked).Inc()
	auditErr := a.audit.LogAction(ctx, &models.AuditEvent{
		EventType: models.AuditEventLoginLocked,
		Severity:  models.AuditSeverityWarning,
		TenantID:  tenantID,
		IPAddress: ip,
		UserAgent: userAgent,
		Metadata: auditMetadata(map[string]interface{}{
			"email":                email,
			"consecutive_failures": status.ConsecutiveFailures,
			"locked_until":         status.Until,
		}),
	})
	return joinAudit(domainErrors.ErrAccountLocked, auditErr)
}

func (a *Authenticator) rejectCredentials(ctx context.Context, email string, req LoginRequest, cause error) error {
	result := loginResultInvalid
	if errors.Is(cause, domainErrors.ErrInactiveUser) {
		result = loginResultInactive
	}
	metrics.LoginAttemptsTotal.WithLabelValues(result).Inc()

	recordErr := a.sessions.RecordLoginAttempt(ctx, &models.LoginAttempt{
		Email:     email,
		TenantID:  req.TenantID,
		Success:   false,
		Kind:      models.LoginAttemptKindPassword,
		IPAddress: req.IP,
	})
	auditErr := a.audit.LogAction(ctx, &models.AuditEvent{
		EventType: models.AuditEventLoginFailed,
		Severity:  models.AuditSeverityWarning,
		TenantID:  req.TenantID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
		Metadata:  auditMetadata(map[string]interface{}{"email": email, "reason": domainErrors.Code(cause)}),
	})
	if recordErr != nil {
		return fmt.Errorf("%w: %w", cause, recordErr)
	}
	return joinAudit(cause, auditErr)
}

// mfaRequired: either source saying yes is enough.
func (a *Authenticator) mfaRequired(ctx context.Context, user *models.User) (bool, error) {
	if user.MFAEnabled || a.mfa == nil {
		return user.MFAEnabled, nil
	}
	status, err := a.mfa.Status(ctx, user.TenantID, user.ID)
	if err != nil {
		return false, err
	}
	return status == models.MFAStatusEnabled, nil
}

func (a *Authenticator) challenge(ctx context.Context, user *models.User, req LoginRequest) (models.LoginOutcome, error) {
	if a.mfa == nil {
		metrics.LoginAttemptsTotal.WithLabelValues(loginResultMFARequired).Inc()
		a.logger.Error("Login needs a second factor but no MFA registry is configured",
			zap.String("user_id", user.ID.String()))
		return nil, domainErrors.ErrMFARequired
	}

	token, expiresAt, err := a.tokens.GenerateMFAChallengeToken(user.ID, user.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue mfa challenge: %w", err)
	}
	userID := user.ID
	err = a.audit.LogAction(ctx, &models.AuditEvent{
		EventType: models.AuditEventLoginMFAChallenge,
		UserID:    &userID,
		TenantID:  user.TenantID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
		Success:   true,
	})
	if err != nil {
		return nil, err
	}
	metrics.LoginAttemptsTotal.WithLabelValues(loginResultMFAChallenge).Inc()
	return models.MFAChallenge{Token: token, ExpiresAt: expiresAt}, nil
}

// issue opens the session, mints tokens, records the success and audits it in one transaction.
// challengeID, when set, is stored on the success row and makes the challenge single-use.
func (a *Authenticator) issue(ctx context.Context, user *models.User, ip, userAgent string, kind models.LoginAttemptKind, challengeID *uuid.UUID) (models.LoginOutcome, error) {
	signals, err := a.sessions.DetectSuspiciousActivity(ctx, user.TenantID, user.ID, ip, userAgent)
	if err != nil {
		a.logger.Warn("Suspicious activity detection failed", zap.Error(err), zap.String("user_id", user.ID.String()))
		signals = models.SignalSet{}
	}

	var pair *models.TokenPair
	err = a.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		err := a.sessions.RecordLoginAttempt(ctx, &models.LoginAttempt{
			Email:       user.Email,
			TenantID:    user.TenantID,
			Success:     true,
			Kind:        kind,
			IPAddress:   ip,
			ChallengeID: challengeID,
		})
		if err != nil {
			if challengeID != nil && errors.Is(err, domainErrors.ErrDuplicateValue) {
				return fmt.Errorf("%w: mfa challenge already used", domainErrors.ErrInvalidToken)
			}
			return err
		}
		session, err := a.sessions.CreateSession(ctx, models.CreateSessionParams{
			UserID:    user.ID,
			TenantID:  user.TenantID,
			IPAddress: ip,
			UserAgent: userAgent,
		})
		if err != nil {
			return err
		}
		if pair, err = a.ledger.Issue(ctx, session); err != nil {
			return err
		}

		userID, sessionID := user.ID, session.ID
		severity := models.AuditSeverityInfo
		if signals.Any() {
			severity = models.AuditSeverityWarning
		}
		return a.audit.LogAction(ctx, &models.AuditEvent{
			EventType: models.AuditEventLoginSuccess,
			Severity:  severity,
			UserID:    &userID,
			TenantID:  user.TenantID,
			SessionID: &sessionID,
			IPAddress: ip,
			UserAgent: userAgent,
			Success:   true,
			Metadata:  auditMetadata(map[string]interface{}{"method": string(kind), "signals": signals}),
		})
	})
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues(loginResultError).Inc()
		return nil, err
	}

	metrics.LoginAttemptsTotal.WithLabelValues(loginResultSuccess).Inc()
	a.logger.Info("User logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("tenant_id", user.TenantID.String()),
		zap.String("session_id", pair.SessionID.String()))
	return models.Issued{Tokens: *pair, Signals: signals}, nil
}

// CompleteMFALogin finishes a login with the challenge token and a TOTP or
// recovery code.
func (a *Authenticator) CompleteMFALogin(ctx context.Context, req MFALoginRequest) (outcome models.LoginOutcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "Authenticator.CompleteMFALogin")
	defer func() { telemetry.EndSpan(span, err) }()

	claims, err := a.tokens.ValidateMFAChallengeToken(req.Token)
	if err != nil {
		return nil, err
	}
	if claims.TenantID != req.ExpectedTenantID {
		return nil, a.rejectTenantMismatch(ctx, claims, req)
	}
	span.SetAttributes(attribute.String("tenant_id", claims.TenantID.String()))

	challengeID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: mfa challenge has no usable jti", domainErrors.ErrInvalidToken)
	}

	if a.mfa == nil {
		metrics.LoginAttemptsTotal.WithLabelValues(loginResultMFARequired).Inc()
		return nil, domainErrors.ErrMFARequired
	}

	// До проверки кода: повтор не должен расходовать recovery-код.
	consumed, err := a.sessions.ChallengeConsumed(ctx, claims.TenantID, challengeID)
	if err != nil {
		return nil, err
	}
	if consumed {
		return nil, a.rejectChallengeReuse(ctx, claims, req)
	}

	user, err := a.users.FindByID(ctx, claims.TenantID, claims.UserID)
	if err != nil {
		if domainErrors.IsNotFound(err) {
			return nil, domainErrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !user.IsActive || (a.requireVerified && !user.IsVerified) {
		return nil, domainErrors.ErrInactiveUser
	}

	status, err := a.sessions.IsAccountLocked(ctx, user.Email, user.TenantID)
	if err != nil {
		return nil, err
	}
	if status.Locked {
		return nil, a.rejectLocked(ctx, user.Email, user.TenantID, req.IP, req.UserAgent, status)
	}

	if isTOTPCode(req.Code) {
		err = a.mfa.VerifyTOTP(ctx, user.TenantID, user.ID, req.Code)
	} else {
		err = a.mfa.VerifyRecoveryCode(ctx, user.TenantID, user.ID, req.Code)
	}
	if err != nil {
		if errors.Is(err, domainErrors.ErrMFAInvalid) || errors.Is(err, domainErrors.ErrMFANotEnabled) {
			return nil, a.rejectMFA(ctx, user, req)
		}
		return nil, err
	}

	return a.issue(ctx, user, req.IP, req.UserAgent, models.LoginAttemptKindMFA, &challengeID)
}

func (a *Authenticator) rejectChallengeReuse(ctx context.Context, claims *models.MFAChallengeClaims, req MFALoginRequest) error {
	metrics.LoginAttemptsTotal.WithLabelValues(loginResultMFAInvalid).Inc()
	a.logger.Warn("MFA challenge presented again after it was used",
		zap.String("user_id", claims.UserID.String()),
		zap.String("jti", claims.ID),
		zap.String("ip", req.IP))
	userID := claims.UserID
	auditErr := a.audit.LogAction(ctx, &models.AuditEvent{
		EventType: models.AuditEventMFAChallengeReused,
		Severity:  models.AuditSeverityWarning,
		UserID:    &userID,
		TenantID:  claims.TenantID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
		Metadata:  auditMetadata(map[string]interface{}{"jti": claims.ID}),
	})
	return joinAudit(domainErrors.ErrInvalidToken, auditErr)
}

func (a *Authenticator) rejectTenantMismatch(ctx context.Context, claims *models.MFAChallengeClaims, req MFALoginRequest) error {
	a.logger.Warn("MFA challenge presented for another tenant",
		zap.String("token_tenant_id", claims.TenantID.String()),
		zap.String("expected_tenant_id", req.ExpectedTenantID.String()),
		zap.String("ip", req.IP))
	userID := claims.UserID
	auditErr := a.audit.LogAction(ctx, &models.AuditEvent{
		EventType: models.AuditEventMFATenantMismatch,
		Severity:  models.AuditSeverityCritical,
		UserID:    &userID,
		TenantID:  claims.TenantID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
		Metadata:  auditMetadata(map[string]interface{}{"expected_tenant_id": req.ExpectedTenantID.String()}),
	})
	return joinAudit(domainErrors.ErrInvalidToken, auditErr)
}

func (a *Authenticator) rejectMFA(ctx context.Context, user *models.User, req MFALoginRequest) error {
	metrics.LoginAttemptsTotal.WithLabelValues(loginResultMFAInvalid).Inc()
	recordErr := a.sessions.RecordLoginAttempt(ctx, &models.LoginAttempt{
		Email:     user.Email,
		TenantID:  user.TenantID,
		Success:   false,
		Kind:      models.LoginAttemptKindMFA,
		IPAddress: req.IP,
	})
	userID := user.ID
	auditErr := a.audit.LogAction(ctx, &models.AuditEvent{
		EventType: models.AuditEventMFALoginFailed,
		Severity:  models.AuditSeverityWarning,
		UserID:    &userID,
		TenantID:  user.TenantID,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})
	if recordErr != nil {
		return fmt.Errorf("%w: %w", domainErrors.ErrMFAInvalid, recordErr)
	}
	return joinAudit(domainErrors.ErrMFAInvalid, auditErr)
}

// Refresh rotates a refresh token.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (pair *models.TokenPair, err error) {
	ctx, span := telemetry.StartSpan(ctx, "Authenticator.Refresh")
	defer func() { telemetry.EndSpan(span, err) }()
	return a.ledger.Rotate(ctx, refreshToken, ip, userAgent)
}

// Logout revokes one session of the user and its refresh tokens.
func (a *Authenticator) Logout(ctx context.Context, userID, tenantID, sessionID uuid.UUID) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "Authenticator.Logout")
	defer func() { telemetry.EndSpan(span, err) }()

	return a.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := a.sessions.TerminateSession(ctx, tenantID, userID, sessionID, models.RevokeReasonLogout); err != nil {
			return err
		}
		return a.audit.LogAction(ctx, &models.AuditEvent{
			EventType: models.AuditEventLogout,
			UserID:    &userID,
			TenantID:  tenantID,
			SessionID: &sessionID,
			Success:   true,
		})
	})
}

// LogoutCurrent logs out the session named by validated access token claims.
func (a *Authenticator) LogoutCurrent(ctx context.Context, claims *models.AccessClaims) error {
	if claims == nil {
		return domainErrors.ErrInvalidToken
	}
	return a.Logout(ctx, claims.UserID, claims.TenantID, claims.SessionID)
}

// LogoutAll revokes every session of the user except the optional one.
func (a *Authenticator) LogoutAll(ctx context.Context, userID, tenantID uuid.UUID, exceptSessionID *uuid.UUID) (n int, err error) {
	ctx, span := telemetry.StartSpan(ctx, "Authenticator.LogoutAll")
	defer func() { telemetry.EndSpan(span, err) }()

	err = a.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		n, err = a.sessions.TerminateAllSessions(ctx, tenantID, userID, exceptSessionID, models.RevokeReasonLogoutAll)
		if err != nil {
			return err
		}
		meta := map[string]interface{}{"revoked": n}
		if exceptSessionID != nil {
			meta["kept_session_id"] = exceptSessionID.String()
		}
		return a.audit.LogAction(ctx, &models.AuditEvent{
			EventType: models.AuditEventLogoutAll,
			UserID:    &userID,
			TenantID:  tenantID,
			SessionID: exceptSessionID,
			Success:   true,
			Metadata:  auditMetadata(meta),
		})
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ValidateToken checks an access token without touching the store.
func (a *Authenticator) ValidateToken(token string) (*models.AccessClaims, error) {
	return a.tokens.ValidateAccessToken(token)
}

// ChangePassword replaces the password and ends every other session.
func (a *Authenticator) ChangePassword(ctx context.Context, req ChangePasswordRequest) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "Authenticator.ChangePassword")
	defer func() { telemetry.EndSpan(span, err) }()

	if req.NewPassword == "" {
		return fmt.Errorf("new password is empty: %w", domainErrors.ErrInvalidRequest)
	}
	user, err := a.users.FindByID(ctx, req.TenantID, req.UserID)
	if err != nil {
		return err
	}
	match, err := a.passwords.CheckPasswordHash(req.CurrentPassword, user.PasswordHash)
	if err != nil || !match {
		userID := user.ID
		auditErr := a.audit.LogAction(ctx, &models.AuditEvent{
			EventType: models.AuditEventPasswordChanged,
			Severity:  models.AuditSeverityWarning,
			UserID:    &userID,
			TenantID:  user.TenantID,
			SessionID: req.CurrentSessionID,
			IPAddress: req.IP,
			UserAgent: req.UserAgent,
			Success:   false,
		})
		return joinAudit(domainErrors.ErrInvalidCredentials, auditErr)
	}

	hash, err := a.passwords.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	return a.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := a.users.UpdatePassword(ctx, user.TenantID, user.ID, hash, a.clock.Now()); err != nil {
			return fmt.Errorf("failed to store new password: %w", err)
		}
		n, err := a.sessions.TerminateAllSessions(ctx, user.TenantID, user.ID, req.CurrentSessionID, models.RevokeReasonPasswordChange)
		if err != nil {
			return err
		}
		userID := user.ID
		return a.audit.LogAction(ctx, &models.AuditEvent{
			EventType: models.AuditEventPasswordChanged,
			UserID:    &userID,
			TenantID:  user.TenantID,
			SessionID: req.CurrentSessionID,
			IPAddress: req.IP,
			UserAgent: req.UserAgent,
			Success:   true,
			Metadata:  auditMetadata(map[string]interface{}{"sessions_revoked": n}),
		})
	})
}

// joinAudit keeps the primary error first so errors.Is and Code see it.
func joinAudit(primary, auditErr error) error {
	if auditErr == nil {
		return primary
	}
	return fmt.Errorf("%w: %w", primary, auditErr)
}
