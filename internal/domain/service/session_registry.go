// File: internal/domain/service/session_registry.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/user_agent"
	"go.uber.org/zap"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/metrics"
)

// LockoutPolicy configures the brute-force lockout. The zero value of
// RelaxedForTesting is strict.
type LockoutPolicy struct {
	MaxFailedAttempts int
	Window            time.Duration
	// RelaxedForTesting reports accounts as never locked. The config loader
	// refuses it in production.
	RelaxedForTesting bool
}

// SessionRegistryConfig holds dependencies and policy for SessionRegistry.
type SessionRegistryConfig struct {
	Transactor    repository.Transactor
	Sessions      repository.SessionRepository
	RefreshTokens repository.RefreshTokenRepository
	LoginAttempts repository.LoginAttemptRepository
	Audit         *AuditLogService
	Clock         Clock
	Logger        *zap.Logger

	Lockout          LockoutPolicy
	SessionTTL       time.Duration
	MaxActivePerUser int // 0 = unlimited
}

// SessionRegistry owns session lifecycle, the login attempt ledger and
// suspicious-activity detection.
type SessionRegistry struct {
	tx       repository.Transactor
	sessions repository.SessionRepository
	tokens   repository.RefreshTokenRepository
	attempts repository.LoginAttemptRepository
	audit    *AuditLogService
	clock    Clock
	logger   *zap.Logger

	lockout          LockoutPolicy
	sessionTTL       time.Duration
	maxActivePerUser int
}

// NewSessionRegistry создает новый экземпляр SessionRegistry
func NewSessionRegistry(cfg SessionRegistryConfig) (*SessionRegistry, error) {
	if cfg.Transactor == nil || cfg.Sessions == nil || cfg.RefreshTokens == nil || cfg.LoginAttempts == nil || cfg.Audit == nil {
		return nil, errors.New("session registry: transactor, repositories and audit service are required")
	}
	if cfg.Lockout.MaxFailedAttempts <= 0 || cfg.Lockout.Window <= 0 {
		return nil, errors.New("session registry: lockout threshold and window must be positive")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("session registry: session TTL must be positive")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	logger := cfg.Logger.Named("session_registry")
	if cfg.Lockout.RelaxedForTesting {
		logger.Warn("Account lockout is RELAXED: locked accounts will be allowed to log in. Never use this outside tests.")
	}

	return &SessionRegistry{
		tx:               cfg.Transactor,
		sessions:         cfg.Sessions,
		tokens:           cfg.RefreshTokens,
		attempts:         cfg.LoginAttempts,
		audit:            cfg.Audit,
		clock:            cfg.Clock,
		logger:           logger,
		lockout:          cfg.Lockout,
		sessionTTL:       cfg.SessionTTL,
		maxActivePerUser: cfg.MaxActivePerUser,
	}, nil
}

// IsAccountLocked derives the lock state of (email, tenant) from the attempt
// ledger. Consecutive failures are counted from the newest attempt back to
// the first success inside the window, capped at the threshold.
func (s *SessionRegistry) IsAccountLocked(ctx context.Context, email string, tenantID uuid.UUID) (models.LockoutStatus, error) {
	now := s.clock.Now()
	n := s.lockout.MaxFailedAttempts

	recent, err := s.attempts.ListSince(ctx, tenantID, models.NormalizeEmail(email), now.Add(-s.lockout.Window), n)
	if err != nil {
		return models.LockoutStatus{}, fmt.Errorf("failed to read login attempts: %w", err)
	}

	var status models.LockoutStatus
	for _, a := range recent {
		if a.Success {
			break
		}
		status.ConsecutiveFailures++
	}
	if status.ConsecutiveFailures >= n {
		// the lock lifts when the n-th most recent failure leaves the window
		status.Locked = true
		status.Until = recent[n-1].CreatedAt.Add(s.lockout.Window)
	}

	if status.Locked && s.lockout.RelaxedForTesting {
		s.logger.Warn("Relaxed lockout policy let a locked account through",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("consecutive_failures", status.ConsecutiveFailures))
		status.Locked = false
		status.Until = time.Time{}
	}
	return status, nil
}

// RecordLoginAttempt appends to the ledger.
func (s *SessionRegistry) RecordLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.clock.Now()
	}
	if attempt.Kind == "" {
		attempt.Kind = models.LoginAttemptKindPassword
	}
	attempt.Email = models.NormalizeEmail(attempt.Email)
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// ChallengeConsumed reports whether an MFA challenge already produced a login.
func (s *SessionRegistry) ChallengeConsumed(ctx context.Context, tenantID, challengeID uuid.UUID) (bool, error) {
	consumed, err := s.attempts.ChallengeConsumed(ctx, tenantID, challengeID)
	if err != nil {
		return false, fmt.Errorf("failed to read login attempts: %w", err)
	}
	return consumed, nil
}

// ResetLockout clears a lock by appending an administrative success row.
func (s *SessionRegistry) ResetLockout(ctx context.Context, email string, tenantID, actorID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("lockout reset: %w", domainErrors.ErrTenantRequired)
	}
	email = models.NormalizeEmail(email)
	err := s.RecordLoginAttempt(ctx, &models.LoginAttempt{
		Email:    email,
		TenantID: tenantID,
		Success:  true,
		Kind:     models.LoginAttemptKindAdminReset,
	})
	if err != nil {
		return err
	}

	var actor *uuid.UUID
	if actorID != uuid.Nil {
		actor = &actorID
	}
	s.logger.Info("Lockout reset", zap.String("tenant_id", tenantID.String()), zap.String("email", email))
	return s.audit.LogAction(ctx, &models.AuditEvent{
		EventType: models.AuditEventLockoutReset,
		Severity:  models.AuditSeverityWarning,
		UserID:    actor,
		TenantID:  tenantID,
		Success:   true,
		Metadata:  auditMetadata(map[string]interface{}{"email": email}),
	})
}

// CreateSession opens a session. The per-user limit is a soft limit: two
// concurrent logins may both pass the count.
func (s *SessionRegistry) CreateSession(ctx context.Context, params models.CreateSessionParams) (*models.Session, error) {
	if err := s.requireTenant(params.TenantID, params.UserID); err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if s.maxActivePerUser > 0 {
		active, err := s.sessions.CountActive(ctx, params.TenantID, params.UserID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to count active sessions: %w", err)
		}
		if active >= s.maxActivePerUser {
			s.logger.Info("Session limit reached",
				zap.String("user_id", params.UserID.String()),
				zap.Int("active", active))
			return nil, domainErrors.ErrMaxSessionsExceeded
		}
	}

	session := &models.Session{
		ID:         uuid.New(),
		UserID:     params.UserID,
		TenantID:   params.TenantID,
		IPAddress:  params.IPAddress,
		UserAgent:  params.UserAgent,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.logger.Error("Failed to create session", zap.Error(err), zap.String("user_id", params.UserID.String()))
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	metrics.SessionsCreatedTotal.Inc()
	return session, nil
}

// GetSession returns a session of the tenant. A lookup without tenant is refused.
func (s *SessionRegistry) GetSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.Session, error) {
	if err := s.requireTenant(tenantID, sessionID); err != nil {
		return nil, err
	}
	return s.sessions.FindByID(ctx, tenantID, sessionID)
}

// EnsureActive returns the session if it is still active.
func (s *SessionRegistry) EnsureActive(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.Session, error) {
	session, err := s.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive(s.clock.Now()) {
		return nil, domainErrors.ErrSessionExpired
	}
	return session, nil
}

// TouchSession bumps last_seen_at.
func (s *SessionRegistry) TouchSession(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	if err := s.requireTenant(tenantID, sessionID); err != nil {
		return err
	}
	return s.sessions.UpdateLastSeen(ctx, tenantID, sessionID, s.clock.Now())
}

// ListSessions returns the user's sessions, newest first.
func (s *SessionRegistry) ListSessions(ctx context.Context, tenantID, userID uuid.UUID, activeOnly bool) ([]*models.Session, error) {
	if err := s.requireTenant(tenantID, userID); err != nil {
		return nil, err
	}
	return s.sessions.ListByUser(ctx, tenantID, userID, activeOnly, s.clock.Now())
}

// TerminateSession revokes one of the user's sessions together with its
// refresh tokens. Terminating an already revoked session succeeds.
func (s *SessionRegistry) TerminateSession(ctx context.Context, tenantID, userID, sessionID uuid.UUID, reason string) error {
	if err := s.requireTenant(tenantID, sessionID); err != nil {
		return err
	}
	now := s.clock.Now()

	var changed bool
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		session, err := s.sessions.FindByID(ctx, tenantID, sessionID)
		if err != nil {
			return err
		}
		if session.UserID != userID {
			return domainErrors.ErrSessionNotFound
		}
		if changed, err = s.sessions.Revoke(ctx, tenantID, sessionID, now, reason); err != nil {
			return fmt.Errorf("failed to revoke session: %w", err)
		}
		if _, err := s.tokens.RevokeBySession(ctx, tenantID, sessionID, now, reason); err != nil {
			return fmt.Errorf("failed to revoke session tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		metrics.SessionsRevokedTotal.WithLabelValues(reason).Inc()
	}
	return nil
}

// TerminateAllSessions revokes every session of the user except the
// optional one, and returns how many were revoked by this call.
func (s *SessionRegistry) TerminateAllSessions(ctx context.Context, tenantID, userID uuid.UUID, except *uuid.UUID, reason string) (int, error) {
	if err := s.requireTenant(tenantID, userID); err != nil {
		return 0, err
	}
	now := s.clock.Now()

	var revoked []uuid.UUID
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		revoked, err = s.sessions.RevokeAllByUser(ctx, tenantID, userID, except, now, reason)
		if err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		for _, id := range revoked {
			if _, err := s.tokens.RevokeBySession(ctx, tenantID, id, now, reason); err != nil {
				return fmt.Errorf("failed to revoke tokens of session %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.SessionsRevokedTotal.WithLabelValues(reason).Add(float64(len(revoked)))
	return len(revoked), nil
}

// DetectSuspiciousActivity compares the incoming ip and user agent with the
// user's sessions. It reports facts only and never blocks.
func (s *SessionRegistry) DetectSuspiciousActivity(ctx context.Context, tenantID, userID uuid.UUID, ip, userAgent string) (models.SignalSet, error) {
	if err := s.requireTenant(tenantID, userID); err != nil {
		return models.SignalSet{}, err
	}
	now := s.clock.Now()

	history, err := s.sessions.ListByUser(ctx, tenantID, userID, false, now)
	if err != nil {
		return models.SignalSet{}, fmt.Errorf("failed to list sessions: %w", err)
	}

	var signals models.SignalSet
	activeIPs := map[string]struct{}{ip: {}}
	activeAgents := map[string]struct{}{userAgent: {}}
	seenIP, seenAgent, seenDevice := false, false, false
	device := deviceFamily(userAgent)

	for _, sess := range history {
		if sess.IsActive(now) {
			signals.ActiveSessions++
			activeIPs[sess.IPAddress] = struct{}{}
			activeAgents[sess.UserAgent] = struct{}{}
		}
		seenIP = seenIP || sess.IPAddress == ip
		seenAgent = seenAgent || sess.UserAgent == userAgent
		seenDevice = seenDevice || deviceFamily(sess.UserAgent) == device
	}

	signals.DistinctActiveIPs = sortedKeys(activeIPs)
	signals.DistinctActiveUserAgents = sortedKeys(activeAgents)
	signals.MultipleActiveIPs = len(activeIPs) > 1
	signals.MultipleActiveUserAgents = len(activeAgents) > 1
	// novelty needs something to compare with
	if len(history) > 0 {
		signals.NewIP = !seenIP
		signals.NewUserAgent = !seenAgent
		signals.NewDevice = !seenDevice
	}

	if signals.Any() {
		s.logger.Info("Suspicious activity signals",
			zap.String("user_id", userID.String()),
			zap.String("tenant_id", tenantID.String()),
			zap.Any("signals", signals))
	}
	return signals, nil
}

// PurgeLoginAttempts deletes ledger rows older than the given age.
func (s *SessionRegistry) PurgeLoginAttempts(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < s.lockout.Window {
		return 0, fmt.Errorf("retention %s is shorter than the lockout window %s: %w", olderThan, s.lockout.Window, domainErrors.ErrInvalidRequest)
	}
	n, err := s.attempts.DeleteOlderThan(ctx, s.clock.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge login attempts: %w", err)
	}
	return n, nil
}

// requireTenant refuses unscoped lookups loudly.
func (s *SessionRegistry) requireTenant(tenantID, subject uuid.UUID) error {
	if tenantID != uuid.Nil {
		return nil
	}
	metrics.UnscopedLookupsTotal.Inc()
	s.logger.Error("Refused session registry access without tenant scope",
		zap.String("subject_id", subject.String()),
		zap.Stack("stack"))
	return domainErrors.ErrTenantRequired
}

// deviceFamily reduces a user agent to browser and OS, e.g. "Firefox/Linux x86_64".
func deviceFamily(ua string) string {
	if ua == "" {
		return "unknown"
	}
	parsed := user_agent.New(ua)
	browser, _ := parsed.Browser()
	family := browser + "/" + parsed.OS()
	if parsed.Mobile() {
		family += "/mobile"
	}
	return family
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
