// File: internal/domain/service/token_ledger.go
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/metrics"
)

// Refresh outcome label values
const (
	refreshResultSuccess  = "success"
	refreshResultInvalid  = "invalid"
	refreshResultRevoked  = "revoked"
	refreshResultReplay   = "replay"
	refreshResultExpired  = "session_expired"
	refreshResultInternal = "error"
)

// TokenLedgerConfig holds dependencies for TokenLedger.
type TokenLedgerConfig struct {
	Transactor    repository.Transactor
	Sessions      repository.SessionRepository
	RefreshTokens repository.RefreshTokenRepository
	Tokens        TokenManagementService
	Audit         *AuditLogService
	Clock         Clock
	Logger        *zap.Logger
}

// TokenLedger issues token pairs and rotates refresh tokens. Every refresh
// token is single use; presenting a consumed one revokes its session.
type TokenLedger struct {
	tx            repository.Transactor
	sessions      repository.SessionRepository
	refreshTokens repository.RefreshTokenRepository
	tokens        TokenManagementService
	audit         *AuditLogService
	clock         Clock
	logger        *zap.Logger
}

func NewTokenLedger(cfg TokenLedgerConfig) (*TokenLedger, error) {
	if cfg.Transactor == nil || cfg.Sessions == nil || cfg.RefreshTokens == nil || cfg.Tokens == nil || cfg.Audit == nil {
		return nil, errors.New("token ledger: transactor, repositories, token service and audit service are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &TokenLedger{
		tx:            cfg.Transactor,
		sessions:      cfg.Sessions,
		refreshTokens: cfg.RefreshTokens,
		tokens:        cfg.Tokens,
		audit:         cfg.Audit,
		clock:         cfg.Clock,
		logger:        cfg.Logger.Named("token_ledger"),
	}, nil
}

// Issue mints the first refresh token of a session and an access token.
func (l *TokenLedger) Issue(ctx context.Context, session *models.Session) (*models.TokenPair, error) {
	return l.mint(ctx, session, l.clock.Now(), nil)
}

// mint stores a new refresh token for the session and signs an access token.
// With consumed set, the old token is marked used first, inside the caller's transaction.
func (l *TokenLedger) mint(ctx context.Context, session *models.Session, now time.Time, consumed *uuid.UUID) (*models.TokenPair, error) {
	rt, err := l.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	if consumed != nil {
		ok, err := l.refreshTokens.MarkUsed(ctx, *consumed, now, rt.JTI)
		if err != nil {
			return nil, fmt.Errorf("failed to consume refresh token: %w", err)
		}
		if !ok {
			// unreachable while the row lock is held
			return nil, fmt.Errorf("%w: token consumed concurrently", domainErrors.ErrTokenReplayDetected)
		}
	}

	expiresAt := now.Add(l.tokens.RefreshTokenTTL())
	if session.ExpiresAt.Before(expiresAt) {
		expiresAt = session.ExpiresAt
	}
	err = l.refreshTokens.Create(ctx, &models.RefreshToken{
		JTI:       rt.JTI,
		SessionID: session.ID,
		UserID:    session.UserID,
		TenantID:  session.TenantID,
		TokenHash: rt.Hash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	access, accessExpiresAt, err := l.tokens.GenerateAccessToken(session.UserID, session.TenantID, session.ID)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     rt.Value,
		SessionID:        session.ID,
		ExpiresIn:        l.tokens.AccessTokenTTL(),
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: expiresAt,
	}, nil
}

// Rotate exchanges a refresh token for a new pair.
func (l *TokenLedger) Rotate(ctx context.Context, presented, ip, userAgent string) (*models.TokenPair, error) {
	jti, hash, err := l.tokens.ParseRefreshToken(presented)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(refreshResultInvalid).Inc()
		return nil, err
	}
	now := l.clock.Now()

	var (
		pair     *models.TokenPair
		session  *models.Session
		replayed *models.RefreshToken
	)
	err = l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		stored, err := l.refreshTokens.FindByJTIForUpdate(ctx, jti)
		if err != nil {
			if domainErrors.IsNotFound(err) {
				return domainErrors.ErrInvalidToken
			}
			return fmt.Errorf("failed to load refresh token: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(stored.TokenHash), []byte(hash)) != 1 {
			return domainErrors.ErrInvalidToken
		}

		if stored.UsedAt != nil {
			// commit the revocation; the error is reported after the transaction
			replayed = stored
			if _, err := l.sessions.Revoke(ctx, stored.TenantID, stored.SessionID, now, models.RevokeReasonTokenReplay); err != nil {
				return fmt.Errorf("failed to revoke replayed session: %w", err)
			}
			if _, err := l.refreshTokens.RevokeBySession(ctx, stored.TenantID, stored.SessionID, now, models.RevokeReasonTokenReplay); err != nil {
				return fmt.Errorf("failed to revoke replayed chain: %w", err)
			}
			return nil
		}

		if stored.RevokedAt != nil || !now.Before(stored.ExpiresAt) {
			return domainErrors.ErrTokenRevoked
		}

		session, err = l.sessions.FindByID(ctx, stored.TenantID, stored.SessionID)
		if err != nil {
			return err
		}
		if !session.IsActive(now) {
			return domainErrors.ErrSessionExpired
		}

		pair, err = l.mint(ctx, session, now, &stored.JTI)
		if err != nil {
			return err
		}
		if err := l.sessions.UpdateLastSeen(ctx, session.TenantID, session.ID, now); err != nil {
			return fmt.Errorf("failed to touch session: %w", err)
		}

		userID, sessionID := session.UserID, session.ID
		return l.audit.LogAction(ctx, &models.AuditEvent{
			EventType: models.AuditEventTokenRefreshed,
			UserID:    &userID,
			TenantID:  session.TenantID,
			SessionID: &sessionID,
			IPAddress: ip,
			UserAgent: userAgent,
			Success:   true,
		})
	})

	if err == nil && replayed != nil {
		return nil, l.reportReplay(ctx, replayed, ip, userAgent)
	}
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(refreshOutcome(err)).Inc()
		if refreshOutcome(err) == refreshResultInternal {
			l.logger.Error("Refresh token rotation failed", zap.Error(err), zap.String("jti", jti.String()))
		}
		return nil, err
	}

	metrics.TokenRefreshTotal.WithLabelValues(refreshResultSuccess).Inc()
	return pair, nil
}

func (l *TokenLedger) reportReplay(ctx context.Context, replayed *models.RefreshToken, ip, userAgent string) error {
	metrics.TokenRefreshTotal.WithLabelValues(refreshResultReplay).Inc()
	metrics.TokenReplayDetectedTotal.Inc()
	metrics.SessionsRevokedTotal.WithLabelValues(models.RevokeReasonTokenReplay).Inc()
	l.logger.Warn("Refresh token replay detected, session revoked",
		zap.String("jti", replayed.JTI.String()),
		zap.String("session_id", replayed.SessionID.String()),
		zap.String("user_id", replayed.UserID.String()),
		zap.String("ip", ip))

	userID, sessionID := replayed.UserID, replayed.SessionID
	auditErr := l.audit.LogAction(ctx, &models.AuditEvent{
		EventType: models.AuditEventTokenReplayDetected,
		Severity:  models.AuditSeverityCritical,
		UserID:    &userID,
		TenantID:  replayed.TenantID,
		SessionID: &sessionID,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   false,
		Metadata:  auditMetadata(map[string]interface{}{"jti": replayed.JTI.String()}),
	})
	if auditErr != nil {
		return fmt.Errorf("%w: %w", domainErrors.ErrTokenReplayDetected, auditErr)
	}
	return domainErrors.ErrTokenReplayDetected
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, domainErrors.ErrInvalidToken):
		return refreshResultInvalid
	case errors.Is(err, domainErrors.ErrTokenRevoked):
		return refreshResultRevoked
	case errors.Is(err, domainErrors.ErrTokenReplayDetected):
		return refreshResultReplay
	case errors.Is(err, domainErrors.ErrSessionExpired), errors.Is(err, domainErrors.ErrSessionNotFound):
		return refreshResultExpired
	default:
		return refreshResultInternal
	}
}

// RevokeRefreshToken revokes one token by id. Unknown and already revoked
// tokens are not an error.
func (l *TokenLedger) RevokeRefreshToken(ctx context.Context, jti uuid.UUID, reason string) error {
	return l.revoke(ctx, jti, "", reason)
}

// RevokeRefreshTokenValue revokes the token a client presents, e.g. on
// logout. A malformed value or a wrong secret is ignored.
func (l *TokenLedger) RevokeRefreshTokenValue(ctx context.Context, presented, reason string) error {
	jti, hash, err := l.tokens.ParseRefreshToken(presented)
	if err != nil {
		return nil
	}
	return l.revoke(ctx, jti, hash, reason)
}

func (l *TokenLedger) revoke(ctx context.Context, jti uuid.UUID, hash, reason string) error {
	var revoked *models.RefreshToken
	err := l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		stored, err := l.refreshTokens.FindByJTIForUpdate(ctx, jti)
		if err != nil {
			if domainErrors.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to load refresh token: %w", err)
		}
		if hash != "" && subtle.ConstantTimeCompare([]byte(stored.TokenHash), []byte(hash)) != 1 {
			return nil
		}
		changed, err := l.refreshTokens.Revoke(ctx, jti, l.clock.Now(), reason)
		if err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		if !changed {
			return nil
		}
		revoked = stored
		userID, sessionID := stored.UserID, stored.SessionID
		return l.audit.LogAction(ctx, &models.AuditEvent{
			EventType: models.AuditEventTokenRevoked,
			UserID:    &userID,
			TenantID:  stored.TenantID,
			SessionID: &sessionID,
			Success:   true,
			Metadata:  auditMetadata(map[string]interface{}{"jti": jti.String(), "reason": reason}),
		})
	})
	if err != nil {
		return err
	}
	if revoked != nil {
		l.logger.Info("Refresh token revoked", zap.String("jti", jti.String()), zap.String("reason", reason))
	}
	return nil
}

// RevokeAllUserTokens revokes every refresh token of the user. Sessions stay
// as they are.
func (l *TokenLedger) RevokeAllUserTokens(ctx context.Context, tenantID, userID uuid.UUID, reason string) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("revoke user tokens: %w", domainErrors.ErrTenantRequired)
	}
	n, err := l.refreshTokens.RevokeByUser(ctx, tenantID, userID, l.clock.Now(), reason)
	if err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	l.logger.Info("User refresh tokens revoked",
		zap.String("user_id", userID.String()),
		zap.Int64("count", n),
		zap.String("reason", reason))
	return nil
}

// PurgeExpired deletes tokens that expired more than olderThan ago.
func (l *TokenLedger) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := l.refreshTokens.DeleteExpiredBefore(ctx, l.clock.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired refresh tokens: %w", err)
	}
	return n, nil
}
