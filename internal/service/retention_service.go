// File: internal/service/retention_service.go

// Package service holds the background workers that sit beside the domain
// services.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/metrics"
)

// LoginAttemptPurger is satisfied by *service.SessionRegistry.
type LoginAttemptPurger interface {
	PurgeLoginAttempts(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ExpiredTokenPurger is satisfied by *service.TokenLedger.
type ExpiredTokenPurger interface {
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RetentionService periodically deletes expired ledger rows. Sessions and
// audit events are never touched.
type RetentionService struct {
	attempts LoginAttemptPurger
	tokens   ExpiredTokenPurger
	cfg      config.RetentionConfig
	logger   *zap.Logger
}

// NewRetentionService создает воркер очистки.
func NewRetentionService(attempts LoginAttemptPurger, tokens ExpiredTokenPurger, cfg config.RetentionConfig, logger *zap.Logger) (*RetentionService, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("retention interval must be positive, got %s", cfg.Interval)
	}
	return &RetentionService{
		attempts: attempts,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger.Named("retention"),
	}, nil
}

// RunOnce performs a single purge pass. Both purges run even if the first fails.
func (s *RetentionService) RunOnce(ctx context.Context) error {
	var errs []error

	n, err := s.attempts.PurgeLoginAttempts(ctx, s.cfg.LoginAttempts)
	if err != nil {
		errs = append(errs, fmt.Errorf("login attempts: %w", err))
	} else {
		metrics.RetentionPurgedTotal.WithLabelValues("login_attempts").Add(float64(n))
	}

	m, err := s.tokens.PurgeExpired(ctx, s.cfg.ExpiredTokens)
	if err != nil {
		errs = append(errs, fmt.Errorf("refresh tokens: %w", err))
	} else {
		metrics.RetentionPurgedTotal.WithLabelValues("refresh_tokens").Add(float64(m))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("Retention pass completed",
		zap.Int64("login_attempts", n),
		zap.Int64("refresh_tokens", m))
	return nil
}

// Run purges immediately and then on every tick until ctx is cancelled.
// Pass failures are logged; the loop keeps going.
func (s *RetentionService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Retention pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("Retention worker stopped")
			return
		case <-ticker.C:
		}
	}
}
