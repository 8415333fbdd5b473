// File: internal/utils/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// LoginAttemptsTotal counts login outcomes by result
	// (success, mfa_challenge, invalid_credentials, locked, throttled, ...).
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_login_attempts_total",
		Help: "The total number of login attempts by result",
	}, []string{"result"})

	// MFAVerificationsTotal counts second-factor checks.
	MFAVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_mfa_verifications_total",
		Help: "The total number of MFA verifications by method and status",
	}, []string{"method", "status"})

	// TokenRefreshTotal счетчик обновлений токенов
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_token_refresh_total",
		Help: "The total number of token refreshes by result",
	}, []string{"result"})

	// TokenReplayDetectedTotal counts refresh token replays.
	TokenReplayDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authcore_token_replay_detected_total",
		Help: "The total number of refresh token replays detected",
	})

	// SessionsCreatedTotal counts opened sessions.
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authcore_sessions_created_total",
		Help: "The total number of sessions created",
	})

	// SessionsRevokedTotal counts revoked sessions by reason.
	SessionsRevokedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_sessions_revoked_total",
		Help: "The total number of sessions revoked by reason",
	}, []string{"reason"})

	// UnscopedLookupsTotal counts session lookups attempted without a tenant.
	UnscopedLookupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authcore_unscoped_session_lookups_total",
		Help: "The total number of session lookups attempted without tenant scope",
	})

	// AuditEventsTotal counts recorded audit events by type.
	AuditEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_audit_events_total",
		Help: "The total number of audit events recorded by type",
	}, []string{"event_type"})

	// AuditWriteFailuresTotal counts audit events that could not be recorded.
	AuditWriteFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_audit_write_failures_total",
		Help: "The total number of audit write failures by stage",
	}, []string{"stage"})

	// RetentionPurgedTotal counts rows removed by the retention worker.
	RetentionPurgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_retention_purged_total",
		Help: "The total number of rows purged by retention",
	}, []string{"kind"})

	// RateLimiterErrorsTotal counts throttle backend failures (the throttle fails open).
	// DirectoryEventsTotal counts consumed directory events by type and outcome.
	DirectoryEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_directory_events_total",
		Help: "The total number of consumed directory events by type and outcome",
	}, []string{"type", "outcome"})

	RateLimiterErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authcore_rate_limiter_errors_total",
		Help: "The total number of rate limiter backend errors",
	})
)
