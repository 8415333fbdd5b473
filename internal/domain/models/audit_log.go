// File: internal/domain/models/audit_log.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditSeverity ranks audit events for downstream alerting.
type AuditSeverity string

const (
	AuditSeverityInfo     AuditSeverity = "info"
	AuditSeverityWarning  AuditSeverity = "warning"
	AuditSeverityCritical AuditSeverity = "critical"
)

// Audit event types
const (
	AuditEventLoginSuccess        = "login_success"
	AuditEventLoginFailed         = "login_failed"
	AuditEventLoginLocked         = "login_locked"
	AuditEventLoginThrottled      = "login_throttled"
	AuditEventLoginMFAChallenge   = "login_mfa_challenge"
	AuditEventMFALoginFailed      = "mfa_login_failed"
	AuditEventMFATenantMismatch   = "mfa_tenant_mismatch"
	AuditEventMFAChallengeReused  = "mfa_challenge_reused"
	AuditEventTokenRefreshed      = "token_refreshed"
	AuditEventTokenReplayDetected = "token_replay_detected"
	AuditEventTokenRevoked        = "token_revoked"
	AuditEventLogout              = "logout"
	AuditEventLogoutAll           = "logout_all"
	AuditEventSessionTerminated   = "session_terminated"
	AuditEventPasswordChanged     = "password_changed"
	AuditEventLockoutReset        = "lockout_reset"
	AuditEventMFASetupInitiated   = "mfa_setup_initiated"
	AuditEventMFAEnabled          = "mfa_enabled"
	AuditEventMFADisabled         = "mfa_disabled"
	AuditEventMFAVerifyFailed     = "mfa_verify_failed"
	AuditEventRecoveryCodeUsed    = "mfa_recovery_code_used"
	AuditEventRecoveryCodesReset  = "mfa_recovery_codes_regenerated"
	AuditEventAuditExported       = "audit_exported"
)

// AuditEvent is an append-only security event.
type AuditEvent struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	EventType string          `json:"event_type" db:"event_type"`
	Severity  AuditSeverity   `json:"severity" db:"severity"`
	UserID    *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	TenantID  uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	SessionID *uuid.UUID      `json:"session_id,omitempty" db:"session_id"`
	IPAddress string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string          `json:"user_agent,omitempty" db:"user_agent"`
	Success   bool            `json:"success" db:"success"`
	Metadata  json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// AuditLogFilter selects audit events. Either TenantID must be set or
// AllTenants must be set explicitly; an empty filter is rejected.
type AuditLogFilter struct {
	TenantID   *uuid.UUID
	AllTenants bool
	UserID     *uuid.UUID
	EventType  string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}
