// File: internal/domain/models/login_attempt.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LoginAttemptKind tells which step produced a ledger row.
type LoginAttemptKind string

const (
	LoginAttemptKindPassword   LoginAttemptKind = "password"
	LoginAttemptKindMFA        LoginAttemptKind = "mfa"
	LoginAttemptKindAdminReset LoginAttemptKind = "admin_reset"
)

// LoginAttempt is an append-only ledger row keyed by (email, tenant).
type LoginAttempt struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Email     string           `json:"email" db:"email"`
	TenantID  uuid.UUID        `json:"tenant_id" db:"tenant_id"`
	Success   bool             `json:"success" db:"success"`
	Kind      LoginAttemptKind `json:"kind" db:"kind"`
	IPAddress string           `json:"ip_address" db:"ip_address"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`

	// ChallengeID is the jti of the MFA challenge a successful mfa row consumed.
	ChallengeID *uuid.UUID `json:"challenge_id,omitempty" db:"challenge_id"`
}

// LockoutStatus is derived from the attempt ledger on every check.
type LockoutStatus struct {
	Locked              bool      `json:"locked"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Until               time.Time `json:"until,omitempty"`
}
