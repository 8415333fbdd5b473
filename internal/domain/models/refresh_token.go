// File: internal/domain/models/refresh_token.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one link of a session's rotation chain. Only the hash of
// the presented value is stored.
type RefreshToken struct {
	JTI           uuid.UUID  `json:"jti" db:"jti"`
	SessionID     uuid.UUID  `json:"session_id" db:"session_id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	TenantID      uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	TokenHash     string     `json:"-" db:"token_hash"`
	ExpiresAt     time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UsedAt        *time.Time `json:"used_at,omitempty" db:"used_at"`
	ReplacedByJTI *uuid.UUID `json:"replaced_by_jti,omitempty" db:"replaced_by_jti"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RevokedReason *string    `json:"revoked_reason,omitempty" db:"revoked_reason"`
}

// IsCurrent reports whether the token can still be exchanged.
func (t *RefreshToken) IsCurrent(now time.Time) bool {
	return t.UsedAt == nil && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
