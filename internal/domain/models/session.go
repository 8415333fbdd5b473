// File: internal/domain/models/session.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Session revocation reasons
const (
	RevokeReasonLogout         = "logout"
	RevokeReasonLogoutAll      = "logout_all"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonTokenReplay    = "token_replay"
	RevokeReasonAdmin          = "admin"
	RevokeReasonRotated        = "rotated"
	RevokeReasonUserDisabled   = "user_disabled"
)

// Session is the durable record of one authenticated client. Sessions are
// never deleted, only marked revoked.
type Session struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	TenantID      uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	IPAddress     string     `json:"ip_address" db:"ip_address"`
	UserAgent     string     `json:"user_agent" db:"user_agent"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	LastSeenAt    time.Time  `json:"last_seen_at" db:"last_seen_at"`
	ExpiresAt     time.Time  `json:"expires_at" db:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RevokedReason *string    `json:"revoked_reason,omitempty" db:"revoked_reason"`
}

// IsActive reports whether the session is neither revoked nor past its absolute TTL.
func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// CreateSessionParams carries what the registry needs to open a session.
type CreateSessionParams struct {
	UserID    uuid.UUID
	TenantID  uuid.UUID
	IPAddress string
	UserAgent string
}

// SignalSet is the result of suspicious-activity detection. It carries
// facts only; acting on them is up to the caller.
type SignalSet struct {
	ActiveSessions           int      `json:"active_sessions"`
	DistinctActiveIPs        []string `json:"distinct_active_ips,omitempty"`
	DistinctActiveUserAgents []string `json:"distinct_active_user_agents,omitempty"`
	MultipleActiveIPs        bool     `json:"multiple_active_ips"`
	MultipleActiveUserAgents bool     `json:"multiple_active_user_agents"`
	NewIP                    bool     `json:"new_ip"`
	NewUserAgent             bool     `json:"new_user_agent"`
	NewDevice                bool     `json:"new_device"`
}

// Any reports whether at least one signal fired.
func (s SignalSet) Any() bool {
	return s.MultipleActiveIPs || s.MultipleActiveUserAgents || s.NewIP || s.NewUserAgent || s.NewDevice
}
