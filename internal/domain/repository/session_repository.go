// File: internal/domain/repository/session_repository.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

// SessionRepository stores sessions. Every method is tenant-scoped.
type SessionRepository interface {
	// Create persists a new session.
	Create(ctx context.Context, session *models.Session) error

	// FindByID returns domainErrors.ErrSessionNotFound if no session with that
	// ID exists in the tenant.
	FindByID(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.Session, error)

	// ListByUser returns the user's sessions, newest first. With activeOnly
	// set only sessions active at now are returned.
	ListByUser(ctx context.Context, tenantID, userID uuid.UUID, activeOnly bool, now time.Time) ([]*models.Session, error)

	// CountActive counts the user's sessions active at now.
	CountActive(ctx context.Context, tenantID, userID uuid.UUID, now time.Time) (int, error)

	// UpdateLastSeen bumps last_seen_at of a non-revoked session.
	UpdateLastSeen(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time) error

	// Revoke marks the session revoked if it is not already. It reports
	// whether a row changed.
	Revoke(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time, reason string) (bool, error)

	// RevokeAllByUser revokes every non-revoked session of the user except
	// the optional one and returns the IDs it revoked.
	RevokeAllByUser(ctx context.Context, tenantID, userID uuid.UUID, except *uuid.UUID, at time.Time, reason string) ([]uuid.UUID, error)
}
