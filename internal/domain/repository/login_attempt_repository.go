// File: internal/domain/repository/login_attempt_repository.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

// LoginAttemptRepository is the append-only attempt ledger.
type LoginAttemptRepository interface {
	// Create appends an attempt. A second row with the same (tenant,
	// ChallengeID) fails with ErrDuplicateValue.
	Create(ctx context.Context, attempt *models.LoginAttempt) error

	// ChallengeConsumed reports whether a row already carries challengeID.
	ChallengeConsumed(ctx context.Context, tenantID, challengeID uuid.UUID) (bool, error)

	// ListSince returns the attempts for (email, tenant) created after since,
	// newest first, at most limit rows.
	ListSince(ctx context.Context, tenantID uuid.UUID, email string, since time.Time, limit int) ([]*models.LoginAttempt, error)

	// DeleteOlderThan purges attempts created before the cutoff.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
