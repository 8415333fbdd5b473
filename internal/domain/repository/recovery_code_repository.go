// File: internal/domain/repository/recovery_code_repository.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

// RecoveryCodeRepository stores hashed single-use recovery codes.
type RecoveryCodeRepository interface {
	// CreateMultiple persists a batch of codes.
	CreateMultiple(ctx context.Context, codes []*models.RecoveryCode) error

	// ListUnused returns the user's codes that were never consumed.
	ListUnused(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.RecoveryCode, error)

	// MarkUsed consumes a code only if it is unused and reports whether this call consumed it.
	MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error)

	// DeleteByUserID removes every code of the user and returns how many.
	DeleteByUserID(ctx context.Context, tenantID, userID uuid.UUID) (int64, error)
}
