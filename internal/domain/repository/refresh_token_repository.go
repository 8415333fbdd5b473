// File: internal/domain/repository/refresh_token_repository.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

// RefreshTokenRepository stores the rotation chains.
type RefreshTokenRepository interface {
	// Create persists a new refresh token.
	Create(ctx context.Context, token *models.RefreshToken) error

	// FindByJTIForUpdate loads a token and, inside a transaction, locks its
	// row until commit. Returns domainErrors.ErrNotFound if absent.
	FindByJTIForUpdate(ctx context.Context, jti uuid.UUID) (*models.RefreshToken, error)

	// MarkUsed consumes the token only if it is still unused and unrevoked.
	// It reports whether this call consumed it.
	MarkUsed(ctx context.Context, jti uuid.UUID, usedAt time.Time, replacedBy uuid.UUID) (bool, error)

	// Revoke marks one token revoked if it is not already. Unknown tokens are
	// not an error; the bool reports whether a row changed.
	Revoke(ctx context.Context, jti uuid.UUID, at time.Time, reason string) (bool, error)

	// RevokeBySession revokes every unrevoked token of a session.
	RevokeBySession(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time, reason string) (int64, error)

	// RevokeByUser revokes every unrevoked token of a user.
	RevokeByUser(ctx context.Context, tenantID, userID uuid.UUID, at time.Time, reason string) (int64, error)

	// ListBySession returns a session's chain, oldest first.
	ListBySession(ctx context.Context, tenantID, sessionID uuid.UUID) ([]*models.RefreshToken, error)

	// DeleteExpiredBefore purges tokens whose expiry is before the cutoff.
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}
