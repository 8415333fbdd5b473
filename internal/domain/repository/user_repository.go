// File: internal/domain/repository/user_repository.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

// UserRepository is the credential store contract. The directory itself is
// owned elsewhere; this core reads users and records password changes.
type UserRepository interface {
	// FindByEmail looks a user up by normalized email within one tenant.
	// Returns domainErrors.ErrUserNotFound if absent.
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error)

	// FindByID returns domainErrors.ErrUserNotFound if absent.
	FindByID(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error)

	// UpdatePassword stores a new hash and marks the password as changed at changedAt.
	UpdatePassword(ctx context.Context, tenantID, userID uuid.UUID, passwordHash string, changedAt time.Time) error

	// RehashPassword swaps oldHash for newHash without marking a password
	// change. It reports false when the stored hash is no longer oldHash.
	RehashPassword(ctx context.Context, tenantID, userID uuid.UUID, oldHash, newHash string, at time.Time) (bool, error)
}
