// File: internal/domain/repository/mfa_secret_repository.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

// MFASecretRepository stores one encrypted TOTP secret per user.
type MFASecretRepository interface {
	// FindByUserID returns domainErrors.ErrNotFound if the user has no secret.
	FindByUserID(ctx context.Context, tenantID, userID uuid.UUID) (*models.MFASecret, error)

	// UpsertPending stores a new pending secret, replacing a pending one.
	// It returns domainErrors.ErrMFAAlreadyEnabled if an enabled secret exists.
	UpsertPending(ctx context.Context, secret *models.MFASecret) error

	// Enable flips a pending secret to enabled and reports whether it did.
	Enable(ctx context.Context, tenantID, userID uuid.UUID, at time.Time) (bool, error)

	// Delete removes the user's secret. Missing rows are not an error.
	Delete(ctx context.Context, tenantID, userID uuid.UUID) error
}
