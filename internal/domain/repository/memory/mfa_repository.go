// File: internal/domain/repository/memory/mfa_repository.go
package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
)

// MFASecretRepository is an in-memory secret store.
type MFASecretRepository struct {
	s *Store
}

func (r *MFASecretRepository) FindByUserID(ctx context.Context, tenantID, userID uuid.UUID) (*models.MFASecret, error) {
	defer r.s.lock(ctx)()
	sec, ok := r.s.st.secrets[userID]
	if !ok || sec.TenantID != tenantID {
		return nil, domainErrors.ErrNotFound
	}
	c := *sec
	return &c, nil
}

func (r *MFASecretRepository) UpsertPending(ctx context.Context, secret *models.MFASecret) error {
	defer r.s.lock(ctx)()
	if existing, ok := r.s.st.secrets[secret.UserID]; ok && existing.Enabled {
		return domainErrors.ErrMFAAlreadyEnabled
	}
	c := *secret
	c.Enabled = false
	c.EnabledAt = nil
	r.s.st.secrets[c.UserID] = &c
	return nil
}

func (r *MFASecretRepository) Enable(ctx context.Context, tenantID, userID uuid.UUID, at time.Time) (bool, error) {
	defer r.s.lock(ctx)()
	sec, ok := r.s.st.secrets[userID]
	if !ok || sec.TenantID != tenantID || sec.Enabled {
		return false, nil
	}
	c := *sec
	c.Enabled = true
	c.EnabledAt = &at
	c.UpdatedAt = at
	r.s.st.secrets[userID] = &c
	return true, nil
}

func (r *MFASecretRepository) Delete(ctx context.Context, tenantID, userID uuid.UUID) error {
	defer r.s.lock(ctx)()
	if sec, ok := r.s.st.secrets[userID]; ok && sec.TenantID == tenantID {
		delete(r.s.st.secrets, userID)
	}
	return nil
}

// RecoveryCodeRepository is an in-memory recovery code store.
type RecoveryCodeRepository struct {
	s *Store
}

func (r *RecoveryCodeRepository) CreateMultiple(ctx context.Context, codes []*models.RecoveryCode) error {
	defer r.s.lock(ctx)()
	for _, code := range codes {
		c := *code
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		r.s.st.codes[c.ID] = &c
	}
	return nil
}

func (r *RecoveryCodeRepository) ListUnused(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.RecoveryCode, error) {
	defer r.s.lock(ctx)()
	var out []*models.RecoveryCode
	for _, code := range r.s.st.codes {
		if code.TenantID == tenantID && code.UserID == userID && code.UsedAt == nil {
			c := *code
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *RecoveryCodeRepository) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	defer r.s.lock(ctx)()
	code, ok := r.s.st.codes[id]
	if !ok || code.UsedAt != nil {
		return false, nil
	}
	c := *code
	c.UsedAt = &usedAt
	r.s.st.codes[id] = &c
	return true, nil
}

func (r *RecoveryCodeRepository) DeleteByUserID(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	defer r.s.lock(ctx)()
	var n int64
	for id, code := range r.s.st.codes {
		if code.TenantID == tenantID && code.UserID == userID {
			delete(r.s.st.codes, id)
			n++
		}
	}
	return n, nil
}

var (
	_ repository.MFASecretRepository    = (*MFASecretRepository)(nil)
	_ repository.RecoveryCodeRepository = (*RecoveryCodeRepository)(nil)
)
