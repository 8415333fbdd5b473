// File: internal/domain/repository/memory/user_repository.go
package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
)

// UserRepository is an in-memory credential store.
type UserRepository struct {
	s *Store
}

// Put inserts or replaces a user. The email is stored normalized.
func (r *UserRepository) Put(ctx context.Context, user *models.User) {
	defer r.s.lock(ctx)()
	u := *user
	u.Email = models.NormalizeEmail(u.Email)
	r.s.st.users[u.ID] = &u
}

func (r *UserRepository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*models.User, error) {
	defer r.s.lock(ctx)()
	email = models.NormalizeEmail(email)
	for _, u := range r.s.st.users {
		if u.TenantID == tenantID && u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, domainErrors.ErrUserNotFound
}

func (r *UserRepository) FindByID(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.st.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, domainErrors.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, tenantID, userID uuid.UUID, passwordHash string, changedAt time.Time) error {
	defer r.s.lock(ctx)()
	u, ok := r.s.st.users[userID]
	if !ok || u.TenantID != tenantID {
		return domainErrors.ErrUserNotFound
	}
	updated := *u
	updated.PasswordHash = passwordHash
	updated.PasswordChangedAt = &changedAt
	updated.UpdatedAt = changedAt
	r.s.st.users[userID] = &updated
	return nil
}

func (r *UserRepository) RehashPassword(ctx context.Context, tenantID, userID uuid.UUID, oldHash, newHash string, at time.Time) (bool, error) {
	defer r.s.lock(ctx)()
	u, ok := r.s.st.users[userID]
	if !ok || u.TenantID != tenantID {
		return false, domainErrors.ErrUserNotFound
	}
	if u.PasswordHash != oldHash {
		return false, nil
	}
	updated := *u
	updated.PasswordHash = newHash
	updated.UpdatedAt = at
	r.s.st.users[userID] = &updated
	return true, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
