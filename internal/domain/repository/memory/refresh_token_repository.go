// File: internal/domain/repository/memory/refresh_token_repository.go
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
)

// RefreshTokenRepository is an in-memory token ledger.
type RefreshTokenRepository struct {
	s *Store
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	defer r.s.lock(ctx)()
	if _, exists := r.s.st.tokens[token.JTI]; exists {
		return domainErrors.ErrDuplicateValue
	}
	c := *token
	r.s.st.tokens[c.JTI] = &c
	return nil
}

// FindByJTIForUpdate needs no row lock here: a transaction already holds
// the store mutex.
func (r *RefreshTokenRepository) FindByJTIForUpdate(ctx context.Context, jti uuid.UUID) (*models.RefreshToken, error) {
	defer r.s.lock(ctx)()
	t, ok := r.s.st.tokens[jti]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *RefreshTokenRepository) MarkUsed(ctx context.Context, jti uuid.UUID, usedAt time.Time, replacedBy uuid.UUID) (bool, error) {
	defer r.s.lock(ctx)()
	t, ok := r.s.st.tokens[jti]
	if !ok || t.UsedAt != nil || t.RevokedAt != nil {
		return false, nil
	}
	c := *t
	c.UsedAt = &usedAt
	c.ReplacedByJTI = &replacedBy
	r.s.st.tokens[jti] = &c
	return true, nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, jti uuid.UUID, at time.Time, reason string) (bool, error) {
	defer r.s.lock(ctx)()
	t, ok := r.s.st.tokens[jti]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	r.s.st.tokens[jti] = revokedToken(t, at, reason)
	return true, nil
}

func (r *RefreshTokenRepository) RevokeBySession(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time, reason string) (int64, error) {
	defer r.s.lock(ctx)()
	var n int64
	for jti, t := range r.s.st.tokens {
		if t.TenantID == tenantID && t.SessionID == sessionID && t.RevokedAt == nil {
			r.s.st.tokens[jti] = revokedToken(t, at, reason)
			n++
		}
	}
	return n, nil
}

func (r *RefreshTokenRepository) RevokeByUser(ctx context.Context, tenantID, userID uuid.UUID, at time.Time, reason string) (int64, error) {
	defer r.s.lock(ctx)()
	var n int64
	for jti, t := range r.s.st.tokens {
		if t.TenantID == tenantID && t.UserID == userID && t.RevokedAt == nil {
			r.s.st.tokens[jti] = revokedToken(t, at, reason)
			n++
		}
	}
	return n, nil
}

func (r *RefreshTokenRepository) ListBySession(ctx context.Context, tenantID, sessionID uuid.UUID) ([]*models.RefreshToken, error) {
	defer r.s.lock(ctx)()
	var out []*models.RefreshToken
	for _, t := range r.s.st.tokens {
		if t.TenantID == tenantID && t.SessionID == sessionID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *RefreshTokenRepository) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	var n int64
	for jti, t := range r.s.st.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.s.st.tokens, jti)
			n++
		}
	}
	return n, nil
}

func revokedToken(t *models.RefreshToken, at time.Time, reason string) *models.RefreshToken {
	c := *t
	c.RevokedAt = &at
	c.RevokedReason = &reason
	return &c
}

var _ repository.RefreshTokenRepository = (*RefreshTokenRepository)(nil)
