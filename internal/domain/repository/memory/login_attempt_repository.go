// File: internal/domain/repository/memory/login_attempt_repository.go
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

// LoginAttemptRepository is an in-memory attempt ledger.
type LoginAttemptRepository struct {
	s *Store
}

func (r *LoginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	defer r.s.lock(ctx)()
	a := *attempt
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.ChallengeID != nil {
		if r.challengeConsumed(a.TenantID, *a.ChallengeID) {
			return domainErrors.ErrDuplicateValue
		}
		id := *a.ChallengeID
		a.ChallengeID = &id
	}
	r.s.st.attempts = append(r.s.st.attempts, &a)
	return nil
}

func (r *LoginAttemptRepository) ChallengeConsumed(ctx context.Context, tenantID, challengeID uuid.UUID) (bool, error) {
	defer r.s.lock(ctx)()
	return r.challengeConsumed(tenantID, challengeID), nil
}

func (r *LoginAttemptRepository) challengeConsumed(tenantID, challengeID uuid.UUID) bool {
	for _, a := range r.s.st.attempts {
		if a.TenantID == tenantID && a.ChallengeID != nil && *a.ChallengeID == challengeID {
			return true
		}
	}
	return false
}

func (r *LoginAttemptRepository) ListSince(ctx context.Context, tenantID uuid.UUID, email string, since time.Time, limit int) ([]*models.LoginAttempt, error) {
	defer r.s.lock(ctx)()
	email = models.NormalizeEmail(email)
	var out []*models.LoginAttempt
	// Walk backwards so rows with equal timestamps stay newest-first after the stable sort.
	for i := len(r.s.st.attempts) - 1; i >= 0; i-- {
		a := r.s.st.attempts[i]
		if a.TenantID == tenantID && a.Email == email && a.CreatedAt.After(since) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	kept := r.s.st.attempts[:0:0]
	var deleted int64
	for _, a := range r.s.st.attempts {
		if a.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	r.s.st.attempts = kept
	return deleted, nil
}

var _ repository.LoginAttemptRepository = (*LoginAttemptRepository)(nil)
