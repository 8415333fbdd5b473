// File: internal/domain/repository/memory/session_repository.go
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

// SessionRepository is an in-memory session store.
type SessionRepository struct {
	s *Store
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	defer r.s.lock(ctx)()
	if _, exists := r.s.st.sessions[session.ID]; exists {
		return domainErrors.ErrDuplicateValue
	}
	c := *session
	r.s.st.sessions[c.ID] = &c
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, tenantID, sessionID uuid.UUID) (*models.Session, error) {
	defer r.s.lock(ctx)()
	sess, ok := r.s.st.sessions[sessionID]
	if !ok || sess.TenantID != tenantID {
		return nil, domainErrors.ErrSessionNotFound
	}
	c := *sess
	return &c, nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, tenantID, userID uuid.UUID, activeOnly bool, now time.Time) ([]*models.Session, error) {
	defer r.s.lock(ctx)()
	var out []*models.Session
	for _, sess := range r.s.st.sessions {
		if sess.TenantID != tenantID || sess.UserID != userID {
			continue
		}
		if activeOnly && !sess.IsActive(now) {
			continue
		}
		c := *sess
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *SessionRepository) CountActive(ctx context.Context, tenantID, userID uuid.UUID, now time.Time) (int, error) {
	defer r.s.lock(ctx)()
	n := 0
	for _, sess := range r.s.st.sessions {
		if sess.TenantID == tenantID && sess.UserID == userID && sess.IsActive(now) {
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) UpdateLastSeen(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time) error {
	defer r.s.lock(ctx)()
	sess, ok := r.s.st.sessions[sessionID]
	if !ok || sess.TenantID != tenantID || sess.RevokedAt != nil {
		return domainErrors.ErrSessionNotFound
	}
	c := *sess
	c.LastSeenAt = at
	r.s.st.sessions[sessionID] = &c
	return nil
}

func (r *SessionRepository) Revoke(ctx context.Context, tenantID, sessionID uuid.UUID, at time.Time, reason string) (bool, error) {
	defer r.s.lock(ctx)()
	sess, ok := r.s.st.sessions[sessionID]
	if !ok || sess.TenantID != tenantID || sess.RevokedAt != nil {
		return false, nil
	}
	r.s.st.sessions[sessionID] = revokedSession(sess, at, reason)
	return true, nil
}

func (r *SessionRepository) RevokeAllByUser(ctx context.Context, tenantID, userID uuid.UUID, except *uuid.UUID, at time.Time, reason string) ([]uuid.UUID, error) {
	defer r.s.lock(ctx)()
	var revoked []uuid.UUID
	for id, sess := range r.s.st.sessions {
		if sess.TenantID != tenantID || sess.UserID != userID || sess.RevokedAt != nil {
			continue
		}
		if except != nil && *except == id {
			continue
		}
		r.s.st.sessions[id] = revokedSession(sess, at, reason)
		revoked = append(revoked, id)
	}
	return revoked, nil
}

func revokedSession(sess *models.Session, at time.Time, reason string) *models.Session {
	c := *sess
	c.RevokedAt = &at
	c.RevokedReason = &reason
	return &c
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
