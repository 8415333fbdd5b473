// File: internal/domain/repository/memory/audit_log_repository.go
package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
)

// AuditLogRepository is an in-memory audit store.
type AuditLogRepository struct {
	s *Store
}

func (r *AuditLogRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	defer r.s.lock(ctx)()
	e := *event
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.s.st.audit = append(r.s.st.audit, &e)
	return nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditEvent, int, error) {
	defer r.s.lock(ctx)()
	var matched []*models.AuditEvent
	for i := len(r.s.st.audit) - 1; i >= 0; i-- {
		e := r.s.st.audit[i]
		if !matchesAuditFilter(e, filter) {
			continue
		}
		c := *e
		matched = append(matched, &c)
	}
	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*models.AuditEvent{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func matchesAuditFilter(e *models.AuditEvent, f models.AuditLogFilter) bool {
	if f.TenantID != nil && e.TenantID != *f.TenantID {
		return false
	}
	if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !e.CreatedAt.Before(*f.Until) {
		return false
	}
	return true
}

var _ repository.AuditLogRepository = (*AuditLogRepository)(nil)
