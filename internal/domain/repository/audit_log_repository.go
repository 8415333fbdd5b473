// File: internal/domain/repository/audit_log_repository.go
package repository

import (
	"context"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
)

// AuditLogRepository is the append-only audit store.
type AuditLogRepository interface {
	// Create appends an audit event.
	Create(ctx context.Context, event *models.AuditEvent) error

	// List returns matching events, newest first, and the total count
	// ignoring Limit/Offset. Tenant scoping is the caller's obligation.
	List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditEvent, int, error)
}
