// File: internal/domain/repository/postgres/audit_log_repository.go
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
)

// AuditLogRepositoryPostgres implements repository.AuditLogRepository
type AuditLogRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepositoryPostgres creates a new AuditLogRepositoryPostgres.
func NewAuditLogRepositoryPostgres(pool *pgxpool.Pool) *AuditLogRepositoryPostgres {
	return &AuditLogRepositoryPostgres{pool: pool}
}

func (r *AuditLogRepositoryPostgres) Create(ctx context.Context, e *models.AuditEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}
	query := `INSERT INTO audit_events
		(id, event_type, severity, user_id, tenant_id, session_id, ip_address, user_agent, success, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		e.ID, e.EventType, string(e.Severity), e.UserID, e.TenantID, e.SessionID,
		e.IPAddress, e.UserAgent, e.Success, metadata, e.CreatedAt,
	)
	return mapError(err, domainErrors.ErrNotFound, "failed to create audit event")
}

// List builds the WHERE clause from the filter. Ties on created_at keep
// insertion order through the seq column.
func (r *AuditLogRepositoryPostgres) List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditEvent, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.TenantID != nil {
		add("tenant_id = $%d", *filter.TenantID)
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.EventType != "" {
		add("event_type = $%d", filter.EventType)
	}
	if filter.Since != nil {
		add("created_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("created_at < $%d", *filter.Until)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	q := conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	query := `SELECT id, event_type, severity, user_id, tenant_id, session_id, ip_address, user_agent,
		success, metadata, created_at
		FROM audit_events` + where + ` ORDER BY created_at DESC, seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		e := &models.AuditEvent{}
		var (
			severity string
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &severity, &e.UserID, &e.TenantID, &e.SessionID,
			&e.IPAddress, &e.UserAgent, &e.Success, &metadata, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Severity = models.AuditSeverity(severity)
		if len(metadata) > 0 {
			e.Metadata = metadata
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return events, total, nil
}

var _ repository.AuditLogRepository = (*AuditLogRepositoryPostgres)(nil)
