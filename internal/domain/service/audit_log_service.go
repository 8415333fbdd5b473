// File: internal/domain/service/audit_log_service.go
package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/metrics"
)

// ExportFormat selects the encoding of ExportAuditLogs.
type ExportFormat string

const (
	ExportFormatJSONL ExportFormat = "jsonl"
	ExportFormatCSV   ExportFormat = "csv"
)

const (
	auditStageStore   = "store"
	auditStagePublish = "publish"

	exportPageSize = 500
)

// CloudEvents type prefix of forwarded audit events.
const auditCloudEventPrefix = "authcore.audit."

var csvHeader = []string{
	"id", "created_at", "tenant_id", "user_id", "session_id", "event_type",
	"severity", "success", "ip_address", "user_agent", "metadata",
}

// AuditLogService records security events. A failed write is never
// swallowed: callers get ErrAuditWriteFailed back.
type AuditLogService struct {
	repo      repository.AuditLogRepository
	publisher EventPublisher
	clock     Clock
	logger    *zap.Logger
}

// NewAuditLogService: publisher may be nil when no event stream is configured.
func NewAuditLogService(repo repository.AuditLogRepository, publisher EventPublisher, clock Clock, logger *zap.Logger) *AuditLogService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AuditLogService{
		repo:      repo,
		publisher: publisher,
		clock:     clock,
		logger:    logger.Named("audit_log_service"),
	}
}

// LogAction stores the event and then forwards it to the event stream.
func (s *AuditLogService) LogAction(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.clock.Now()
	}
	if event.Severity == "" {
		event.Severity = models.AuditSeverityInfo
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return s.writeFailed(auditStageStore, event, err)
	}
	metrics.AuditEventsTotal.WithLabelValues(event.EventType).Inc()

	if s.publisher != nil {
		if err := s.publisher.PublishCloudEvent(ctx, auditCloudEventPrefix+event.EventType, event.TenantID.String(), event); err != nil {
			return s.writeFailed(auditStagePublish, event, err)
		}
	}
	return nil
}

func (s *AuditLogService) writeFailed(stage string, event *models.AuditEvent, err error) error {
	metrics.AuditWriteFailuresTotal.WithLabelValues(stage).Inc()
	// DPanic: loudest level that does not terminate outside development builds
	s.logger.DPanic("Audit event could not be recorded",
		zap.String("stage", stage),
		zap.String("event_type", event.EventType),
		zap.String("event_id", event.ID.String()),
		zap.String("tenant_id", event.TenantID.String()),
		zap.Error(err),
		zap.Stack("stack"),
	)
	return fmt.Errorf("%w: %w", domainErrors.ErrAuditWriteFailed, err)
}

func (s *AuditLogService) checkScope(filter models.AuditLogFilter) error {
	if filter.TenantID != nil {
		return nil
	}
	if filter.AllTenants {
		s.logger.Warn("Cross-tenant audit query",
			zap.Stringp("event_type", nonEmpty(filter.EventType)),
			zap.Int("limit", filter.Limit))
		return nil
	}
	return fmt.Errorf("audit query without tenant: %w", domainErrors.ErrTenantRequired)
}

// GetAuditLogs returns one page of matching events, newest first, and the total count.
func (s *AuditLogService) GetAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditEvent, int, error) {
	if err := s.checkScope(filter); err != nil {
		return nil, 0, err
	}
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list audit logs from repository", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return events, total, nil
}

// ExportAuditLogs streams every matching event to w and returns how many
// were written. Limit and Offset of the filter are ignored.
func (s *AuditLogService) ExportAuditLogs(ctx context.Context, filter models.AuditLogFilter, w io.Writer, format ExportFormat) (int, error) {
	if err := s.checkScope(filter); err != nil {
		return 0, err
	}

	var write func(*models.AuditEvent) error
	var flush func() error
	switch format {
	case ExportFormatJSONL:
		enc := json.NewEncoder(w)
		write = func(e *models.AuditEvent) error { return enc.Encode(e) }
		flush = func() error { return nil }
	case ExportFormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return 0, fmt.Errorf("failed to write csv header: %w", err)
		}
		write = func(e *models.AuditEvent) error { return cw.Write(csvRecord(e)) }
		flush = func() error { cw.Flush(); return cw.Error() }
	default:
		return 0, fmt.Errorf("unsupported export format %q: %w", format, domainErrors.ErrInvalidRequest)
	}

	// freeze the upper bound so pages do not shift while new events arrive
	if filter.Until == nil {
		until := s.clock.Now().Add(time.Nanosecond)
		filter.Until = &until
	}
	filter.Limit = exportPageSize

	written := 0
	for offset := 0; ; offset += exportPageSize {
		filter.Offset = offset
		page, _, err := s.repo.List(ctx, filter)
		if err != nil {
			return written, fmt.Errorf("failed to read audit page at offset %d: %w", offset, err)
		}
		for _, e := range page {
			if err := write(e); err != nil {
				return written, fmt.Errorf("failed to write audit event %s: %w", e.ID, err)
			}
			written++
		}
		if len(page) < exportPageSize {
			break
		}
	}
	if err := flush(); err != nil {
		return written, fmt.Errorf("failed to flush export: %w", err)
	}

	s.logger.Info("Audit log exported",
		zap.String("format", string(format)),
		zap.Int("events", written),
		zap.Bool("all_tenants", filter.TenantID == nil))
	return written, nil
}

func csvRecord(e *models.AuditEvent) []string {
	optional := func(id *uuid.UUID) string {
		if id == nil {
			return ""
		}
		return id.String()
	}
	return []string{
		e.ID.String(),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.TenantID.String(),
		optional(e.UserID),
		optional(e.SessionID),
		e.EventType,
		string(e.Severity),
		strconv.FormatBool(e.Success),
		e.IPAddress,
		e.UserAgent,
		string(e.Metadata),
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// auditMetadata marshals a small metadata map; a marshal failure degrades to no metadata.
func auditMetadata(fields map[string]interface{}) json.RawMessage {
	if len(fields) == 0 {
		return nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return b
}
