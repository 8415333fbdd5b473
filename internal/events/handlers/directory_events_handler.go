// File: internal/events/handlers/directory_events_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
	"github.com/ruther77/MassaCorp-sub001/internal/events/kafka"
	eventModels "github.com/ruther77/MassaCorp-sub001/internal/events/models"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/logger"
)

// Event types published by the user directory and the admin console.
const (
	EventUserDeactivated   = "directory.user.deactivated.v1"
	EventUserDeleted       = "directory.user.deleted.v1"
	EventUserPasswordReset = "directory.user.password_reset.v1"
	EventAdminForceLogout  = "admin.user.force_logout.v1"
)

// DirectoryUserPayload is the data of every directory user event.
type DirectoryUserPayload struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	ActorID  string `json:"actor_id,omitempty"`
}

// SessionTerminator revokes a user's sessions together with their refresh tokens.
type SessionTerminator interface {
	TerminateAllSessions(ctx context.Context, tenantID, userID uuid.UUID, except *uuid.UUID, reason string) (int, error)
}

// TokenRevoker revokes refresh tokens left outside any active session.
type TokenRevoker interface {
	RevokeAllUserTokens(ctx context.Context, tenantID, userID uuid.UUID, reason string) error
}

// AuditRecorder records security events.
type AuditRecorder interface {
	LogAction(ctx context.Context, event *models.AuditEvent) error
}

// Registrar принимает обработчики по типу события.
type Registrar interface {
	RegisterHandler(eventType string, handler kafka.EventHandler)
}

// DirectoryEventsHandler terminates sessions when the directory reports that
// a user may no longer hold them.
type DirectoryEventsHandler struct {
	tx       repository.Transactor
	sessions SessionTerminator
	tokens   TokenRevoker
	audit    AuditRecorder
	logger   *zap.Logger
}

// NewDirectoryEventsHandler creates a new DirectoryEventsHandler.
func NewDirectoryEventsHandler(
	tx repository.Transactor,
	sessions SessionTerminator,
	tokens TokenRevoker,
	audit AuditRecorder,
	logger *zap.Logger,
) *DirectoryEventsHandler {
	return &DirectoryEventsHandler{
		tx:       tx,
		sessions: sessions,
		tokens:   tokens,
		audit:    audit,
		logger:   logger.Named("directory_events"),
	}
}

// Register wires every handled event type into r.
func (h *DirectoryEventsHandler) Register(r Registrar) {
	r.RegisterHandler(EventUserDeactivated, h.HandleUserDeactivated)
	r.RegisterHandler(EventUserDeleted, h.HandleUserDeleted)
	r.RegisterHandler(EventUserPasswordReset, h.HandleUserPasswordReset)
	r.RegisterHandler(EventAdminForceLogout, h.HandleAdminForceLogout)
}

// HandleUserDeactivated handles directory.user.deactivated.v1.
func (h *DirectoryEventsHandler) HandleUserDeactivated(ctx context.Context, event eventModels.CloudEvent) error {
	return h.terminate(ctx, event, models.RevokeReasonUserDisabled)
}

// HandleUserDeleted handles directory.user.deleted.v1.
func (h *DirectoryEventsHandler) HandleUserDeleted(ctx context.Context, event eventModels.CloudEvent) error {
	return h.terminate(ctx, event, models.RevokeReasonUserDisabled)
}

// HandleUserPasswordReset handles directory.user.password_reset.v1. A reset
// done outside this service invalidates every session, the caller's included.
func (h *DirectoryEventsHandler) HandleUserPasswordReset(ctx context.Context, event eventModels.CloudEvent) error {
	return h.terminate(ctx, event, models.RevokeReasonPasswordChange)
}

// HandleAdminForceLogout handles admin.user.force_logout.v1.
func (h *DirectoryEventsHandler) HandleAdminForceLogout(ctx context.Context, event eventModels.CloudEvent) error {
	return h.terminate(ctx, event, models.RevokeReasonAdmin)
}

func (h *DirectoryEventsHandler) terminate(ctx context.Context, event eventModels.CloudEvent, reason string) error {
	tenantID, userID, payload, err := parseDirectoryUser(event)
	if err != nil {
		h.logger.Error("Rejected directory event", zap.Error(err), zap.String("event_id", event.ID), zap.String("event_type", event.Type))
		return err
	}

	var revoked int
	err = h.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		revoked, err = h.sessions.TerminateAllSessions(ctx, tenantID, userID, nil, reason)
		if err != nil {
			return err
		}
		if err := h.tokens.RevokeAllUserTokens(ctx, tenantID, userID, reason); err != nil {
			return err
		}
		metadata, err := json.Marshal(map[string]interface{}{
			"revoked":      revoked,
			"reason":       reason,
			"event_id":     event.ID,
			"event_type":   event.Type,
			"event_source": event.Source,
			"actor_id":     payload.ActorID,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		return h.audit.LogAction(ctx, &models.AuditEvent{
			EventType: models.AuditEventSessionTerminated,
			Severity:  models.AuditSeverityWarning,
			UserID:    &userID,
			TenantID:  tenantID,
			Success:   true,
			Metadata:  metadata,
		})
	})
	if err != nil {
		return fmt.Errorf("directory event %s: %w", event.ID, err)
	}

	logger.WithTenant(h.logger, tenantID.String()).Info("Sessions terminated by directory event",
		zap.String("event_type", event.Type),
		zap.String("event_id", event.ID),
		zap.String("user_id", userID.String()),
		zap.Int("revoked", revoked))
	return nil
}

func parseDirectoryUser(event eventModels.CloudEvent) (uuid.UUID, uuid.UUID, DirectoryUserPayload, error) {
	var payload DirectoryUserPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return uuid.Nil, uuid.Nil, payload, fmt.Errorf("%w: malformed payload: %v", domainErrors.ErrInvalidRequest, err)
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil || tenantID == uuid.Nil {
		return uuid.Nil, uuid.Nil, payload, fmt.Errorf("directory event: %w", domainErrors.ErrTenantRequired)
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, uuid.Nil, payload, fmt.Errorf("%w: invalid user_id %q", domainErrors.ErrInvalidRequest, payload.UserID)
	}
	return tenantID, userID, payload, nil
}
