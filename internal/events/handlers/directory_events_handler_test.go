package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/ruther77/MassaCorp-sub001/internal/domain/errors"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/events/kafka"
	eventModels "github.com/ruther77/MassaCorp-sub001/internal/events/models"
)

// --- Mocks ---

type MockSessionTerminator struct {
	mock.Mock
}

func (m *MockSessionTerminator) TerminateAllSessions(ctx context.Context, tenantID, userID uuid.UUID, except *uuid.UUID, reason string) (int, error) {
	args := m.Called(ctx, tenantID, userID, except, reason)
	return args.Int(0), args.Error(1)
}

type MockTokenRevoker struct {
	mock.Mock
}

func (m *MockTokenRevoker) RevokeAllUserTokens(ctx context.Context, tenantID, userID uuid.UUID, reason string) error {
	args := m.Called(ctx, tenantID, userID, reason)
	return args.Error(0)
}

type MockAuditRecorder struct {
	mock.Mock
}

func (m *MockAuditRecorder) LogAction(ctx context.Context, event *models.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// passthroughTx records whether fn ran inside it.
type passthroughTx struct {
	calls int
}

func (p *passthroughTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

type recordingRegistrar map[string]kafka.EventHandler

func (r recordingRegistrar) RegisterHandler(eventType string, handler kafka.EventHandler) {
	r[eventType] = handler
}

type handlerFixture struct {
	tx       *passthroughTx
	sessions *MockSessionTerminator
	tokens   *MockTokenRevoker
	audit    *MockAuditRecorder
	handler  *DirectoryEventsHandler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		tx:       &passthroughTx{},
		sessions: new(MockSessionTerminator),
		tokens:   new(MockTokenRevoker),
		audit:    new(MockAuditRecorder),
	}
	f.handler = NewDirectoryEventsHandler(f.tx, f.sessions, f.tokens, f.audit, zap.NewNop())
	return f
}

func directoryEvent(t *testing.T, eventType string, payload interface{}) eventModels.CloudEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return eventModels.CloudEvent{
		SpecVersion: eventModels.CloudEventSpecVersion,
		ID:          uuid.NewString(),
		Source:      "/directory",
		Type:        eventType,
		Data:        data,
	}
}

func TestDirectoryEventsHandler_Register(t *testing.T) {
	f := newHandlerFixture()
	reg := recordingRegistrar{}
	f.handler.Register(reg)

	assert.Len(t, reg, 4)
	for _, eventType := range []string{EventUserDeactivated, EventUserDeleted, EventUserPasswordReset, EventAdminForceLogout} {
		assert.Contains(t, reg, eventType)
	}
}

func TestDirectoryEventsHandler_TerminatesSessions(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		handle    func(h *DirectoryEventsHandler) kafka.EventHandler
		reason    string
	}{
		{"deactivated", EventUserDeactivated, func(h *DirectoryEventsHandler) kafka.EventHandler { return h.HandleUserDeactivated }, models.RevokeReasonUserDisabled},
		{"deleted", EventUserDeleted, func(h *DirectoryEventsHandler) kafka.EventHandler { return h.HandleUserDeleted }, models.RevokeReasonUserDisabled},
		{"password reset", EventUserPasswordReset, func(h *DirectoryEventsHandler) kafka.EventHandler { return h.HandleUserPasswordReset }, models.RevokeReasonPasswordChange},
		{"force logout", EventAdminForceLogout, func(h *DirectoryEventsHandler) kafka.EventHandler { return h.HandleAdminForceLogout }, models.RevokeReasonAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			tenantID, userID, actorID := uuid.New(), uuid.New(), uuid.New()
			event := directoryEvent(t, tt.eventType, DirectoryUserPayload{
				TenantID: tenantID.String(),
				UserID:   userID.String(),
				ActorID:  actorID.String(),
			})

			f.sessions.On("TerminateAllSessions", mock.Anything, tenantID, userID, (*uuid.UUID)(nil), tt.reason).Return(3, nil).Once()
			f.tokens.On("RevokeAllUserTokens", mock.Anything, tenantID, userID, tt.reason).Return(nil).Once()
			f.audit.On("LogAction", mock.Anything, mock.MatchedBy(func(e *models.AuditEvent) bool {
				var meta map[string]interface{}
				if err := json.Unmarshal(e.Metadata, &meta); err != nil {
					return false
				}
				return e.EventType == models.AuditEventSessionTerminated &&
					e.Severity == models.AuditSeverityWarning &&
					e.TenantID == tenantID &&
					e.UserID != nil && *e.UserID == userID &&
					meta["revoked"] == float64(3) &&
					meta["event_id"] == event.ID &&
					meta["actor_id"] == actorID.String()
			})).Return(nil).Once()

			err := tt.handle(f.handler)(context.Background(), event)
			require.NoError(t, err)

			assert.Equal(t, 1, f.tx.calls)
			f.sessions.AssertExpectations(t)
			f.tokens.AssertExpectations(t)
			f.audit.AssertExpectations(t)
		})
	}
}

func TestDirectoryEventsHandler_RejectsBadPayload(t *testing.T) {
	tests := []struct {
		name    string
		event   func(t *testing.T) eventModels.CloudEvent
		wantErr error
	}{
		{
			"malformed json",
			func(t *testing.T) eventModels.CloudEvent {
				return eventModels.CloudEvent{ID: "1", Type: EventUserDeleted, Data: json.RawMessage(`{"tenant_id":`)}
			},
			domainErrors.ErrInvalidRequest,
		},
		{
			"missing tenant",
			func(t *testing.T) eventModels.CloudEvent {
				return directoryEvent(t, EventUserDeleted, DirectoryUserPayload{UserID: uuid.NewString()})
			},
			domainErrors.ErrTenantRequired,
		},
		{
			"nil tenant",
			func(t *testing.T) eventModels.CloudEvent {
				return directoryEvent(t, EventUserDeleted, DirectoryUserPayload{TenantID: uuid.Nil.String(), UserID: uuid.NewString()})
			},
			domainErrors.ErrTenantRequired,
		},
		{
			"bad user id",
			func(t *testing.T) eventModels.CloudEvent {
				return directoryEvent(t, EventUserDeleted, DirectoryUserPayload{TenantID: uuid.NewString(), UserID: "nope"})
			},
			domainErrors.ErrInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()
			err := f.handler.HandleUserDeleted(context.Background(), tt.event(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.tx.calls)
			f.sessions.AssertNotCalled(t, "TerminateAllSessions", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestDirectoryEventsHandler_AuditFailureFailsEvent(t *testing.T) {
	f := newHandlerFixture()
	tenantID, userID := uuid.New(), uuid.New()
	event := directoryEvent(t, EventUserDeactivated, DirectoryUserPayload{TenantID: tenantID.String(), UserID: userID.String()})

	f.sessions.On("TerminateAllSessions", mock.Anything, tenantID, userID, (*uuid.UUID)(nil), models.RevokeReasonUserDisabled).Return(1, nil)
	f.tokens.On("RevokeAllUserTokens", mock.Anything, tenantID, userID, models.RevokeReasonUserDisabled).Return(nil)
	f.audit.On("LogAction", mock.Anything, mock.Anything).Return(domainErrors.ErrAuditWriteFailed)

	err := f.handler.HandleUserDeactivated(context.Background(), event)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErrors.ErrAuditWriteFailed)
}

func TestDirectoryEventsHandler_TerminateFailureSkipsRest(t *testing.T) {
	f := newHandlerFixture()
	tenantID, userID := uuid.New(), uuid.New()
	event := directoryEvent(t, EventAdminForceLogout, DirectoryUserPayload{TenantID: tenantID.String(), UserID: userID.String()})

	boom := errors.New("db down")
	f.sessions.On("TerminateAllSessions", mock.Anything, tenantID, userID, (*uuid.UUID)(nil), models.RevokeReasonAdmin).Return(0, boom)

	err := f.handler.HandleAdminForceLogout(context.Background(), event)
	require.ErrorIs(t, err, boom)
	f.tokens.AssertNotCalled(t, "RevokeAllUserTokens", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "LogAction", mock.Anything, mock.Anything)
}
