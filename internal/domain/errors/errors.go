// File: internal/domain/errors/errors.go
package errors

import (
	"errors"
)

// Authentication and session errors. Each is a stable kind the transport
// layer maps to its own responses.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInactiveUser        = errors.New("user is inactive")
	ErrAccountLocked       = errors.New("account is temporarily locked")
	ErrMFARequired         = errors.New("multi-factor authentication required")
	ErrMFAInvalid          = errors.New("invalid multi-factor authentication code")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenRevoked        = errors.New("token revoked or expired")
	ErrTokenReplayDetected = errors.New("refresh token replay detected")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionNotFound     = errors.New("session not found")
	ErrMaxSessionsExceeded = errors.New("maximum number of active sessions exceeded")
	ErrTooManyAttempts     = errors.New("too many attempts from this address")
)

// MFA registry errors
var (
	ErrMFANotEnabled     = errors.New("multi-factor authentication is not enabled")
	ErrMFAAlreadyEnabled = errors.New("multi-factor authentication is already enabled")
	ErrMFANotPending     = errors.New("multi-factor authentication setup is not pending activation")
	ErrWeakEncryptionKey = errors.New("encryption key is missing, malformed or a known placeholder")
)

// Infrastructure and contract errors
var (
	ErrNotFound               = errors.New("resource not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrDuplicateValue         = errors.New("duplicate value")
	ErrTenantRequired         = errors.New("tenant context is required")
	ErrAuditWriteFailed       = errors.New("audit event could not be recorded")
	ErrMFACollaboratorMissing = errors.New("mfa registry is required in production")
	ErrInvalidRequest         = errors.New("invalid request")
)

const (
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeInactiveUser        = "INACTIVE_USER"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeMFARequired         = "MFA_REQUIRED"
	CodeMFAInvalid          = "MFA_INVALID"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeTokenRevoked        = "TOKEN_REVOKED"
	CodeTokenReplayDetected = "TOKEN_REPLAY_DETECTED"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeMaxSessionsExceeded = "MAX_SESSIONS_EXCEEDED"
	CodeTooManyAttempts     = "TOO_MANY_ATTEMPTS"
	CodeMFAState            = "MFA_STATE_CONFLICT"
	CodeTenantRequired      = "TENANT_REQUIRED"
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL_ERROR"
)

// codeTable is checked in order; replay must win over the errors it may be joined with.
var codeTable = []struct {
	err  error
	code string
}{
	{ErrTokenReplayDetected, CodeTokenReplayDetected},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrInactiveUser, CodeInactiveUser},
	{ErrAccountLocked, CodeAccountLocked},
	{ErrMFARequired, CodeMFARequired},
	{ErrMFAInvalid, CodeMFAInvalid},
	{ErrInvalidToken, CodeInvalidToken},
	{ErrTokenRevoked, CodeTokenRevoked},
	{ErrSessionExpired, CodeSessionExpired},
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrMaxSessionsExceeded, CodeMaxSessionsExceeded},
	{ErrTooManyAttempts, CodeTooManyAttempts},
	{ErrMFANotEnabled, CodeMFAState},
	{ErrMFAAlreadyEnabled, CodeMFAState},
	{ErrMFANotPending, CodeMFAState},
	{ErrTenantRequired, CodeTenantRequired},
	{ErrInvalidRequest, CodeValidation},
	{ErrUserNotFound, CodeNotFound},
	{ErrNotFound, CodeNotFound},
	{ErrDuplicateValue, CodeConflict},
}

// Code returns the stable code of the first known kind found in err's chain,
// or CodeInternal.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// IsNotFound reports whether err is one of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}

// IsUnauthorized reports whether err should be rendered as an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrTokenReplayDetected) ||
		errors.Is(err, ErrSessionExpired)
}

// IsActionable reports whether err is a login state the client is expected
// to act on rather than a generic failure.
func IsActionable(err error) bool {
	return errors.Is(err, ErrAccountLocked) ||
		errors.Is(err, ErrMFARequired) ||
		errors.Is(err, ErrMFAInvalid) ||
		errors.Is(err, ErrTooManyAttempts)
}
