// File: internal/domain/repository/memory/store.go

// Package memory is a single-process implementation of the repository
// contracts. It is used by tests and by local development profiles; it is
// refused in production because its state is not shared across instances.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ruther77/MassaCorp-sub001/internal/domain/models"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/repository"
)

type txKey struct{ store *Store }

type state struct {
	users    map[uuid.UUID]*models.User
	attempts []*models.LoginAttempt
	sessions map[uuid.UUID]*models.Session
	tokens   map[uuid.UUID]*models.RefreshToken
	secrets  map[uuid.UUID]*models.MFASecret // keyed by user
	codes    map[uuid.UUID]*models.RecoveryCode
	audit    []*models.AuditEvent
}

func newState() *state {
	return &state{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[uuid.UUID]*models.Session),
		tokens:   make(map[uuid.UUID]*models.RefreshToken),
		secrets:  make(map[uuid.UUID]*models.MFASecret),
		codes:    make(map[uuid.UUID]*models.RecoveryCode),
	}
}

// clone copies every record by value. Records are never mutated through
// shared pointers, so struct copies are enough for a rollback snapshot.
func (st *state) clone() *state {
	c := newState()
	for k, v := range st.users {
		u := *v
		c.users[k] = &u
	}
	for _, v := range st.attempts {
		a := *v
		c.attempts = append(c.attempts, &a)
	}
	for k, v := range st.sessions {
		s := *v
		c.sessions[k] = &s
	}
	for k, v := range st.tokens {
		t := *v
		c.tokens[k] = &t
	}
	for k, v := range st.secrets {
		s := *v
		c.secrets[k] = &s
	}
	for k, v := range st.codes {
		rc := *v
		c.codes[k] = &rc
	}
	for _, v := range st.audit {
		e := *v
		c.audit = append(c.audit, &e)
	}
	return c
}

// Store holds all records behind one mutex. A transaction holds the mutex
// for its whole duration, which makes every transaction serializable.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// lock acquires the store mutex unless ctx already carries this store's transaction.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{s}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTransaction implements repository.Transactor. On error every change
// made by fn is discarded.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{s}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Users returns the credential store view.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// LoginAttempts returns the attempt ledger view.
func (s *Store) LoginAttempts() *LoginAttemptRepository { return &LoginAttemptRepository{s: s} }

// Sessions returns the session view.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// RefreshTokens returns the token ledger view.
func (s *Store) RefreshTokens() *RefreshTokenRepository { return &RefreshTokenRepository{s: s} }

// MFASecrets returns the TOTP secret view.
func (s *Store) MFASecrets() *MFASecretRepository { return &MFASecretRepository{s: s} }

// RecoveryCodes returns the recovery code view.
func (s *Store) RecoveryCodes() *RecoveryCodeRepository { return &RecoveryCodeRepository{s: s} }

// AuditLogs returns the audit view.
func (s *Store) AuditLogs() *AuditLogRepository { return &AuditLogRepository{s: s} }

var _ repository.Transactor = (*Store)(nil)
