// File: internal/domain/models/login_outcome.go
package models

import "time"

// LoginOutcome is either Issued or MFAChallenge. Callers switch on the
// concrete type:
//
//	switch o := outcome.(type) {
//	case models.Issued:
//	case models.MFAChallenge:
//	}
type LoginOutcome interface {
	isLoginOutcome()
}

// Issued is returned when the login is complete.
type Issued struct {
	Tokens  TokenPair
	Signals SignalSet
}

// MFAChallenge is returned when a second factor is still needed. No session
// exists yet.
type MFAChallenge struct {
	Token     string
	ExpiresAt time.Time
}

func (Issued) isLoginOutcome()       {}
func (MFAChallenge) isLoginOutcome() {}
