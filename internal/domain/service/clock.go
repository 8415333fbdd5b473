// File: internal/domain/service/clock.go
package service

import "time"

// Clock is the time source of the core.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
