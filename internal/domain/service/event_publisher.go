// File: internal/domain/service/event_publisher.go
package service

import "context"

// EventPublisher forwards security events to an external stream.
type EventPublisher interface {
	PublishCloudEvent(ctx context.Context, eventType string, subject string, payload interface{}) error
}
