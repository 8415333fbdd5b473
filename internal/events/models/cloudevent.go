// File: internal/events/models/cloudevent.go
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CloudEventSpecVersion is the CloudEvents version we emit.
const CloudEventSpecVersion = "1.0"

// CloudEventDataContentType is the content type of the data attribute.
const CloudEventDataContentType = "application/json"

// DefaultCloudEventSource is used when no source is configured.
const DefaultCloudEventSource = "/authcore"

// CloudEvent is the structured-mode CloudEvents v1.0 envelope. Extension
// attributes sit next to the core ones, as CloudEvents requires.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Subject         string          `json:"subject,omitempty"`
	Time            time.Time       `json:"time"`
	TraceID         string          `json:"traceid,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}

// Validate checks the required context attributes of an incoming event.
func (e CloudEvent) Validate() error {
	if e.SpecVersion != CloudEventSpecVersion {
		return fmt.Errorf("unsupported specversion %q", e.SpecVersion)
	}
	if e.ID == "" || e.Source == "" || e.Type == "" {
		return errors.New("id, source and type are required")
	}
	return nil
}
