package common

import (
	"time"

	"github.com/google/uuid"
)

type Meta struct {
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
	// Unique event ID
	ID string `json:"id"`
	// Emitting service and version
	Producer *string `json:"producer,omitempty"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
	// Event name and version, e.g. livechat.inquiry.v1
	Type string `json:"type"`
}

func NewMeta(eventType, producer string) Meta {
	m := Meta{
		ID:   uuid.NewString(),
		Time: time.Now().UTC(),
		Type: eventType,
	}
	if producer != "" {
		m.Producer = &producer
	}
	return m
}

// Correlation returns the correlation id, falling back to the event id.
func (m Meta) Correlation() string {
	if m.CorrelationID != nil && *m.CorrelationID != "" {
		return *m.CorrelationID
	}
	return m.ID
}
