package common

import (
	"encoding/json"
	"fmt"
)

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type GenericEnvelope[T any] struct {
	Meta Meta `json:"meta"`
	Data T    `json:"data"`
}

// NewEnvelope wraps data with fresh metadata for eventType.
func NewEnvelope(eventType string, data any, producer string) Envelope {
	return Envelope{Meta: NewMeta(eventType, producer), Data: data}
}

// DecodeEnvelope unmarshals an envelope and checks its event type when want is set.
func DecodeEnvelope[T any](body []byte, want string) (GenericEnvelope[T], error) {
	var env GenericEnvelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if want != "" && env.Meta.Type != want {
		return env, fmt.Errorf("unexpected event type %q, want %q", env.Meta.Type, want)
	}
	return env, nil
}
