package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roboricindustries/raycon-livequeue/pkg/schemas/common"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

// ErrPoison indicates non-retriable "bad content" (e.g., JSON decode fail).
var ErrPoison = errors.New("poison message")

// DecodeEvent accepts either an enveloped event or a bare event object.
func DecodeEvent(body []byte) (livechat.InquiryEvent, error) {
	var ev livechat.InquiryEvent

	var env common.GenericEnvelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrPoison, err)
	}
	payload := body
	if env.Meta.Type != "" {
		if env.Meta.Type != livechat.EventTypeInquiry {
			return ev, fmt.Errorf("%w: unexpected event type %q", ErrPoison, env.Meta.Type)
		}
		payload = env.Data
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrPoison, err)
	}
	if err := ev.Validate(); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrPoison, err)
	}
	return ev, nil
}

// EncodeEvent wraps ev in an envelope.
func EncodeEvent(ev livechat.InquiryEvent, producer string) ([]byte, common.Meta, error) {
	env := common.NewEnvelope(livechat.EventTypeInquiry, ev, producer)
	body, err := json.Marshal(env)
	if err != nil {
		return nil, env.Meta, fmt.Errorf("marshal envelope: %w", err)
	}
	return body, env.Meta, nil
}
