package livechat

import "fmt"

type EventType string

const (
	EventAdded   EventType = "added"
	EventChanged EventType = "changed"
	EventRemoved EventType = "removed"
)

func (t EventType) Valid() bool {
	switch t {
	case EventAdded, EventChanged, EventRemoved:
		return true
	}
	return false
}

func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown inquiry event type %q", s)
	}
	return t, nil
}

// InquiryEvent is a single change pushed on an inquiry topic.
// On the wire the record fields and "type" share one JSON object.
type InquiryEvent struct {
	InquiryRecord
	Type EventType `json:"type"`
}

func NewInquiryEvent(t EventType, r InquiryRecord) InquiryEvent {
	return InquiryEvent{InquiryRecord: r, Type: t}
}
