package common

import "encoding/json"

type Core struct {
	NotificationCode string `json:"notification_code"`

	RecipientRole RecipientRole `json:"recipient_role"`
	RecipientID   string        `json:"recipient_id"`
	Body          string        `json:"body,omitempty"`

	Options map[string]json.RawMessage `json:"options,omitempty"`
	Meta    map[string]any             `json:"meta,omitempty"`
}

type RecipientRole string

const (
	Agent   RecipientRole = "agent"
	Manager RecipientRole = "manager"
	User    RecipientRole = "user"
)
