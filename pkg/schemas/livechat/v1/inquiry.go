package livechat

import "time"

type InquiryStatus string

const (
	StatusQueued InquiryStatus = "queued"
	StatusReady  InquiryStatus = "ready"
	StatusTaken  InquiryStatus = "taken"
	StatusOpen   InquiryStatus = "open"
	StatusClosed InquiryStatus = "closed"
)

type DefaultAgent struct {
	AgentID  string `json:"agentId"`
	Username string `json:"username,omitempty"`
}

// InquiryRecord is one pending chat waiting for an agent.
type InquiryRecord struct {
	ID           string        `json:"_id"`
	RoomID       string        `json:"rid,omitempty"`
	Name         string        `json:"name,omitempty"`
	Status       InquiryStatus `json:"status"`
	Department   string        `json:"department,omitempty"` // empty = public queue
	DefaultAgent *DefaultAgent `json:"defaultAgent,omitempty"`
	Priority     int           `json:"priorityWeight,omitempty"`
	QueuedAt     *time.Time    `json:"queuedAt,omitempty"`
	UpdatedAt    time.Time     `json:"_updatedAt"`

	// Alert marks records that arrived over the live stream, as opposed to backfill.
	Alert bool `json:"alert,omitempty"`
}

func (r InquiryRecord) IsQueued() bool { return r.Status == StatusQueued }

func (r InquiryRecord) HasDepartment() bool { return r.Department != "" }

// VisibleTo reports whether the record belongs to the agent's pool:
// either it has no default agent or the default agent is agentID.
func (r InquiryRecord) VisibleTo(agentID string) bool {
	return r.DefaultAgent == nil || r.DefaultAgent.AgentID == agentID
}

// Clone returns a copy that shares no pointers with r.
func (r InquiryRecord) Clone() InquiryRecord {
	out := r
	if r.DefaultAgent != nil {
		da := *r.DefaultAgent
		out.DefaultAgent = &da
	}
	if r.QueuedAt != nil {
		q := *r.QueuedAt
		out.QueuedAt = &q
	}
	return out
}
