package inquirystore

import (
	"time"

	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

// Filter selects cached inquiries. Zero fields match anything.
type Filter struct {
	Status livechat.InquiryStatus
	// PoolAgent keeps records without a default agent or assigned by default to this agent.
	PoolAgent string
	// Department matches an exact department; use Public for departmentless records.
	Department string
	Public     bool
}

func (f Filter) Match(r livechat.InquiryRecord) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.PoolAgent != "" && !r.VisibleTo(f.PoolAgent) {
		return false
	}
	if f.Public && r.HasDepartment() {
		return false
	}
	if f.Department != "" && r.Department != f.Department {
		return false
	}
	return true
}

// QueuedFor is the pool filter used for admission control.
func QueuedFor(agentID string) Filter {
	return Filter{Status: livechat.StatusQueued, PoolAgent: agentID}
}

func queuedAt(r livechat.InquiryRecord) time.Time {
	if r.QueuedAt != nil {
		return *r.QueuedAt
	}
	return r.UpdatedAt
}
