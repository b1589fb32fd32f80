package livechat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInquiryEventWireShape(t *testing.T) {
	body := []byte(`{
		"_id": "i1", "rid": "r1", "status": "queued", "department": "d1",
		"defaultAgent": {"agentId": "u1", "username": "ann"},
		"_updatedAt": "2024-05-01T12:00:00Z", "type": "added"
	}`)
	var ev InquiryEvent
	require.NoError(t, json.Unmarshal(body, &ev))
	require.Equal(t, EventAdded, ev.Type)
	require.Equal(t, "i1", ev.ID)
	require.Equal(t, "d1", ev.Department)
	require.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), ev.UpdatedAt)
	require.True(t, ev.VisibleTo("u1"))
	require.False(t, ev.VisibleTo("u2"))
	require.NoError(t, ev.Validate())
}

func TestInquiryEventValidate(t *testing.T) {
	cases := []struct {
		name  string
		ev    InquiryEvent
		field string
	}{
		{"missing type", InquiryEvent{InquiryRecord: InquiryRecord{ID: "i1", Status: StatusQueued}}, "type"},
		{"unknown type", InquiryEvent{InquiryRecord: InquiryRecord{ID: "i1", Status: StatusQueued}, Type: "moved"}, "type"},
		{"missing id", InquiryEvent{InquiryRecord: InquiryRecord{Status: StatusQueued}, Type: EventAdded}, "_id"},
		{"missing status", InquiryEvent{InquiryRecord: InquiryRecord{ID: "i1"}, Type: EventChanged}, "status"},
		{"empty default agent", InquiryEvent{InquiryRecord: InquiryRecord{ID: "i1", Status: StatusQueued, DefaultAgent: &DefaultAgent{}}, Type: EventAdded}, "defaultAgent.agentId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ev.Validate()
			require.ErrorIs(t, err, ErrInvalidContract)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			require.Equal(t, tc.field, ve.Issues[0].Field)
		})
	}

	removed := NewInquiryEvent(EventRemoved, InquiryRecord{ID: "i1"})
	require.NoError(t, removed.Validate())
}

func TestTopics(t *testing.T) {
	require.Equal(t, "department/d1", DepartmentTopic("d1"))
	id, ok := DepartmentFromTopic("department/d1")
	require.True(t, ok)
	require.Equal(t, "d1", id)
	_, ok = DepartmentFromTopic(PublicTopic)
	require.False(t, ok)
	_, ok = DepartmentFromTopic("department/")
	require.False(t, ok)

	_, err := ParseEventType("moved")
	require.Error(t, err)
	typ, err := ParseEventType("removed")
	require.NoError(t, err)
	require.Equal(t, EventRemoved, typ)
}

func TestCloneSharesNoPointers(t *testing.T) {
	q := time.Now()
	r := InquiryRecord{ID: "i1", DefaultAgent: &DefaultAgent{AgentID: "u1"}, QueuedAt: &q}
	c := r.Clone()
	c.DefaultAgent.AgentID = "u2"
	*c.QueuedAt = q.Add(time.Hour)
	require.Equal(t, "u1", r.DefaultAgent.AgentID)
	require.Equal(t, q, *r.QueuedAt)

	require.True(t, Agent{StatusLivechat: AgentAvailable}.Available())
	require.False(t, Agent{StatusLivechat: AgentNotAvailable}.Available())
}
