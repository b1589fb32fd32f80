package pubsub

import (
	"context"
	"testing"

	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FirstAndLastListener(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, livechat.InquiryEvent) {}

	id1, first := r.Add("public", noop)
	require.True(t, first)
	id2, first := r.Add("public", noop)
	require.False(t, first)
	require.NotEqual(t, id1, id2)
	require.Equal(t, 2, r.Count("public"))

	found, last := r.Remove("public", id1)
	require.True(t, found)
	require.False(t, last)

	found, last = r.Remove("public", id1)
	require.False(t, found)
	require.False(t, last)

	found, last = r.Remove("public", id2)
	require.True(t, found)
	require.True(t, last)
	require.Empty(t, r.Topics())
}

func TestRegistry_DispatchIsolatesPanics(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.Add("department/d1", func(context.Context, livechat.InquiryEvent) { panic("boom") })
	r.Add("department/d1", func(_ context.Context, ev livechat.InquiryEvent) { got = append(got, ev.ID) })

	n := r.Dispatch(context.Background(), "department/d1", livechat.NewInquiryEvent(livechat.EventAdded, livechat.InquiryRecord{ID: "i1"}), nil)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"i1"}, got)

	require.Equal(t, 0, r.Dispatch(context.Background(), "department/other", livechat.InquiryEvent{}, nil))
}

func TestMemoryTransport_PublishInOrder(t *testing.T) {
	m := NewMemoryTransport(nil)
	var seen []livechat.EventType
	id, err := m.On("public", func(_ context.Context, ev livechat.InquiryEvent) { seen = append(seen, ev.Type) })
	require.NoError(t, err)

	ctx := context.Background()
	for _, typ := range []livechat.EventType{livechat.EventAdded, livechat.EventChanged, livechat.EventRemoved} {
		m.Publish(ctx, "public", livechat.NewInquiryEvent(typ, livechat.InquiryRecord{ID: "x"}))
	}
	require.Equal(t, []livechat.EventType{livechat.EventAdded, livechat.EventChanged, livechat.EventRemoved}, seen)

	require.NoError(t, m.RemoveListener("public", id))
	require.Equal(t, 0, m.ListenerCount("public"))
	require.Equal(t, 0, m.Publish(ctx, "public", livechat.InquiryEvent{}))
}

func TestMemoryTransport_ValidatesArguments(t *testing.T) {
	m := NewMemoryTransport(nil)
	_, err := m.On("", func(context.Context, livechat.InquiryEvent) {})
	require.ErrorContains(t, err, "topic is empty")
	_, err = m.On("public", nil)
	require.ErrorContains(t, err, "handler is nil")
}
