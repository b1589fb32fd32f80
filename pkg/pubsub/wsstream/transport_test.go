package wsstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
	"github.com/stretchr/testify/require"
)

// streamServer accepts one client, records control frames and pushes an
// event for every topic the client subscribes to.
func streamServer(t *testing.T, controls chan<- ControlFrame) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var cf ControlFrame
			if err := conn.ReadJSON(&cf); err != nil {
				return
			}
			controls <- cf
			if cf.Op != "sub" {
				continue
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"`+cf.Topic+`","event":{"broken":`))
			frame, err := NewEventFrame(cf.Topic, livechat.NewInquiryEvent(livechat.EventAdded, livechat.InquiryRecord{
				ID: "i-" + cf.Topic, Status: livechat.StatusQueued,
			}))
			if err != nil {
				return
			}
			_ = conn.WriteJSON(frame)
		}
	}))
}

func wsURL(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func TestDial_ValidatesArguments(t *testing.T) {
	_, err := Dial(context.Background(), "", nil, nil)
	require.ErrorContains(t, err, "url is empty")
	_, err = New(nil, nil)
	require.ErrorContains(t, err, "connection is nil")
}

func TestTransport_SubscribeReceiveUnsubscribe(t *testing.T) {
	controls := make(chan ControlFrame, 8)
	srv := streamServer(t, controls)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr, err := Dial(ctx, wsURL(srv), nil, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []string
	id, err := tr.On("public", func(_ context.Context, ev livechat.InquiryEvent) {
		mu.Lock()
		got = append(got, ev.ID)
		mu.Unlock()
	})
	require.NoError(t, err)
	// a second listener on the same topic does not resubscribe
	id2, err := tr.On("public", func(context.Context, livechat.InquiryEvent) {})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	require.Equal(t, ControlFrame{Op: "sub", Topic: "public"}, <-controls)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	require.Equal(t, "i-public", got[0])
	mu.Unlock()

	require.NoError(t, tr.RemoveListener("public", id))
	require.NoError(t, tr.RemoveListener("public", id2))
	require.Equal(t, ControlFrame{Op: "unsub", Topic: "public"}, <-controls)
	require.Empty(t, controls)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
