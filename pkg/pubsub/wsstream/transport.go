// Package wsstream reads inquiry events from a websocket stream endpoint.
//
// The client sends {"op":"sub","topic":...} and {"op":"unsub","topic":...}
// frames and receives {"topic":...,"event":{...}} frames. Text "ping"
// frames from the server are answered with "pong".
package wsstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

const writeWait = 10 * time.Second

type ControlFrame struct {
	Op    string `json:"op"` // "sub" | "unsub"
	Topic string `json:"topic"`
}

type EventFrame struct {
	Topic string          `json:"topic"`
	Event json.RawMessage `json:"event"`
}

type Transport struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	registry *pubsub.Registry
	log      *slog.Logger
}

var _ pubsub.Transport = (*Transport)(nil)

// Dial connects to the stream endpoint at url.
func Dial(ctx context.Context, url string, header http.Header, logger *slog.Logger) (*Transport, error) {
	if url == "" {
		return nil, errors.New("websocket transport: url is empty")
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(conn, logger)
}

func New(conn *websocket.Conn, logger *slog.Logger) (*Transport, error) {
	if conn == nil {
		return nil, errors.New("websocket transport: connection is nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transport{
		conn:     conn,
		registry: pubsub.NewRegistry(),
		log:      logger.With("component", "wsstream", "remote", conn.RemoteAddr().String()),
	}, nil
}

func (t *Transport) On(topic string, h pubsub.Handler) (pubsub.ListenerID, error) {
	if topic == "" {
		return "", errors.New("websocket transport: topic is empty")
	}
	if h == nil {
		return "", errors.New("websocket transport: handler is nil")
	}
	id, first := t.registry.Add(topic, h)
	if !first {
		return id, nil
	}
	if err := t.writeJSON(ControlFrame{Op: "sub", Topic: topic}); err != nil {
		t.registry.Remove(topic, id)
		return "", fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return id, nil
}

func (t *Transport) RemoveListener(topic string, id pubsub.ListenerID) error {
	found, last := t.registry.Remove(topic, id)
	if !found || !last {
		return nil
	}
	if err := t.writeJSON(ControlFrame{Op: "unsub", Topic: topic}); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

func (t *Transport) writeJSON(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(v)
}

func (t *Transport) writeText(s string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// Run reads frames until the connection fails or ctx is done.
func (t *Transport) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = t.conn.Close() })
	defer stop()

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.TextMessage || len(data) == 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(string(data)), "ping") {
			if err := t.writeText("pong"); err != nil {
				t.log.Debug("pong failed", slog.Any("error", err))
			}
			continue
		}
		t.handle(ctx, data)
	}
}

func (t *Transport) handle(ctx context.Context, data []byte) {
	var frame EventFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Topic == "" {
		t.log.Warn("dropping malformed frame", slog.Any("error", err))
		return
	}
	ev, err := pubsub.DecodeEvent(frame.Event)
	if err != nil {
		t.log.Warn("dropping inquiry frame", slog.String("topic", frame.Topic), slog.Any("error", err))
		return
	}
	t.registry.Dispatch(ctx, frame.Topic, ev, t.log)
}

// Close sends a close frame and closes the connection.
func (t *Transport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}

// NewEventFrame builds the frame a stream server sends for ev.
func NewEventFrame(topic string, ev livechat.InquiryEvent) (EventFrame, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return EventFrame{}, err
	}
	return EventFrame{Topic: topic, Event: raw}, nil
}
