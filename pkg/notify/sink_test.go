package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub"
	"github.com/roboricindustries/raycon-livequeue/pkg/schemas/common"
	"github.com/roboricindustries/raycon-livequeue/pkg/schemas/notifications"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	keys []string
	msgs []common.Envelope
}

func (c *capturePublisher) Publish(_ context.Context, key string, msg common.Envelope) error {
	c.keys = append(c.keys, key)
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

var _ pubsub.Publisher = (*capturePublisher)(nil)

func TestPublisherSink(t *testing.T) {
	_, err := NewPublisherSink(nil, "u1", "")
	require.ErrorContains(t, err, "publisher is nil")
	_, err = NewPublisherSink(&capturePublisher{}, "", "")
	require.ErrorContains(t, err, "agent id is empty")

	pub := &capturePublisher{}
	s, err := NewPublisherSink(pub, "u1", "livequeue")
	require.NoError(t, err)
	require.NoError(t, s.Play(context.Background(), "chime", PlayOptions{Volume: 0.5}))

	require.Equal(t, []string{notifications.RoutingKey}, pub.keys)
	env := pub.msgs[0]
	require.Equal(t, notifications.EventType, env.Meta.Type)
	require.NotEmpty(t, env.Meta.ID)
	snd, ok := env.Data.(notifications.SoundV1)
	require.True(t, ok)
	require.Equal(t, "u1", snd.RecipientID)
	require.Equal(t, common.Agent, snd.RecipientRole)
	require.Equal(t, "chime", snd.SoundID)
	require.Equal(t, 0.5, snd.Volume)

	body, err := json.Marshal(env)
	require.NoError(t, err)
	decoded, err := common.DecodeEnvelope[notifications.SoundV1](body, notifications.EventType)
	require.NoError(t, err)
	require.Equal(t, "chime", decoded.Data.SoundID)
	require.Equal(t, "livequeue", *decoded.Meta.Producer)
	require.True(t, notifications.SoundMeta().Matches(pub.keys[0]))

	_, err = common.DecodeEnvelope[notifications.SoundV1](body, "other.v1")
	require.ErrorContains(t, err, "unexpected event type")
}

func TestLogSinkAndRecorder(t *testing.T) {
	var buf bytes.Buffer
	ls := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, ls.Play(context.Background(), "chime", PlayOptions{Volume: 1}))
	require.Contains(t, buf.String(), "sound=chime")

	r := &Recorder{}
	var sink Sink = r
	require.NoError(t, sink.Play(context.Background(), "a", PlayOptions{Volume: 0.1}))
	require.Equal(t, []Played{{SoundID: "a", Volume: 0.1}}, r.Calls())
	r.Reset()
	require.Empty(t, r.Calls())

	called := false
	f := SinkFunc(func(context.Context, string, PlayOptions) error { called = true; return nil })
	require.NoError(t, f.Play(context.Background(), "x", PlayOptions{}))
	require.True(t, called)
}
