package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub"
	"github.com/roboricindustries/raycon-livequeue/pkg/schemas/common"
	"github.com/roboricindustries/raycon-livequeue/pkg/schemas/notifications"
)

type PlayOptions struct {
	Volume float64 // 0.0 - 1.0
}

// Sink plays (or forwards) a notification sound.
type Sink interface {
	Play(ctx context.Context, soundID string, opts PlayOptions) error
}

type SinkFunc func(ctx context.Context, soundID string, opts PlayOptions) error

func (f SinkFunc) Play(ctx context.Context, soundID string, opts PlayOptions) error {
	return f(ctx, soundID, opts)
}

// LogSink only logs; used when no audio or broker is wired.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Play(_ context.Context, soundID string, opts PlayOptions) error {
	if s.Logger != nil {
		s.Logger.Info("play sound", slog.String("sound", soundID), slog.Float64("volume", opts.Volume))
	}
	return nil
}

// PublisherSink forwards sounds to the agent's client as notification envelopes.
type PublisherSink struct {
	pub      pubsub.Publisher
	agentID  string
	producer string
}

func NewPublisherSink(pub pubsub.Publisher, agentID, producer string) (*PublisherSink, error) {
	if pub == nil {
		return nil, errors.New("publisher sink: publisher is nil")
	}
	if agentID == "" {
		return nil, errors.New("publisher sink: agent id is empty")
	}
	return &PublisherSink{pub: pub, agentID: agentID, producer: producer}, nil
}

func (s *PublisherSink) Play(ctx context.Context, soundID string, opts PlayOptions) error {
	meta := notifications.SoundMeta()
	msg := notifications.NewSound(s.agentID, soundID, opts.Volume)
	return s.pub.Publish(ctx, meta.RoutingKey, common.NewEnvelope(meta.EventType, msg, s.producer))
}

type Played struct {
	SoundID string
	Volume  float64
}

// Recorder keeps every Play call. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []Played
}

func (r *Recorder) Play(_ context.Context, soundID string, opts PlayOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Played{SoundID: soundID, Volume: opts.Volume})
	return nil
}

func (r *Recorder) Calls() []Played {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Played(nil), r.calls...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
