// Package redisstream carries inquiry events over Redis Pub/Sub. Each topic
// maps to one channel under a prefix, e.g. "livechat:inquiry:department/d1".
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

const DefaultChannelPrefix = "livechat:inquiry:"

// Settings holds Redis Pub/Sub transport configuration.
type Settings struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

func (s Settings) NewClient() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: s.Addr, Password: s.Password, DB: s.DB})
}

type Transport struct {
	client   *redis.Client
	ps       *redis.PubSub
	prefix   string
	registry *pubsub.Registry
	log      *slog.Logger
}

var _ pubsub.Transport = (*Transport)(nil)

func New(ctx context.Context, client *redis.Client, prefix string, logger *slog.Logger) (*Transport, error) {
	if client == nil {
		return nil, errors.New("redis transport: client is nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Transport{
		client:   client,
		ps:       client.Subscribe(ctx),
		prefix:   prefix,
		registry: pubsub.NewRegistry(),
		log:      logger.With("component", "redisstream"),
	}, nil
}

func (t *Transport) channel(topic string) string { return t.prefix + topic }

func (t *Transport) topic(channel string) (string, bool) {
	topic, ok := strings.CutPrefix(channel, t.prefix)
	return topic, ok && topic != ""
}

func (t *Transport) On(topic string, h pubsub.Handler) (pubsub.ListenerID, error) {
	if topic == "" {
		return "", errors.New("redis transport: topic is empty")
	}
	if h == nil {
		return "", errors.New("redis transport: handler is nil")
	}
	id, first := t.registry.Add(topic, h)
	if !first {
		return id, nil
	}
	if err := t.ps.Subscribe(context.Background(), t.channel(topic)); err != nil {
		t.registry.Remove(topic, id)
		return "", fmt.Errorf("subscribe %s: %w", t.channel(topic), err)
	}
	return id, nil
}

func (t *Transport) RemoveListener(topic string, id pubsub.ListenerID) error {
	found, last := t.registry.Remove(topic, id)
	if !found || !last {
		return nil
	}
	if err := t.ps.Unsubscribe(context.Background(), t.channel(topic)); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", t.channel(topic), err)
	}
	return nil
}

// Run dispatches received messages until ctx is done or the subscription is closed.
func (t *Transport) Run(ctx context.Context) error {
	msgs := t.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			t.handle(ctx, msg)
		}
	}
}

func (t *Transport) handle(ctx context.Context, msg *redis.Message) {
	topic, ok := t.topic(msg.Channel)
	if !ok {
		t.log.Warn("message outside channel prefix", slog.String("channel", msg.Channel))
		return
	}
	ev, err := pubsub.DecodeEvent([]byte(msg.Payload))
	if err != nil {
		t.log.Warn("dropping inquiry message", slog.String("channel", msg.Channel), slog.Any("error", err))
		return
	}
	t.registry.Dispatch(ctx, topic, ev, t.log)
}

// Publish sends ev on topic. Mostly useful for tests and tooling; the
// server side normally publishes.
func (t *Transport) Publish(ctx context.Context, topic string, ev livechat.InquiryEvent, producer string) error {
	body, _, err := pubsub.EncodeEvent(ev, producer)
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, t.channel(topic), body).Err()
}

func (t *Transport) Close() error {
	return t.ps.Close()
}
