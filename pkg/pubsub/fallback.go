package pubsub

import (
	"context"
	"log/slog"

	"github.com/roboricindustries/raycon-livequeue/pkg/schemas/common"
)

// FallbackPublisher logs and drops every message. It stands in when no
// broker is configured.
type FallbackPublisher struct {
	log *slog.Logger
}

func (p *FallbackPublisher) Publish(ctx context.Context, key string, msg common.Envelope) error {
	p.log.Warn("FallbackPublisher: skipped publish",
		slog.String("key", key),
		slog.String("type", msg.Meta.Type),
		slog.String("id", msg.Meta.ID),
	)
	return nil
}

func (p *FallbackPublisher) Close() error {
	return nil
}

func NewFallback(logger *slog.Logger) Publisher {
	return &FallbackPublisher{
		log: orDiscard(logger),
	}
}
