package pubsub

import (
	"context"
	"errors"
	"log/slog"

	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

// MemoryTransport is an in-process Transport. Publish delivers synchronously
// on the caller's goroutine.
type MemoryTransport struct {
	registry *Registry
	log      *slog.Logger
}

var _ Transport = (*MemoryTransport)(nil)

func NewMemoryTransport(logger *slog.Logger) *MemoryTransport {
	return &MemoryTransport{registry: NewRegistry(), log: orDiscard(logger)}
}

func (m *MemoryTransport) On(topic string, h Handler) (ListenerID, error) {
	if topic == "" {
		return "", errors.New("memory transport: topic is empty")
	}
	if h == nil {
		return "", errors.New("memory transport: handler is nil")
	}
	id, _ := m.registry.Add(topic, h)
	return id, nil
}

func (m *MemoryTransport) RemoveListener(topic string, id ListenerID) error {
	m.registry.Remove(topic, id)
	return nil
}

// Publish delivers ev to every listener on topic and returns how many were called.
func (m *MemoryTransport) Publish(ctx context.Context, topic string, ev livechat.InquiryEvent) int {
	return m.registry.Dispatch(ctx, topic, ev, m.log)
}

func (m *MemoryTransport) ListenerCount(topic string) int { return m.registry.Count(topic) }

func (m *MemoryTransport) Topics() []string { return m.registry.Topics() }
