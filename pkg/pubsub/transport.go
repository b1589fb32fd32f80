package pubsub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

// Handler receives inquiry events for one topic. Handlers for the same
// topic are called sequentially, in delivery order.
type Handler func(ctx context.Context, ev livechat.InquiryEvent)

type ListenerID string

// Transport is a push-based inquiry stream with per-topic fan-out.
// Topics are "department/{id}" and "public".
//
// On must not invoke handlers synchronously.
type Transport interface {
	On(topic string, h Handler) (ListenerID, error)
	RemoveListener(topic string, id ListenerID) error
}

type listener struct {
	id ListenerID
	h  Handler
}

// Registry tracks listeners per topic. Transports use it to know when a
// topic gains its first listener or loses its last one.
type Registry struct {
	mu     sync.RWMutex
	topics map[string][]listener
}

func NewRegistry() *Registry {
	return &Registry{topics: map[string][]listener{}}
}

// Add registers h and reports whether it is the first listener on topic.
func (r *Registry) Add(topic string, h Handler) (ListenerID, bool) {
	id := ListenerID(uuid.NewString())
	r.mu.Lock()
	defer r.mu.Unlock()
	first := len(r.topics[topic]) == 0
	r.topics[topic] = append(r.topics[topic], listener{id: id, h: h})
	return id, first
}

// Remove unregisters id. last is true when the topic has no listeners left.
func (r *Registry) Remove(topic string, id ListenerID) (found, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls := r.topics[topic]
	for i, l := range ls {
		if l.id != id {
			continue
		}
		ls = append(ls[:i:i], ls[i+1:]...)
		if len(ls) == 0 {
			delete(r.topics, topic)
			return true, true
		}
		r.topics[topic] = ls
		return true, false
	}
	return false, false
}

func (r *Registry) Count(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Topics returns the topics with at least one listener, sorted.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.topics))
	for t := range r.topics {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Dispatch calls every listener on topic. A panicking handler is logged
// and does not stop delivery to the others.
func (r *Registry) Dispatch(ctx context.Context, topic string, ev livechat.InquiryEvent, logger *slog.Logger) int {
	r.mu.RLock()
	ls := append([]listener(nil), r.topics[topic]...)
	r.mu.RUnlock()

	for _, l := range ls {
		if err := safeCall(ctx, l.h, ev); err != nil && logger != nil {
			logger.Error("inquiry handler failed",
				slog.String("topic", topic),
				slog.String("inquiry_id", ev.ID),
				slog.Any("error", err),
			)
		}
	}
	return len(ls)
}

func safeCall(ctx context.Context, h Handler, ev livechat.InquiryEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	h(ctx, ev)
	return nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
