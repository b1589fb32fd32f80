package queue

import (
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub"
)

// Subscription is the handle returned by Activate. Closing it tears down
// the activation it belongs to, unless a newer one replaced it already.
type Subscription struct {
	id string

	mu       sync.Mutex
	children []io.Closer
	closed   bool
	release  func(*Subscription)
}

func newSubscription(release func(*Subscription)) *Subscription {
	return &Subscription{id: uuid.NewString(), release: release}
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) add(c io.Closer) {
	s.mu.Lock()
	s.children = append(s.children, c)
	s.mu.Unlock()
}

// Len returns the number of live child handles.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// Close is idempotent.
func (s *Subscription) Close() error {
	first, err := s.close()
	if first && s.release != nil {
		s.release(s)
	}
	return err
}

func (s *Subscription) dispose() error {
	_, err := s.close()
	return err
}

// close closes the children last-in first-out. Only the first call does work.
func (s *Subscription) close() (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, nil
	}
	s.closed = true
	children := s.children
	s.children = nil
	s.mu.Unlock()

	var errs []error
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

// listenerHandle removes one transport listener on Close.
type listenerHandle struct {
	transport pubsub.Transport
	topic     string
	id        pubsub.ListenerID
}

func (h listenerHandle) Close() error {
	return h.transport.RemoveListener(h.topic, h.id)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
