package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

// -----------------------------------------------------------------------------
// AMQP inquiry transport
// -----------------------------------------------------------------------------

// RabbitMQConfig configures the AMQP transport and publisher.
type RabbitMQConfig struct {
	URL                         string
	Exchange                    string // topic exchange, default livechat.inquiries
	RoutingPrefix               string // default "inquiry"
	ConsumerPrefetch            int
	RetryAttempts               int
	RetryDelay                  time.Duration
	ReconnectBackoffBaseSeconds int
	ReconnectBackoffCapSeconds  int
	ReconnectJitterPercent      int
	DeadLetter                  DeadLetterConfig
	Dialer                      func(ctx context.Context, url string) (*amqp.Connection, error)
}

func (c RabbitMQConfig) withDefaults() RabbitMQConfig {
	c.Exchange = FirstNonEmpty(c.Exchange, livechat.InquiryMeta.Exchange)
	c.RoutingPrefix = FirstNonEmpty(c.RoutingPrefix, livechat.RoutingPrefix)
	if c.ConsumerPrefetch <= 0 {
		c.ConsumerPrefetch = 32
	}
	return c
}

// AMQPTransport binds one exclusive queue to the inquiry exchange and adds
// or removes a binding as topics gain their first or lose their last listener.
type AMQPTransport struct {
	cfg      RabbitMQConfig
	logger   *slog.Logger
	registry *Registry
	closed   atomic.Bool

	mu         sync.Mutex // guards conn, ch, queue, deliveries
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

var _ Transport = (*AMQPTransport)(nil)

func NewAMQPTransport(ctx context.Context, cfg RabbitMQConfig, logger *slog.Logger) (*AMQPTransport, error) {
	const op = "pubsub.NewAMQPTransport"

	if cfg.URL == "" {
		return nil, errors.New("rabbitmq URL is required")
	}
	t := &AMQPTransport{
		cfg:      cfg.withDefaults(),
		logger:   orDiscard(logger).With("op", op),
		registry: NewRegistry(),
	}
	u, _ := url.Parse(cfg.URL)
	host := ""
	if u != nil {
		host = u.Host
	}
	t.logger.Info("connecting to rabbitmq", slog.String("host", host), slog.String("exchange", t.cfg.Exchange))

	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// connect dials, declares the topology and re-binds every known topic.
func (t *AMQPTransport) connect(ctx context.Context) error {
	conn, err := DialWithRetry(ctx, ConnectionOptions{
		URL:           t.cfg.URL,
		RetryAttempts: t.cfg.RetryAttempts,
		Delay:         t.cfg.RetryDelay,
		Logger:        t.logger,
		Dialer:        t.cfg.Dialer,
	})
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	fail := func(step string, err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("%s: %w", step, err)
	}
	if err := ch.Qos(t.cfg.ConsumerPrefetch, 0, false); err != nil {
		return fail("qos", err)
	}
	if err := ch.ExchangeDeclare(t.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	if t.cfg.DeadLetter.Enabled() {
		if err := SetupDeadLetter(ch, t.cfg.DeadLetter); err != nil {
			return fail("declare dead letter", err)
		}
	}
	// server-named, exclusive, auto-delete: the queue lives as long as this connection
	q, err := ch.QueueDeclare("", false, true, true, false, t.cfg.DeadLetter.queueArgs())
	if err != nil {
		return fail("declare queue", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, topic := range t.registry.Topics() {
		if err := ch.QueueBind(q.Name, RoutingKey(t.cfg.RoutingPrefix, topic), t.cfg.Exchange, false, nil); err != nil {
			return fail("bind "+topic, err)
		}
	}
	msgs, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fail("consume", err)
	}
	t.conn, t.ch, t.queue, t.deliveries = conn, ch, q.Name, msgs
	return nil
}

func (t *AMQPTransport) On(topic string, h Handler) (ListenerID, error) {
	if topic == "" {
		return "", errors.New("amqp transport: topic is empty")
	}
	if h == nil {
		return "", errors.New("amqp transport: handler is nil")
	}
	id, first := t.registry.Add(topic, h)
	if !first {
		return id, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil || t.ch.IsClosed() {
		// bound on reconnect
		return id, nil
	}
	key := RoutingKey(t.cfg.RoutingPrefix, topic)
	if err := t.ch.QueueBind(t.queue, key, t.cfg.Exchange, false, nil); err != nil {
		t.registry.Remove(topic, id)
		return "", fmt.Errorf("bind %s: %w", key, err)
	}
	t.logger.Debug("topic bound", slog.String("topic", topic), slog.String("routing_key", key))
	return id, nil
}

func (t *AMQPTransport) RemoveListener(topic string, id ListenerID) error {
	found, last := t.registry.Remove(topic, id)
	if !found || !last {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch == nil || t.ch.IsClosed() {
		return nil
	}
	key := RoutingKey(t.cfg.RoutingPrefix, topic)
	if err := t.ch.QueueUnbind(t.queue, key, t.cfg.Exchange, nil); err != nil {
		return fmt.Errorf("unbind %s: %w", key, err)
	}
	return nil
}

// Run consumes deliveries until ctx is done, reconnecting with jittered
// exponential backoff when the connection drops.
func (t *AMQPTransport) Run(ctx context.Context) error {
	base := Dsec(t.cfg.ReconnectBackoffBaseSeconds, 1)
	capd := Dsec(t.cfg.ReconnectBackoffCapSeconds, 30)

	for {
		t.mu.Lock()
		conn, msgs := t.conn, t.deliveries
		t.mu.Unlock()
		if conn == nil {
			if t.closed.Load() {
				return nil
			}
			return errors.New("amqp transport: not connected")
		}

		err := t.consume(ctx, msgs, conn.NotifyClose(make(chan *amqp.Error, 1)))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.closed.Load() {
			return nil
		}
		t.logger.Error("amqp consumer stopped, reconnecting", slog.Any("error", err))

		// reconnect loop
		backoff := base
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.closeConn()
			rerr := t.connect(ctx)
			if rerr == nil {
				t.logger.Info("reconnected", slog.Int("topics", len(t.registry.Topics())))
				break
			}
			wait := JitteredDelay(backoff, capd, t.cfg.ReconnectJitterPercent)
			t.logger.Error("reconnect failed", slog.Any("error", rerr), slog.Duration("retry_in", wait))
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			if backoff*2 < capd {
				backoff *= 2
			}
		}
	}
}

func (t *AMQPTransport) consume(ctx context.Context, msgs <-chan amqp.Delivery, closed <-chan *amqp.Error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case aerr, ok := <-closed:
			if !ok || aerr == nil {
				return errors.New("connection closed")
			}
			return aerr
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			t.handleDelivery(ctx, d)
		}
	}
}

func (t *AMQPTransport) handleDelivery(ctx context.Context, d amqp.Delivery) {
	topic, ev, err := t.decodeDelivery(d)
	if err != nil {
		// never requeued; redelivery would fail the same way
		t.logger.Warn("rejecting inquiry delivery",
			slog.String("routing_key", d.RoutingKey),
			slog.String("message_id", d.MessageId),
			slog.Bool("dead_lettered", t.cfg.DeadLetter.Enabled()),
			slog.Any("error", err),
		)
		if t.cfg.DeadLetter.Enabled() {
			_ = d.Nack(false, false)
		} else {
			_ = d.Ack(false)
		}
		return
	}
	t.registry.Dispatch(ctx, topic, ev, t.logger)
	_ = d.Ack(false)
}

func (t *AMQPTransport) decodeDelivery(d amqp.Delivery) (string, livechat.InquiryEvent, error) {
	topic, ok := TopicFromRoutingKey(t.cfg.RoutingPrefix, d.RoutingKey)
	if !ok {
		return "", livechat.InquiryEvent{}, fmt.Errorf("%w: routing key %q outside prefix %q", ErrPoison, d.RoutingKey, t.cfg.RoutingPrefix)
	}
	ev, err := DecodeEvent(d.Body)
	if err != nil {
		return "", ev, err
	}
	return topic, ev, nil
}

func (t *AMQPTransport) closeConn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ch != nil {
		_ = t.ch.Close()
	}
	if t.conn != nil && !t.conn.IsClosed() {
		_ = t.conn.Close()
	}
	t.ch, t.conn, t.deliveries = nil, nil, nil
}

// Close stops consuming and closes the connection.
func (t *AMQPTransport) Close() error {
	t.closed.Store(true)
	t.closeConn()
	return nil
}
