package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/roboricindustries/raycon-livequeue/pkg/schemas/common"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

type Publisher interface {
	Publish(ctx context.Context, key string, msg common.Envelope) error
	Close() error
}

// rmqPublisher publishes on a single confirm-mode channel.
type rmqPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *slog.Logger
}

// NewPublisher dials RabbitMQ and declares exchange as a durable topic exchange.
func NewPublisher(ctx context.Context, opts ConnectionOptions, exchange string) (Publisher, error) {
	if exchange == "" {
		return nil, errors.New("exchange is required")
	}
	conn, err := DialWithRetry(ctx, opts)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, err
	}

	return &rmqPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		log:      orDiscard(opts.Logger),
	}, nil
}

func (r *rmqPublisher) Publish(ctx context.Context, key string, msg common.Envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msg.Meta.Correlation()
	if cid == "" {
		cid = msgID
	}
	ts := msg.Meta.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	conf, err := r.ch.PublishWithDeferredConfirmWithContext(
		ctx, r.exchange, key, false, false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     msgID,
			CorrelationId: cid,
			Type:          msg.Meta.Type,
			Timestamp:     ts,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("publish %s: nacked by broker", key)
	}
	r.log.Debug("published", slog.String("key", key), slog.String("exchange", r.exchange))
	return nil
}

func (r *rmqPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.ch.Close()
	return r.conn.Close()
}

// PublishInquiryEvent sends ev on topic through p, using the routing layout
// the AMQP transport binds to.
func PublishInquiryEvent(ctx context.Context, p Publisher, routingPrefix, topic string, ev livechat.InquiryEvent, producer string) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	env := common.NewEnvelope(livechat.EventTypeInquiry, ev, producer)
	return p.Publish(ctx, RoutingKey(FirstNonEmpty(routingPrefix, livechat.RoutingPrefix), topic), env)
}
