package pubsub

import (
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetterConfig parks undecodable inquiry deliveries in a durable queue
// instead of dropping them.
type DeadLetterConfig struct {
	Exchange string
	Queue    string
	// TTL expires parked messages. Zero keeps them until consumed.
	TTL time.Duration
}

func (c DeadLetterConfig) Enabled() bool { return c.Exchange != "" }

// queueArgs are the arguments of the consuming queue that route rejected
// deliveries to the dead-letter exchange.
func (c DeadLetterConfig) queueArgs() amqp.Table {
	if !c.Enabled() {
		return nil
	}
	return amqp.Table{"x-dead-letter-exchange": c.Exchange}
}

// topology is the subset of *amqp.Channel used to declare exchanges and queues.
type topology interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

var _ topology = (*amqp.Channel)(nil)

// SetupDeadLetter declares the dead-letter exchange and its parking queue,
// bound to every routing key.
func SetupDeadLetter(ch topology, cfg DeadLetterConfig) error {
	if !cfg.Enabled() {
		return errors.New("dead letter exchange is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = cfg.Exchange + ".parked"
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	var args amqp.Table
	if cfg.TTL > 0 {
		args = amqp.Table{"x-message-ttl": int32(cfg.TTL.Milliseconds())}
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, "#", cfg.Exchange, false, nil)
}
