// Package rabbitmq implements the queue half of the substrate on AMQP.
// It provides no key-value store or distributed lock; assemble it with a
// KV/Locker implementation via brokers.Composite.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tarik02-org/mediabot/errors"
)

// RabbitMQBroker implements the core.Queue interface for RabbitMQ
type RabbitMQBroker struct {
	mu             sync.Mutex
	connection     *amqp.Connection
	channel        *amqp.Channel
	options        Options
	declaredQueues map[string]bool
}

// NewBroker creates a new RabbitMQ queue transport
func NewBroker(options Options) *RabbitMQBroker {
	return &RabbitMQBroker{
		options:        options,
		declaredQueues: make(map[string]bool),
	}
}

// Connect establishes connection to RabbitMQ
func (r *RabbitMQBroker) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := amqp.Dial(r.options.URI)
	if err != nil {
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("failed to connect to RabbitMQ: %w", err))
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("failed to open channel: %w", err))
	}

	r.connection = conn
	r.channel = ch
	return nil
}

// Close closes the channel and connection
func (r *RabbitMQBroker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
		r.channel = nil
	}
	if r.connection != nil {
		err := r.connection.Close()
		r.connection = nil
		return err
	}
	return nil
}

// Health checks the connection health
func (r *RabbitMQBroker) Health() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connection == nil || r.connection.IsClosed() {
		return errors.ErrNotConnected
	}
	return nil
}

// Type returns the broker type
func (r *RabbitMQBroker) Type() string {
	return "rabbitmq"
}

// Push publishes a message onto the named queue
func (r *RabbitMQBroker) Push(ctx context.Context, queue string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel == nil {
		return errors.ErrNotConnected
	}

	if err := r.declareQueue(queue); err != nil {
		return err
	}

	err := r.channel.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		})
	if err != nil {
		return errors.NewBrokerError("push", queue, err)
	}

	return nil
}

// BlockingPop polls the queue with Get until a message arrives or
// timeout elapses. Returns (nil, nil) when the queue stayed empty.
func (r *RabbitMQBroker) BlockingPop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		payload, ok, err := r.get(queue)
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(r.options.PollInterval):
		}
	}
}

func (r *RabbitMQBroker) get(queue string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel == nil {
		return nil, false, errors.ErrNotConnected
	}

	if err := r.declareQueue(queue); err != nil {
		return nil, false, err
	}

	delivery, ok, err := r.channel.Get(queue, true) // autoAck
	if err != nil {
		return nil, false, errors.NewBrokerError("pop", queue, err)
	}
	if !ok {
		return nil, false, nil
	}

	return delivery.Body, true, nil
}

// declareQueue declares a queue once per connection. Caller holds the lock.
func (r *RabbitMQBroker) declareQueue(queue string) error {
	if r.declaredQueues[queue] {
		return nil
	}

	_, err := r.channel.QueueDeclare(
		queue,
		r.options.Durable,
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return errors.NewBrokerError("declare", queue, err)
	}

	r.declaredQueues[queue] = true
	return nil
}
