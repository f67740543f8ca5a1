package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/marketlane/checkout/internal/domain/order"
)

// Publisher publishes order confirmations to a durable AMQP queue consumed
// by the notification dispatcher.
type Publisher struct {
	conn  *amqp.Connection
	queue string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher dials the broker and declares the queue.
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare queue %s", queue)
	}

	return &Publisher{conn: conn, queue: queue, ch: ch}, nil
}

// OrderConfirmed publishes one confirmation job keyed by order id.
// A single attempt, no retries: the contract with order creation is
// at-most-one enqueue per order.
func (p *Publisher) OrderConfirmed(ctx context.Context, c order.Confirmation) error {
	body, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal confirmation")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    c.OrderID,
		Body:         body,
	})
	if err != nil {
		return errors.Wrap(err, "publish confirmation")
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return errors.Wrap(err, "close channel")
	}
	return p.conn.Close()
}
