// Package notify implements the outbound notification channel: events such
// as message.sent or consent.requested are published as persistent JSON
// messages on a durable RabbitMQ queue. When no broker is configured the
// Noop notifier is used.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Envelope is the JSON body of every published notification.
type Envelope struct {
	Topic      string    `json:"topic"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Noop drops every notification.
type Noop struct{}

// Notify implements services.Notifier.
func (Noop) Notify(context.Context, string, any) error { return nil }

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes notifications to one durable queue over a single
// channel. AMQP channels are not safe for concurrent publishing, so calls
// are serialized.
type Publisher struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	ch      channel
	queue   string
	timeout time.Duration
}

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("notify: publisher closed")

// NewPublisher dials url, opens a channel and declares queue as durable.
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, timeout: 5 * time.Second}, nil
}

// Notify publishes payload under topic. The topic is also set as the AMQP
// message type so consumers can route without decoding the body.
func (p *Publisher) Notify(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(Envelope{Topic: topic, OccurredAt: time.Now().UTC(), Payload: payload})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return ErrClosed
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         topic,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

// Close releases the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
