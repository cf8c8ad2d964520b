// Package events publishes generation lifecycle events for downstream
// consumers (analytics, billing reconciliation).
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"prdgen/pkg/domain"
)

const routingKeyCompleted = "generation.completed"

// GenerationCompleted is the payload published after a record is persisted.
type GenerationCompleted struct {
	RecordID    string    `json:"recordId"`
	UserID      string    `json:"userId"`
	Plan        domain.Plan `json:"plan"`
	UsedAfter   int       `json:"usedAfter"`
	CompletedAt time.Time `json:"completedAt"`
}

// Publisher emits events to a RabbitMQ topic exchange. Publishing is
// fire-and-forget: failures are returned for logging but never abort the
// request that produced the event.
type Publisher struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// PublisherConfig configures the RabbitMQ publisher.
type PublisherConfig struct {
	URL      string
	Exchange string
}

// NewPublisher connects to RabbitMQ and declares the exchange.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("rabbitmq url required")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = "prdgen.events"
	}
	p := &Publisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return err
	}
	p.conn = conn
	p.channel = channel
	return nil
}

// PublishCompleted emits a generation.completed event. Safe to call on a nil
// publisher; reconnects once on a closed channel.
func (p *Publisher) PublishCompleted(ctx context.Context, event GenerationCompleted) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.publish(ctx, body); err == nil {
		return nil
	}
	if err := p.connect(); err != nil {
		return err
	}
	return p.publish(ctx, body)
}

func (p *Publisher) publish(ctx context.Context, body []byte) error {
	if p.channel == nil || p.channel.IsClosed() {
		return amqp.ErrClosed
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKeyCompleted, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
