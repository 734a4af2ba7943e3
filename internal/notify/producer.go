package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/btech/servicedesk/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher delivers notification events to the message broker.
type Publisher interface {
	Publish(ctx context.Context, event domain.NotificationEvent) error
	Close() error
}

// AMQPPublisher publishes events to a RabbitMQ topic exchange. Routing
// key is the event type, so consumers can bind selectively.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify: failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("notify: failed to declare exchange %q: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// Publish sends one event as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, event domain.NotificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("notify: failed to publish %s event: %w", event.Type, err)
	}

	return nil
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		return fmt.Errorf("notify: failed to close channel: %w", err)
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("notify: failed to close connection: %w", err)
	}
	return nil
}

// NopPublisher logs events instead of delivering them. Used when no
// broker is configured, so the core never depends on one being up.
type NopPublisher struct {
	logger *zap.Logger
}

// NewNopPublisher creates a new NopPublisher.
func NewNopPublisher(logger *zap.Logger) *NopPublisher {
	return &NopPublisher{logger: logger}
}

func (p *NopPublisher) Publish(_ context.Context, event domain.NotificationEvent) error {
	p.logger.Debug("notification dropped (no broker configured)",
		zap.String("type", event.Type),
		zap.Int64("user_id", event.UserID),
	)
	return nil
}

func (p *NopPublisher) Close() error { return nil }
