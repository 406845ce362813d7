package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// EventProducer publishes core events to a RabbitMQ topic exchange.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	conn, err := amqp091.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("NewEventProducer: dial: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewEventProducer: channel: %w", err)
	}

	err = channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("NewEventProducer: declare exchange: %w", err)
	}

	return &EventProducer{conn: conn, channel: channel, exchange: exchange}, nil
}

func (p *EventProducer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("Publish: marshal: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false,
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        payload,
		},
	)
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// AMQPNotifier adapts the producer to the Notifier interface. Publish
// failures are logged, never propagated.
type AMQPNotifier struct {
	producer *EventProducer
	logger   *slog.Logger
}

func NewAMQPNotifier(producer *EventProducer, logger *slog.Logger) *AMQPNotifier {
	return &AMQPNotifier{producer: producer, logger: logger}
}

func (n *AMQPNotifier) Notify(ctx context.Context, kind string, payload map[string]any) {
	if err := n.producer.Publish(ctx, kind, payload); err != nil {
		n.logger.Warn("notification publish failed", "kind", kind, "error", err)
	}
}
