// Package events publishes delivery outcomes to a RabbitMQ exchange so
// downstream consumers (audit, BI) can follow the pipeline without
// touching its database. Publishing is best-effort: a broker outage
// never blocks or fails a delivery run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// OutcomeEvent is one delivery attempt result. It intentionally carries
// no contact data; consumers join on the job id if they need more.
type OutcomeEvent struct {
	JobID             string     `json:"jobId"`
	SourceID          string     `json:"sourceId"`
	Kind              string     `json:"kind"`
	Month             int        `json:"month"`
	Year              int        `json:"year"`
	Status            string     `json:"status"`
	FailureReason     string     `json:"failureReason,omitempty"`
	ProviderMessageID string     `json:"providerMessageId,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
}

// Publisher emits delivery outcome events.
type Publisher interface {
	Publish(ctx context.Context, event OutcomeEvent) error
	Close() error
}

// Config holds the outcome exchange settings.
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	VHost         string
	Exchange      string
	RoutingKey    string
	RetryAttempts int
	RetryInterval time.Duration
	Heartbeat     time.Duration
}

// AMQPPublisher publishes outcome events to a topic exchange.
type AMQPPublisher struct {
	config  *Config
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// NewAMQPPublisher connects to the broker and declares the outcome
// exchange. Connection failures are retried before giving up.
func NewAMQPPublisher(config *Config, logger *slog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		config: config,
		logger: logger,
	}

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to create outcome publisher: %w", err)
	}

	return p, nil
}

func (p *AMQPPublisher) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		p.config.User,
		p.config.Password,
		p.config.Host,
		p.config.Port,
		p.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: p.config.Heartbeat,
		Locale:    "en_US",
	}

	attempts := p.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		p.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		p.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			break
		}

		p.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(p.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	err = p.channel.ExchangeDeclare(
		p.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		p.channel.Close()
		p.conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.logger.Info("Outcome publisher initialized",
		slog.String("exchange", p.config.Exchange),
		slog.String("routing_key", p.config.RoutingKey),
	)

	return nil
}

// Publish emits one outcome event. The routing key gets the job kind
// appended so consumers can bind per family.
func (p *AMQPPublisher) Publish(ctx context.Context, event OutcomeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode outcome event: %w", err)
	}

	routingKey := p.config.RoutingKey
	if event.Kind != "" {
		routingKey = routingKey + "." + event.Kind
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.config.Exchange, // exchange
		routingKey,        // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish outcome event: %w", err)
	}

	p.logger.Debug("Outcome event published",
		slog.String("job_id", event.JobID),
		slog.String("routing_key", routingKey),
	)

	return nil
}

// Close closes the broker connection.
func (p *AMQPPublisher) Close() error {
	p.logger.Info("Closing outcome publisher")

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
		}
	}

	return nil
}

// NopPublisher discards events. Used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OutcomeEvent) error { return nil }
func (NopPublisher) Close() error                                { return nil }
