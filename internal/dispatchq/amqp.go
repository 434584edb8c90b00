package dispatchq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQPPublisher publishes envelopes to a durable topic exchange with
// persistent deliveries, so queued sends survive a broker restart.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      zerolog.Logger
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, log: logger}, nil
}

// Publish implements Publisher. Envelope meta ids are filled in when absent.
func (p *AMQPPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if env.Meta.ID == "" {
		env.Meta.ID = uuid.NewString()
	}
	if env.Meta.CorrelationID == "" {
		env.Meta.CorrelationID = uuid.NewString()
	}
	if env.Meta.OccurredAt.IsZero() {
		env.Meta.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     env.Meta.ID,
			CorrelationId: env.Meta.CorrelationID,
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
	if err == nil {
		p.log.Info().Str("key", key).Str("exchange", p.exchange).Msg("dispatchq: published")
	}
	return err
}

// Close implements Publisher.
func (p *AMQPPublisher) Close() error { return p.conn.Close() }
