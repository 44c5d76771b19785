package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"supportbridge/internal/logutil"
)

const eventProducer = "supportbridge"

// EventMeta describes one published event.
type EventMeta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"` // e.g. support.registration.completed.v1
}

type Envelope struct {
	Meta EventMeta `json:"meta"`
	Data any       `json:"data"`
}

// NewEnvelope wraps data with a fresh event id. The request id on ctx, if
// any, becomes the correlation id.
func NewEnvelope(ctx context.Context, eventType string, data any, now time.Time) Envelope {
	meta := EventMeta{
		ID:       uuid.NewString(),
		Producer: eventProducer,
		Time:     now.UTC(),
		Type:     eventType,
	}
	if rid := logutil.RequestID(ctx); rid != "" {
		meta.CorrelationID = &rid
	}
	return Envelope{Meta: meta, Data: data}
}

// AMQPPublisher publishes JSON envelopes to a topic exchange, routed by event type.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, exchange: exchange, log: logger}, nil
}

// newPublishing builds the persistent message for one event. The routing key
// is the event type. The correlation id falls back to the event id.
func newPublishing(env Envelope) (routingKey string, msg amqp091.Publishing, err error) {
	body, err := json.Marshal(env)
	if err != nil {
		return "", amqp091.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	cid := env.Meta.ID
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}
	return env.Meta.Type, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: cid,
		Timestamp:     env.Meta.Time,
		Type:          env.Meta.Type,
		Body:          body,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, data any) error {
	key, msg, err := newPublishing(NewEnvelope(ctx, eventType, data, time.Now()))
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return err
	}
	p.log.Debug("event published", slog.String("type", eventType), slog.String("exchange", p.exchange))
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}
