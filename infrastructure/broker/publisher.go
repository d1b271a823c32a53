// Package broker publishes relay events to an AMQP topic exchange for
// downstream consumers (notifications, analytics).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const producer = "chat-relay"

type Meta struct {
	CorrelationID *string   `json:"correlation_id,omitempty"`
	ID            string    `json:"id"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope stamps data with a fresh event id.
func NewEnvelope(eventType string, data any) Envelope {
	return Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: producer,
			Time:     time.Now().UTC(),
			Type:     eventType,
		},
		Data: data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

type rmqClient struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// New dials the broker and declares a durable topic exchange.
func New(url, exchange string, logger *slog.Logger) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &rmqClient{conn: conn, exchange: exchange, log: logger}, nil
}

func (r *rmqClient) Publish(ctx context.Context, key string, msg Envelope) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if msg.Meta.CorrelationID != nil {
		cid = *msg.Meta.CorrelationID
	}

	err = ch.PublishWithContext(
		ctx, r.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     msgID,
			CorrelationId: cid,
			Timestamp:     msg.Meta.Time,
			Type:          msg.Meta.Type,
			AppId:         producer,
			Body:          body,
		},
	)
	if err == nil {
		r.log.Debug("published", slog.String("key", key), slog.String("exchange", r.exchange))
	}
	return err
}

func (r *rmqClient) Close() error {
	return r.conn.Close()
}
