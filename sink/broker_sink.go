package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/infrastructure/broker"
	"context"
	"fmt"
	"time"
)

var _ contract.EventSink = (*BrokerSink)(nil)

const (
	messageEventType = "conversation.message.v1"
	joinEventType    = "conversation.joined.v1"
)

// MessageEvent is the payload published for every broadcast message.
type MessageEvent struct {
	ID              string    `json:"id"`
	ConversationSID string    `json:"conversation_sid"`
	SenderID        string    `json:"sender_id"`
	Text            string    `json:"text,omitempty"`
	MediaKey        string    `json:"media_key,omitempty"`
	MediaCategory   string    `json:"media_category,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	System          bool      `json:"system"`
}

// BrokerSink forwards broadcasts to the message broker, routed by
// "conversation.{sid}.message" or "conversation.{sid}.joined".
type BrokerSink struct {
	publisher broker.Publisher
}

func NewBrokerSink(publisher broker.Publisher) *BrokerSink {
	return &BrokerSink{publisher: publisher}
}

func (s *BrokerSink) Consume(ctx context.Context, message domain.Message) error {
	eventType, suffix := messageEventType, "message"
	if message.System {
		eventType, suffix = joinEventType, "joined"
	}
	envelope := broker.NewEnvelope(eventType, toEvent(message))
	id := message.ID.String()
	envelope.Meta.CorrelationID = &id
	return s.publisher.Publish(ctx, fmt.Sprintf("conversation.%s.%s", message.ConversationSID, suffix), envelope)
}

func toEvent(m domain.Message) MessageEvent {
	event := MessageEvent{
		ID:              m.ID.String(),
		ConversationSID: m.ConversationSID,
		SenderID:        m.SenderID.String(),
		Text:            m.Text,
		CreatedAt:       m.CreatedAt,
		System:          m.System,
	}
	if m.Media != nil {
		event.MediaKey = m.Media.Key
		event.MediaCategory = string(m.Media.Category)
	}
	return event
}
