package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
)

var _ contract.EventSink = (*SubscriberSink)(nil)

// SubscriberSink is the per-connection buffer between a topic and a live client.
type SubscriberSink struct {
	Messages chan domain.Message
}

func NewSubscriberSink(bufferSize int) *SubscriberSink {
	return &SubscriberSink{Messages: make(chan domain.Message, bufferSize)}
}

// Consume is called by the topic worker and never blocks it: when the client
// does not keep up, the message is dropped for this client only.
func (s *SubscriberSink) Consume(ctx context.Context, message domain.Message) error {
	select {
	case s.Messages <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrSubscriberBackpressure
	}
}
