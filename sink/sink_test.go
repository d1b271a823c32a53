package sink

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/broker"
	"chat-relay/mocks"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSubscriberSink_Drops_When_Full(t *testing.T) {
	req := require.New(t)
	sink := NewSubscriberSink(1)
	ctx := context.Background()
	first := domain.Message{ID: uuid.New(), Text: "first"}

	req.NoError(sink.Consume(ctx, first))
	req.ErrorIs(sink.Consume(ctx, domain.Message{ID: uuid.New()}), errors.ErrSubscriberBackpressure)
	req.Equal(first, <-sink.Messages)
}

func TestIndexSink_Skips_System_Messages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	index := mocks.NewMockIMessageIndex(ctrl)
	message := domain.Message{ID: uuid.New(), ConversationSID: "CH1", Text: "hello"}

	index.EXPECT().Index(message).Return(nil).Times(1)

	s := NewIndexSink(index)
	req.NoError(s.Consume(context.Background(), message))
	req.NoError(s.Consume(context.Background(), domain.JoinAnnouncement("CH1", "alice", time.Now())))
}

type recordingPublisher struct {
	keys      []string
	envelopes []broker.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, key string, msg broker.Envelope) error {
	p.keys = append(p.keys, key)
	p.envelopes = append(p.envelopes, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestBrokerSink_Routing_Keys(t *testing.T) {
	req := require.New(t)
	publisher := &recordingPublisher{}
	s := NewBrokerSink(publisher)
	message := domain.Message{
		ID:              uuid.New(),
		ConversationSID: "CH1",
		SenderID:        "U1",
		Media:           &domain.MediaDescriptor{Key: "CH1/image/x-a.png", Category: domain.Image},
	}

	req.NoError(s.Consume(context.Background(), message))
	req.NoError(s.Consume(context.Background(), domain.JoinAnnouncement("CH1", "alice", time.Now())))

	req.Equal([]string{"conversation.CH1.message", "conversation.CH1.joined"}, publisher.keys)
	req.Equal(messageEventType, publisher.envelopes[0].Meta.Type)
	req.Equal(message.ID.String(), *publisher.envelopes[0].Meta.CorrelationID)
	event := publisher.envelopes[0].Data.(MessageEvent)
	req.Equal("image", event.MediaCategory)
}
