package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
)

var _ contract.EventSink = (*IndexSink)(nil)

// IndexSink makes broadcast messages searchable. System messages are skipped.
type IndexSink struct {
	index contract.IMessageIndex
}

func NewIndexSink(index contract.IMessageIndex) *IndexSink {
	return &IndexSink{index: index}
}

func (s *IndexSink) Consume(ctx context.Context, message domain.Message) error {
	if message.System {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.index.Index(message)
}
