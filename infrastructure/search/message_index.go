// Package search indexes message text with bluge so a conversation's history
// can be searched without scanning badger.
package search

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/search"
	"context"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

var _ contract.IMessageIndex = (*MessageIndex)(nil)

const (
	conversationField = "conversation"
	senderField       = "sender"
	textField         = "text"
	idField           = "_id"
)

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index adds or replaces the document of a message. System messages and messages
// without text are not searchable.
func (i *MessageIndex) Index(message domain.Message) error {
	if message.System || message.Text == "" {
		return nil
	}
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(conversationField, message.ConversationSID)).
		AddField(bluge.NewKeywordField(senderField, message.SenderID.String())).
		AddField(bluge.NewTextField(textField, message.Text))
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", message.ID, err)
	}
	return nil
}

func (i *MessageIndex) Delete(id uuid.UUID) error {
	return i.writer.Delete(bluge.Identifier(id.String()))
}

// Search returns the ids of the best matching messages of one conversation,
// optionally narrowed to one sender.
func (i *MessageIndex) Search(ctx context.Context, q search.Query) ([]uuid.UUID, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(q.ConversationSID).SetField(conversationField))
	if q.Terms != "" {
		query.AddMust(bluge.NewMatchQuery(q.Terms).SetField(textField))
	}
	if q.SenderID != "" {
		query.AddMust(bluge.NewTermQuery(q.SenderID).SetField(senderField))
	}
	matches, err := reader.Search(ctx, bluge.NewTopNSearch(q.Limit, query))
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	match, err := matches.Next()
	for err == nil && match != nil {
		var id uuid.UUID
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == idField {
				id, err = uuid.ParseBytes(value)
				return false
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		if err != nil {
			i.log.Warn("Skipping indexed document with invalid id", "error", err)
		} else {
			ids = append(ids, id)
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}
