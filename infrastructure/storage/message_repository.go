package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var _ contract.IMessageRepository = MessageRepository{}

const (
	messagePrefix   = "msg:"
	messageIDPrefix = "msgid:"
	seekSentinel    = "9999999999999999999"
)

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// DiskMessage is the persisted form of a domain.Message.
type DiskMessage struct {
	ID              string     `cbor:"id"`
	ConversationSID string     `cbor:"conversation"`
	SenderID        string     `cbor:"sender"`
	Text            string     `cbor:"text,omitempty"`
	Media           *DiskMedia `cbor:"media,omitempty"`
	At              int64      `cbor:"at"`
	Pending         bool       `cbor:"pending"`
	Sent            bool       `cbor:"sent"`
	Received        bool       `cbor:"received"`
	System          bool       `cbor:"system"`
}

type DiskMedia struct {
	Key         string `cbor:"key"`
	Category    string `cbor:"category"`
	ContentType string `cbor:"content_type,omitempty"`
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		messagePrefix,
		m.ConversationSID,
		m.CreatedAt.UnixNano(),
		m.ID,
	))
}

func messageIDKey(id uuid.UUID) []byte {
	return []byte(messageIDPrefix + id.String())
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{conversation}:{timestamp_padded}:{uuid}" so that a
// prefix scan returns a conversation's messages in chronological order, the uuid
// keeping two messages created at the same nanosecond apart.
// A "msgid:{uuid}" entry points back to the primary key for lookups by id.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	key := messageKey(message)
	bytes, err := cbor.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(messageIDKey(message.ID), key)
	})
}

func (m MessageRepository) GetMessage(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		_, value, err := lookup(txn, id)
		if err != nil {
			return err
		}
		message, err = DecodeMessage(value)
		return err
	})
	return message, err
}

// GetMessages retrieves messages for a conversation, newest first, using a reverse
// prefix scan. The returned cursor is the key suffix of the last message read and
// resumes the scan just after it.
func (m MessageRepository) GetMessages(conversationSID string, cursor *string) ([]domain.Message, *string, error) {
	var values [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix + conversationSID + ":"
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append([]byte(prefixStr), []byte(seekSentinel)...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(values) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(values))
	for _, v := range values {
		message, err := DecodeMessage(v)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	if len(messages) == 0 {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// UpdateFlags applies a partial update to the delivery flags of a message.
// Every other field is left as persisted.
func (m MessageRepository) UpdateFlags(id uuid.UUID, patch domain.DeliveryPatch) (domain.Message, error) {
	var updated domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		key, value, err := lookup(txn, id)
		if err != nil {
			return err
		}
		message, err := DecodeMessage(value)
		if err != nil {
			return err
		}
		message.Flags = message.Flags.Apply(patch)
		bytes, err := cbor.Marshal(fromMessage(message))
		if err != nil {
			return err
		}
		updated = message
		return txn.Set(key, bytes)
	})
	return updated, err
}

func (m MessageRepository) DeleteMessage(id uuid.UUID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		key, _, err := lookup(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(messageIDKey(id))
	})
}

func lookup(txn *badger.Txn, id uuid.UUID) ([]byte, []byte, error) {
	item, err := txn.Get(messageIDKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}
	item, err = txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	value, err := item.ValueCopy(nil)
	return key, value, err
}

// DecodeMessage reads a row written by StoreMessage.
func DecodeMessage(value []byte) (domain.Message, error) {
	var disk DiskMessage
	if err := cbor.Unmarshal(value, &disk); err != nil {
		return domain.Message{}, err
	}
	return toMessage(disk)
}

func fromMessage(m domain.Message) DiskMessage {
	return DiskMessage{
		ID:              m.ID.String(),
		ConversationSID: m.ConversationSID,
		SenderID:        string(m.SenderID),
		Text:            m.Text,
		Media:           fromMedia(m.Media),
		At:              m.CreatedAt.UnixNano(),
		Pending:         m.Flags.Pending,
		Sent:            m.Flags.Sent,
		Received:        m.Flags.Received,
		System:          m.System,
	}
}

func fromMedia(media *domain.MediaDescriptor) *DiskMedia {
	if media == nil {
		return nil
	}
	return &DiskMedia{Key: media.Key, Category: string(media.Category), ContentType: media.ContentType}
}

func toMessage(d DiskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:              parsedID,
		ConversationSID: d.ConversationSID,
		SenderID:        domain.UserID(d.SenderID),
		Text:            d.Text,
		CreatedAt:       time.Unix(0, d.At).UTC(),
		Flags:           domain.DeliveryFlags{Pending: d.Pending, Sent: d.Sent, Received: d.Received},
		System:          d.System,
	}
	if d.Media != nil {
		message.Media = &domain.MediaDescriptor{
			Key:         d.Media.Key,
			Category:    domain.Category(d.Media.Category),
			ContentType: d.Media.ContentType,
		}
	}
	return message, nil
}
