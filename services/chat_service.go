package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Relay is the broadcast side used by the chat service.
type Relay interface {
	Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	Subscribe(ctx context.Context, conversationSID, subscriber string, sink contract.EventSink) (func(), error)
}

// Attachment is an uploaded file waiting to be stored.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type PostMessageCommand struct {
	ConversationSID string
	SenderID        domain.UserID
	Text            string
	Attachment      *Attachment
	Flags           domain.DeliveryFlags
}

type IChatService interface {
	PostMessage(ctx context.Context, cmd PostMessageCommand) (domain.Message, error)
	GetMessage(id uuid.UUID) (domain.Message, error)
	GetMessages(conversationSID string, cursor *string) ([]domain.Message, *string, error)
	PatchDelivery(id uuid.UUID, patch domain.DeliveryPatch) (domain.Message, error)
	SearchMessages(ctx context.Context, conversationSID, query string, limit int) ([]domain.Message, error)
	Join(ctx context.Context, conversationSID string, userID domain.UserID, sink contract.EventSink) (func(), error)
	Online(ctx context.Context, conversationSID string) ([]string, error)
}

type ChatService struct {
	relay      Relay
	media      IMediaGateway
	guard      contract.ConversationGuard
	repository contract.IMessageRepository
	index      contract.IMessageIndex
	presence   contract.PresenceTracker
	users      contract.UserDirectory
	log        *slog.Logger
}

func NewChatService(
	relay Relay,
	media IMediaGateway,
	guard contract.ConversationGuard,
	repository contract.IMessageRepository,
	index contract.IMessageIndex,
	presence contract.PresenceTracker,
	users contract.UserDirectory,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		relay:      relay,
		media:      media,
		guard:      guard,
		repository: repository,
		index:      index,
		presence:   presence,
		users:      users,
		log:        log,
	}
}

// PostMessage stores the attachment, if any, then relays the message. A media
// failure aborts the send.
func (s *ChatService) PostMessage(ctx context.Context, cmd PostMessageCommand) (domain.Message, error) {
	if cmd.Text == "" && cmd.Attachment == nil {
		return domain.Message{}, errors.ErrEmptyMessage
	}
	var media *domain.MediaDescriptor
	if a := cmd.Attachment; a != nil {
		// Checked first so no blob is left behind for a missing conversation.
		if err := s.guard.EnsureExists(ctx, cmd.ConversationSID); err != nil {
			return domain.Message{}, err
		}
		descriptor, err := s.media.PutMedia(ctx, cmd.ConversationSID, a.Filename, a.ContentType, a.Body, a.Size)
		if err != nil {
			return domain.Message{}, err
		}
		observability.MediaBytes.WithLabelValues(string(descriptor.Category)).Add(float64(a.Size))
		media = &descriptor
	}
	message, err := s.relay.Send(ctx, domain.SendMessageCommand{
		ConversationSID: cmd.ConversationSID,
		SenderID:        cmd.SenderID,
		Text:            cmd.Text,
		Media:           media,
		Flags:           cmd.Flags,
	})
	if err != nil && media != nil {
		s.dropOrphan(ctx, media.Key)
	}
	return message, err
}

// dropOrphan deletes an attachment whose message was never persisted. It runs
// even when the request is gone.
func (s *ChatService) dropOrphan(ctx context.Context, key string) {
	if err := s.media.DeleteMedia(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn("Orphaned attachment left in store", "key", key, "error", err)
		return
	}
	s.log.Debug("Orphaned attachment deleted", "key", key)
}

func (s *ChatService) GetMessage(id uuid.UUID) (domain.Message, error) {
	return s.repository.GetMessage(id)
}

func (s *ChatService) GetMessages(conversationSID string, cursor *string) ([]domain.Message, *string, error) {
	return s.repository.GetMessages(conversationSID, cursor)
}

// PatchDelivery updates delivery flags only; nil fields are left as stored.
func (s *ChatService) PatchDelivery(id uuid.UUID, patch domain.DeliveryPatch) (domain.Message, error) {
	return s.repository.UpdateFlags(id, patch)
}

// SearchMessages parses query, then resolves index hits back to stored messages
// in relevance order. Hits whose message is gone are skipped.
func (s *ChatService) SearchMessages(ctx context.Context, conversationSID, query string, limit int) ([]domain.Message, error) {
	parsed := search.NewSearchQuery(conversationSID, query, limit)
	if parsed.Empty() {
		return nil, fmt.Errorf("%w: empty search", errors.ErrInvalidRequest)
	}
	ids, err := s.index.Search(ctx, parsed)
	if err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		m, err := s.repository.GetMessage(id)
		if errors.IsNotFound(err) {
			s.log.Debug("Stale search hit", "message_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Join subscribes sink to the conversation. The join announcement names the
// user by login, or by id when the directory does not know it.
func (s *ChatService) Join(ctx context.Context, conversationSID string, userID domain.UserID, sink contract.EventSink) (func(), error) {
	subscriber := userID.String()
	if user, err := s.users.GetUser(ctx, userID); err == nil && user.Login != "" {
		subscriber = user.Login
	}
	return s.relay.Subscribe(ctx, conversationSID, subscriber, sink)
}

// Online lists live subscribers; without a presence tracker nobody is reported.
func (s *ChatService) Online(ctx context.Context, conversationSID string) ([]string, error) {
	if err := s.guard.EnsureExists(ctx, conversationSID); err != nil {
		return nil, err
	}
	if s.presence == nil {
		return []string{}, nil
	}
	return s.presence.Online(ctx, conversationSID)
}
