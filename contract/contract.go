//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/search"
	"context"
	"io"
	"reflect"
	"time"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Spawn(ctx context.Context, worker Worker) error
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives every message broadcast on a topic, in publication order.
type EventSink interface {
	Consume(ctx context.Context, message domain.Message) error
}

type IRegistry interface {
	SinksFor(conversationSID string) []EventSink
	Subscribe(subscriptionID, conversationSID string, sink EventSink)
	Unsubscribe(subscriptionID, conversationSID string)
	Count(conversationSID string) int
}

// ConversationProvider is the port to the external, authoritative conversation
// service. Lookup misses must be reported as errors.ErrNotFound so they can be
// told apart from real failures.
type ConversationProvider interface {
	CreateConversation(ctx context.Context, draft domain.ConversationDraft) (domain.Conversation, error)
	FetchConversation(ctx context.Context, keyOrSID string) (domain.Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error)
	DeleteConversation(ctx context.Context, sid string) error
	AddParticipant(ctx context.Context, conversationSID string, draft domain.ParticipantDraft) (domain.Participant, error)
}

// IdentityProvider is the write side of the external identity directory.
type IdentityProvider interface {
	FetchIdentity(ctx context.Context, id domain.UserID) (domain.Identity, error)
	CreateIdentity(ctx context.Context, user domain.User) (domain.Identity, error)
	UpdateIdentity(ctx context.Context, user domain.User) (domain.Identity, error)
}

// UserDirectory is the read-only view of local users.
type UserDirectory interface {
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// ConversationGuard confirms a conversation exists before messages are relayed to it.
type ConversationGuard interface {
	EnsureExists(ctx context.Context, conversationSID string) error
}

type PutObject struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Policy      AccessPolicy
}

type AccessPolicy string

const AuthenticatedRead AccessPolicy = "authenticated-read"

type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// BlobStore holds attachment bytes. Get returns errors.ErrNotFound for unknown keys;
// deleting an unknown key is not an error.
type BlobStore interface {
	Put(ctx context.Context, obj PutObject) error
	Get(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
}

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetMessage(id uuid.UUID) (domain.Message, error)
	GetMessages(conversationSID string, cursor *string) ([]domain.Message, *string, error)
	UpdateFlags(id uuid.UUID, patch domain.DeliveryPatch) (domain.Message, error)
	DeleteMessage(id uuid.UUID) error
}

type IMessageIndex interface {
	Index(message domain.Message) error
	Delete(id uuid.UUID) error
	Search(ctx context.Context, query search.Query) ([]uuid.UUID, error)
}

// PresenceTracker records who is currently subscribed to a conversation.
type PresenceTracker interface {
	Join(ctx context.Context, conversationSID, subscriber string, ttl time.Duration) error
	Leave(ctx context.Context, conversationSID, subscriber string) error
	Online(ctx context.Context, conversationSID string) ([]string, error)
}
