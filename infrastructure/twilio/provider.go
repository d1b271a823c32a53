// Package twilio adapts the Twilio Conversations API to the conversation and
// identity ports of the relay.
package twilio

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"
	twiliogo "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	conversations "github.com/twilio/twilio-go/rest/conversations/v1"
)

var (
	_ contract.ConversationProvider = (*Provider)(nil)
	_ contract.IdentityProvider     = (*Provider)(nil)
	_ API                           = (*conversations.ApiService)(nil)
)

// API is the subset of the Conversations v1 service the relay calls.
type API interface {
	CreateConversation(params *conversations.CreateConversationParams) (*conversations.ConversationsV1Conversation, error)
	FetchConversation(sid string) (*conversations.ConversationsV1Conversation, error)
	ListConversation(params *conversations.ListConversationParams) ([]conversations.ConversationsV1Conversation, error)
	DeleteConversation(sid string, params *conversations.DeleteConversationParams) error
	CreateConversationParticipant(conversationSid string, params *conversations.CreateConversationParticipantParams) (*conversations.ConversationsV1ConversationParticipant, error)
	CreateUser(params *conversations.CreateUserParams) (*conversations.ConversationsV1User, error)
	FetchUser(sid string) (*conversations.ConversationsV1User, error)
	UpdateUser(sid string, params *conversations.UpdateUserParams) (*conversations.ConversationsV1User, error)
}

// RoleSIDs maps relay roles to the conversation-scoped role SIDs of the account.
type RoleSIDs struct {
	Admin  string
	Member string
}

func (r RoleSIDs) sidOf(role domain.Role) string {
	if role == domain.Admin {
		return r.Admin
	}
	return r.Member
}

func (r RoleSIDs) roleOf(sid string) domain.Role {
	if sid != "" && sid == r.Admin {
		return domain.Admin
	}
	return domain.Member
}

// NewRestAPI builds the Conversations v1 client from account credentials.
func NewRestAPI(accountSID, authToken string, timeout time.Duration) API {
	rest := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	rest.SetTimeout(timeout)
	return rest.ConversationsV1
}

type Provider struct {
	api   API
	roles RoleSIDs
	log   *slog.Logger
}

func NewProvider(api API, roles RoleSIDs, log *slog.Logger) *Provider {
	return &Provider{api: api, roles: roles, log: log}
}

// call runs a blocking SDK request and gives up when ctx ends first. The SDK has
// no context support, so an abandoned request still completes in the background.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}

func (p *Provider) CreateConversation(ctx context.Context, draft domain.ConversationDraft) (domain.Conversation, error) {
	attributes, err := encodeAttributes(draft.Attributes)
	if err != nil {
		return domain.Conversation{}, err
	}
	params := &conversations.CreateConversationParams{}
	params.SetUniqueName(draft.Key.String())
	params.SetFriendlyName(draft.FriendlyName)
	params.SetAttributes(attributes)

	created, err := call(ctx, func() (*conversations.ConversationsV1Conversation, error) {
		return p.api.CreateConversation(params)
	})
	if err != nil {
		return domain.Conversation{}, translate(err)
	}
	return p.toConversation(created)
}

// FetchConversation accepts a SID or a unique name.
func (p *Provider) FetchConversation(ctx context.Context, keyOrSID string) (domain.Conversation, error) {
	fetched, err := call(ctx, func() (*conversations.ConversationsV1Conversation, error) {
		return p.api.FetchConversation(keyOrSID)
	})
	if err != nil {
		return domain.Conversation{}, translate(err)
	}
	return p.toConversation(fetched)
}

func (p *Provider) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	params := &conversations.ListConversationParams{}
	if limit > 0 {
		params.SetLimit(limit)
	}
	listed, err := call(ctx, func() ([]conversations.ConversationsV1Conversation, error) {
		return p.api.ListConversation(params)
	})
	if err != nil {
		return nil, translate(err)
	}
	out := make([]domain.Conversation, 0, len(listed))
	for i := range listed {
		c, err := p.toConversation(&listed[i])
		if err != nil {
			p.log.Warn("Skipping conversation with unreadable attributes",
				"conversation_sid", lo.FromPtr(listed[i].Sid), "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *Provider) DeleteConversation(ctx context.Context, sid string) error {
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, p.api.DeleteConversation(sid, &conversations.DeleteConversationParams{})
	})
	return translate(err)
}

func (p *Provider) AddParticipant(ctx context.Context, conversationSID string, draft domain.ParticipantDraft) (domain.Participant, error) {
	attributes, err := encodeParticipantAttributes(draft)
	if err != nil {
		return domain.Participant{}, err
	}
	params := &conversations.CreateConversationParticipantParams{}
	params.SetIdentity(draft.UserID.String())
	params.SetAttributes(attributes)
	if sid := p.roles.sidOf(draft.Role); sid != "" {
		params.SetRoleSid(sid)
	}
	created, err := call(ctx, func() (*conversations.ConversationsV1ConversationParticipant, error) {
		return p.api.CreateConversationParticipant(conversationSID, params)
	})
	if err != nil {
		return domain.Participant{}, translate(err)
	}
	return domain.Participant{
		SID:             lo.FromPtr(created.Sid),
		ConversationSID: lo.Ternary(created.ConversationSid != nil, lo.FromPtr(created.ConversationSid), conversationSID),
		UserID:          domain.UserID(lo.FromPtr(created.Identity)),
		Role:            lo.Ternary(created.RoleSid != nil, p.roles.roleOf(lo.FromPtr(created.RoleSid)), draft.Role),
	}, nil
}

// FetchIdentity looks a user up by identity, which the API accepts in place of a SID.
func (p *Provider) FetchIdentity(ctx context.Context, id domain.UserID) (domain.Identity, error) {
	fetched, err := call(ctx, func() (*conversations.ConversationsV1User, error) {
		return p.api.FetchUser(id.String())
	})
	if err != nil {
		return domain.Identity{}, translate(err)
	}
	return toIdentity(fetched), nil
}

func (p *Provider) CreateIdentity(ctx context.Context, user domain.User) (domain.Identity, error) {
	attributes, err := encodeAttributes(domain.Attributes{
		Peers: map[domain.UserID]domain.ParticipantProfile{user.ID: user.Profile()},
	})
	if err != nil {
		return domain.Identity{}, err
	}
	params := &conversations.CreateUserParams{}
	params.SetIdentity(user.ID.String())
	params.SetFriendlyName(user.DisplayName())
	params.SetAttributes(attributes)
	created, err := call(ctx, func() (*conversations.ConversationsV1User, error) {
		return p.api.CreateUser(params)
	})
	if err != nil {
		return domain.Identity{}, translate(err)
	}
	return toIdentity(created), nil
}

func (p *Provider) UpdateIdentity(ctx context.Context, user domain.User) (domain.Identity, error) {
	attributes, err := encodeAttributes(domain.Attributes{
		Peers: map[domain.UserID]domain.ParticipantProfile{user.ID: user.Profile()},
	})
	if err != nil {
		return domain.Identity{}, err
	}
	params := &conversations.UpdateUserParams{}
	params.SetFriendlyName(user.DisplayName())
	params.SetAttributes(attributes)
	updated, err := call(ctx, func() (*conversations.ConversationsV1User, error) {
		return p.api.UpdateUser(user.ID.String(), params)
	})
	if err != nil {
		return domain.Identity{}, translate(err)
	}
	return toIdentity(updated), nil
}

func (p *Provider) toConversation(c *conversations.ConversationsV1Conversation) (domain.Conversation, error) {
	attributes, err := decodeAttributes(lo.FromPtr(c.Attributes))
	if err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{
		SID:          lo.FromPtr(c.Sid),
		Key:          domain.ConversationKey(lo.FromPtr(c.UniqueName)),
		Kind:         attributes.Kind,
		FriendlyName: lo.FromPtr(c.FriendlyName),
		Attributes:   attributes,
		CreatedAt:    lo.FromPtr(c.DateCreated),
	}, nil
}

func toIdentity(u *conversations.ConversationsV1User) domain.Identity {
	identity := domain.Identity{
		SID:          lo.FromPtr(u.Sid),
		Identity:     domain.UserID(lo.FromPtr(u.Identity)),
		FriendlyName: lo.FromPtr(u.FriendlyName),
	}
	if attributes, err := decodeAttributes(lo.FromPtr(u.Attributes)); err == nil {
		identity.ImageURL = attributes.Peers[identity.Identity].ImageURL
	}
	return identity
}

// translate maps the REST status of a failed call onto the relay sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var restErr *client.TwilioRestError
	if !errors.As(err, &restErr) {
		return err
	}
	switch restErr.Status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", restErr.Message, errors.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", restErr.Message, errors.ErrAlreadyExists)
	}
	return err
}
