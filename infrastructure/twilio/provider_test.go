package twilio

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"
	conversations "github.com/twilio/twilio-go/rest/conversations/v1"
)

// fakeAPI keeps conversations by unique name and users by identity, like the real
// service does when given a name in place of a SID.
type fakeAPI struct {
	conversations map[string]conversations.ConversationsV1Conversation
	participants  []*conversations.CreateConversationParticipantParams
	users         map[string]conversations.ConversationsV1User
	err           error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		conversations: map[string]conversations.ConversationsV1Conversation{},
		users:         map[string]conversations.ConversationsV1User{},
	}
}

func notFound() error {
	return &client.TwilioRestError{Status: http.StatusNotFound, Code: 20404, Message: "The requested resource was not found"}
}

func (f *fakeAPI) CreateConversation(params *conversations.CreateConversationParams) (*conversations.ConversationsV1Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	name := lo.FromPtr(params.UniqueName)
	if _, ok := f.conversations[name]; ok {
		return nil, &client.TwilioRestError{Status: http.StatusConflict, Code: 50353, Message: "Conversation with provided unique name already exists"}
	}
	c := conversations.ConversationsV1Conversation{
		Sid:          lo.ToPtr("CH" + name),
		UniqueName:   params.UniqueName,
		FriendlyName: params.FriendlyName,
		Attributes:   params.Attributes,
	}
	f.conversations[name] = c
	return &c, nil
}

func (f *fakeAPI) FetchConversation(sid string) (*conversations.ConversationsV1Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.conversations[sid]
	if !ok {
		return nil, notFound()
	}
	return &c, nil
}

func (f *fakeAPI) ListConversation(*conversations.ListConversationParams) ([]conversations.ConversationsV1Conversation, error) {
	return lo.Values(f.conversations), f.err
}

func (f *fakeAPI) DeleteConversation(sid string, _ *conversations.DeleteConversationParams) error {
	return notFound()
}

func (f *fakeAPI) CreateConversationParticipant(conversationSid string, params *conversations.CreateConversationParticipantParams) (*conversations.ConversationsV1ConversationParticipant, error) {
	f.participants = append(f.participants, params)
	return &conversations.ConversationsV1ConversationParticipant{
		Sid:             lo.ToPtr("MB1"),
		ConversationSid: lo.ToPtr(conversationSid),
		Identity:        params.Identity,
		RoleSid:         params.RoleSid,
	}, nil
}

func (f *fakeAPI) CreateUser(params *conversations.CreateUserParams) (*conversations.ConversationsV1User, error) {
	u := conversations.ConversationsV1User{
		Sid:          lo.ToPtr("US" + lo.FromPtr(params.Identity)),
		Identity:     params.Identity,
		FriendlyName: params.FriendlyName,
		Attributes:   params.Attributes,
	}
	f.users[lo.FromPtr(params.Identity)] = u
	return &u, nil
}

func (f *fakeAPI) FetchUser(sid string) (*conversations.ConversationsV1User, error) {
	u, ok := f.users[sid]
	if !ok {
		return nil, notFound()
	}
	return &u, nil
}

func (f *fakeAPI) UpdateUser(sid string, params *conversations.UpdateUserParams) (*conversations.ConversationsV1User, error) {
	u, ok := f.users[sid]
	if !ok {
		return nil, notFound()
	}
	u.FriendlyName = params.FriendlyName
	u.Attributes = params.Attributes
	f.users[sid] = u
	return &u, nil
}

func newTestProvider(api API) *Provider {
	return NewProvider(api, RoleSIDs{Admin: "RLadmin", Member: "RLmember"}, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestProvider_Dual_Attributes_Round_Trip(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	p := newTestProvider(api)
	alice := domain.User{ID: "U1", FirstName: "Alice", LastName: "Martin", ImageURL: "https://img/alice"}
	bob := domain.User{ID: "U2", FirstName: "Bob", LastName: "Stone", ImageURL: "https://img/bob"}

	created, err := p.CreateConversation(context.Background(), domain.ConversationDraft{
		Key:          domain.DualKey("U1", "U2"),
		FriendlyName: "Alice/Bob",
		Attributes:   domain.DualAttributes(alice, bob),
	})
	req.NoError(err)
	req.Equal(domain.Dual, created.Kind)
	req.Equal(domain.ConversationKey("DUAL_U1_U2"), created.Key)
	req.Equal("Bob Stone", created.Attributes.Peers["U1"].FriendlyName)
	req.Equal("https://img/alice", created.Attributes.Peers["U2"].ImageURL)

	var raw map[string]any
	req.NoError(json.Unmarshal([]byte(lo.FromPtr(api.conversations["DUAL_U1_U2"].Attributes)), &raw))
	req.Equal("DUAL", raw["type"])
}

func TestProvider_Maps_Rest_Status_To_Sentinels(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	api := newFakeAPI()
	p := newTestProvider(api)

	_, err := p.FetchConversation(ctx, "DUAL_U9_U8")
	req.ErrorIs(err, errors.ErrNotFound)

	draft := domain.ConversationDraft{Key: "GROUP_1", Attributes: domain.GroupAttributes("team")}
	_, err = p.CreateConversation(ctx, draft)
	req.NoError(err)
	_, err = p.CreateConversation(ctx, draft)
	req.ErrorIs(err, errors.ErrAlreadyExists)

	req.ErrorIs(p.DeleteConversation(ctx, "CHnope"), errors.ErrNotFound)

	api.err = &client.TwilioRestError{Status: http.StatusInternalServerError, Message: "down"}
	_, err = p.FetchConversation(ctx, "GROUP_1")
	req.Error(err)
	req.False(errors.IsNotFound(err))
}

func TestProvider_Participant_Role_And_Attributes(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	p := newTestProvider(api)

	participant, err := p.AddParticipant(context.Background(), "CH1", domain.ParticipantDraft{
		UserID:  "U1",
		Role:    domain.Admin,
		Profile: domain.ParticipantProfile{FriendlyName: "Alice Martin"},
	})
	req.NoError(err)
	req.Equal(domain.Admin, participant.Role)
	req.Equal(domain.UserID("U1"), participant.UserID)
	req.Equal("RLadmin", lo.FromPtr(api.participants[0].RoleSid))

	var attributes map[string]any
	req.NoError(json.Unmarshal([]byte(lo.FromPtr(api.participants[0].Attributes)), &attributes))
	req.Equal("ADMIN", attributes["role"])
}

func TestProvider_Identity_Create_Then_Update(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p := newTestProvider(newFakeAPI())
	user := domain.User{ID: "U1", FirstName: "Alice", LastName: "Martin", ImageURL: domain.DefaultAvatarURL}

	_, err := p.FetchIdentity(ctx, user.ID)
	req.ErrorIs(err, errors.ErrNotFound)

	created, err := p.CreateIdentity(ctx, user)
	req.NoError(err)
	req.Equal("Alice Martin", created.FriendlyName)
	req.Equal(domain.DefaultAvatarURL, created.ImageURL)

	user.LastName = "Durand"
	updated, err := p.UpdateIdentity(ctx, user)
	req.NoError(err)
	req.Equal("Alice Durand", updated.FriendlyName)
	req.Equal(created.SID, updated.SID)
}

func TestProvider_Honours_Cancelled_Context(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestProvider(newFakeAPI())

	_, err := p.FetchConversation(ctx, "GROUP_1")
	req.Error(err)
}
