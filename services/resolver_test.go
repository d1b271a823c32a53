package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/memory"
	"chat-relay/mocks"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newResolver(provider *memory.Provider) *ConversationResolver {
	log := testLogger()
	provisioner := NewParticipantProvisioner(provider, provider, log, time.Second)
	return NewConversationResolver(provider, provisioner, people(), log, time.Second)
}

func TestResolveDual_Creates_Under_Other_Current_Key(t *testing.T) {
	req := require.New(t)
	provider := memory.NewProvider()
	resolver := newResolver(provider)

	// Given no prior conversation between U1 and U2
	resolution, err := resolver.ResolveDual(context.Background(), "U1", "U2")

	// Then one is created under DUAL_U1_U2
	req.NoError(err)
	req.True(resolution.Created)
	req.False(resolution.Membership.Partial())
	c := resolution.Conversation
	req.Equal(domain.ConversationKey("DUAL_U1_U2"), c.Key)
	req.Equal(domain.Dual, c.Kind)
	req.Equal("Alice/Bob", c.FriendlyName)
	req.Equal("Bob Stone", c.Attributes.Peers["U1"].FriendlyName)
	req.Equal(domain.DefaultAvatarURL, c.Attributes.Peers["U2"].ImageURL)
	req.Len(c.Participants, 2)
	for _, p := range c.Participants {
		req.Equal(domain.Admin, p.Role)
	}
	req.Equal(1, provider.Creates())
}

func TestResolveDual_Reverse_Order_Finds_The_Same_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	provider := memory.NewProvider()
	resolver := newResolver(provider)

	first, err := resolver.ResolveDual(ctx, "U1", "U2")
	req.NoError(err)
	second, err := resolver.ResolveDual(ctx, "U2", "U1")
	req.NoError(err)

	req.Equal(first.Conversation.SID, second.Conversation.SID)
	req.False(second.Created)
	req.Equal(1, provider.Creates())
	_, err = provider.FetchConversation(ctx, "DUAL_U2_U1")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestResolveDual_Same_Order_Twice_Creates_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	provider := memory.NewProvider()
	resolver := newResolver(provider)

	first, err := resolver.ResolveDual(ctx, "U1", "U2")
	req.NoError(err)
	second, err := resolver.ResolveDual(ctx, "U1", "U2")
	req.NoError(err)

	req.Equal(first.Conversation.SID, second.Conversation.SID)
	req.Equal(1, provider.Creates())
}

func TestResolveDual_Lost_Creation_Race_Reads_The_Winner(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockConversationProvider(ctrl)
	provisioner := NewParticipantProvisioner(memory.NewProvider(), provider, testLogger(), time.Second)
	resolver := NewConversationResolver(provider, provisioner, people(), testLogger(), time.Second)
	winner := domain.Conversation{SID: "CH42", Key: "DUAL_U2_U1", Kind: domain.Dual}

	gomock.InOrder(
		provider.EXPECT().FetchConversation(gomock.Any(), "DUAL_U1_U2").Return(domain.Conversation{}, errors.ErrNotFound),
		provider.EXPECT().FetchConversation(gomock.Any(), "DUAL_U2_U1").Return(domain.Conversation{}, errors.ErrNotFound),
		provider.EXPECT().CreateConversation(gomock.Any(), gomock.Any()).Return(domain.Conversation{}, errors.ErrAlreadyExists),
		provider.EXPECT().FetchConversation(gomock.Any(), "DUAL_U1_U2").Return(domain.Conversation{}, errors.ErrNotFound),
		provider.EXPECT().FetchConversation(gomock.Any(), "DUAL_U2_U1").Return(winner, nil),
	)

	resolution, err := resolver.ResolveDual(context.Background(), "U1", "U2")
	req.NoError(err)
	req.False(resolution.Created)
	req.Equal("CH42", resolution.Conversation.SID)
}

func TestResolveDual_Provider_Failure_Is_A_Provisioning_Error(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockConversationProvider(ctrl)
	resolver := NewConversationResolver(provider, nil, people(), testLogger(), time.Second)

	provider.EXPECT().FetchConversation(gomock.Any(), "DUAL_U1_U2").Return(domain.Conversation{}, fmt.Errorf("503"))

	_, err := resolver.ResolveDual(context.Background(), "U1", "U2")
	req.True(errors.IsProvisioning(err))
	req.False(errors.IsNotFound(err))
}

func TestResolveDual_Rejects_Same_User(t *testing.T) {
	req := require.New(t)
	_, err := newResolver(memory.NewProvider()).ResolveDual(context.Background(), "U1", "U1")
	req.ErrorIs(err, errors.ErrSelfConversation)
}

func TestResolveDual_Unknown_User(t *testing.T) {
	req := require.New(t)
	provider := memory.NewProvider()
	_, err := newResolver(provider).ResolveDual(context.Background(), "ghost", "U1")
	req.ErrorIs(err, errors.ErrUserNotFound)
	req.Zero(provider.Creates())
}

func TestCreateGroup_Partial_Membership(t *testing.T) {
	req := require.New(t)
	provider := memory.NewProvider()
	provider.FailFor("B", fmt.Errorf("identity service rejected B"))
	resolver := newResolver(provider)

	resolution, err := resolver.CreateGroup(context.Background(), []domain.UserID{"B", "C"}, "Team", "weekly sync", "A")

	// Then the group exists with A and C, and B is reported
	req.NoError(err)
	req.True(resolution.Created)
	req.Equal(1, provider.Creates())
	req.True(resolution.Membership.Partial())
	req.Len(resolution.Membership.Failed, 1)
	req.Equal(domain.UserID("B"), resolution.Membership.Failed[0].UserID)

	stored, err := provider.FetchConversation(context.Background(), resolution.Conversation.SID)
	req.NoError(err)
	roles := lo.SliceToMap(stored.Participants, func(p domain.Participant) (domain.UserID, domain.Role) {
		return p.UserID, p.Role
	})
	req.Equal(map[domain.UserID]domain.Role{"A": domain.Admin, "C": domain.Member}, roles)
	req.Equal(domain.Group, stored.Kind)
	req.Equal("weekly sync", stored.Attributes.Description)
	req.Equal("Team", stored.FriendlyName)
}

func TestCreateGroup_Unknown_Member_Is_Skipped(t *testing.T) {
	req := require.New(t)
	resolver := newResolver(memory.NewProvider())

	resolution, err := resolver.CreateGroup(context.Background(), []domain.UserID{"ghost", "C", "C", "A"}, "Team", "", "A")
	req.NoError(err)
	req.Len(resolution.Conversation.Participants, 2)
	req.Len(resolution.Membership.Failed, 1)
	req.ErrorIs(resolution.Membership.Failed[0].Err, errors.ErrUserNotFound)
}

func TestCreateGroup_Same_Membership_Makes_Distinct_Groups(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	provider := memory.NewProvider()
	resolver := newResolver(provider)

	first, err := resolver.CreateGroup(ctx, []domain.UserID{"B", "C"}, "Team", "", "A")
	req.NoError(err)
	second, err := resolver.CreateGroup(ctx, []domain.UserID{"B", "C"}, "Team", "", "A")
	req.NoError(err)

	req.NotEqual(first.Conversation.SID, second.Conversation.SID)
	req.NotEqual(first.Conversation.Key, second.Conversation.Key)
	req.Equal(2, provider.Creates())
}

func TestFindOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("one other participant resolves a dual conversation", func(t *testing.T) {
		req := require.New(t)
		resolution, err := newResolver(memory.NewProvider()).FindOrCreate(ctx, []domain.UserID{"U1", "U2"}, "", "", "U2")
		req.NoError(err)
		req.Equal(domain.ConversationKey("DUAL_U1_U2"), resolution.Conversation.Key)
	})

	t.Run("several participants create a group", func(t *testing.T) {
		req := require.New(t)
		resolution, err := newResolver(memory.NewProvider()).FindOrCreate(ctx, []domain.UserID{"B", "C"}, "Team", "d", "A")
		req.NoError(err)
		req.Equal(domain.Group, resolution.Conversation.Kind)
		req.Len(resolution.Conversation.Participants, 3)
	})
}

func TestDelete_And_EnsureExists(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	resolver := newResolver(memory.NewProvider())
	resolution, err := resolver.ResolveDual(ctx, "U1", "U2")
	req.NoError(err)
	sid := resolution.Conversation.SID

	req.NoError(resolver.EnsureExists(ctx, sid))
	req.NoError(resolver.Delete(ctx, sid))
	req.ErrorIs(resolver.EnsureExists(ctx, sid), errors.ErrConversationNotFound)
	req.ErrorIs(resolver.Delete(ctx, sid), errors.ErrConversationNotFound)
}

func TestEnsureExists_Caches_Hits(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockConversationProvider(ctrl)
	resolver := NewConversationResolver(provider, nil, people(), testLogger(), time.Second)

	provider.EXPECT().FetchConversation(gomock.Any(), "CH1").Return(domain.Conversation{SID: "CH1"}, nil).Times(1)

	req.NoError(resolver.EnsureExists(context.Background(), "CH1"))
	req.NoError(resolver.EnsureExists(context.Background(), "CH1"))
}

func TestList(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	resolver := newResolver(memory.NewProvider())
	_, err := resolver.ResolveDual(ctx, "U1", "U2")
	req.NoError(err)
	_, err = resolver.CreateGroup(ctx, nil, "Solo", "", "A")
	req.NoError(err)

	all, err := resolver.List(ctx, 0)
	req.NoError(err)
	req.Len(all, 2)
	limited, err := resolver.List(ctx, 1)
	req.NoError(err)
	req.Len(limited, 1)
}
