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

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEnsureUser_Creates_With_Default_Avatar(t *testing.T) {
	req := require.New(t)
	provider := memory.NewProvider()
	provisioner := NewParticipantProvisioner(provider, provider, testLogger(), time.Second)

	identity, err := provisioner.EnsureUser(context.Background(), people()["U1"])
	req.NoError(err)
	req.Equal(domain.UserID("U1"), identity.Identity)
	req.Equal("Alice Martin", identity.FriendlyName)
	req.Equal(domain.DefaultAvatarURL, identity.ImageURL)
}

func TestEnsureUser_Updates_Existing_Identity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	provider := memory.NewProvider()
	provisioner := NewParticipantProvisioner(provider, provider, testLogger(), time.Second)
	user := people()["U2"]

	first, err := provisioner.EnsureUser(ctx, user)
	req.NoError(err)

	user.LastName = "Stone-Webb"
	second, err := provisioner.EnsureUser(ctx, user)
	req.NoError(err)
	req.Equal(first.SID, second.SID)

	stored, ok := provider.Identity("U2")
	req.True(ok)
	req.Equal("Bob Stone-Webb", stored.FriendlyName)
	req.Equal("https://img/bob", stored.ImageURL)
}

func TestEnsureUser_Concurrent_Create_Falls_Back_To_Update(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityProvider(ctrl)
	provisioner := NewParticipantProvisioner(identities, nil, testLogger(), time.Second)
	updated := domain.Identity{SID: "US1", Identity: "U1"}

	gomock.InOrder(
		identities.EXPECT().FetchIdentity(gomock.Any(), domain.UserID("U1")).Return(domain.Identity{}, errors.ErrNotFound),
		identities.EXPECT().CreateIdentity(gomock.Any(), gomock.Any()).Return(domain.Identity{}, errors.ErrAlreadyExists),
		identities.EXPECT().UpdateIdentity(gomock.Any(), gomock.Any()).Return(updated, nil),
	)

	identity, err := provisioner.EnsureUser(context.Background(), people()["U1"])
	req.NoError(err)
	req.Equal(updated, identity)
}

func TestEnsureUser_Service_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	identities := mocks.NewMockIdentityProvider(ctrl)
	provisioner := NewParticipantProvisioner(identities, nil, testLogger(), time.Second)

	identities.EXPECT().FetchIdentity(gomock.Any(), gomock.Any()).Return(domain.Identity{}, fmt.Errorf("bad gateway"))

	_, err := provisioner.EnsureUser(context.Background(), people()["U1"])
	req.True(errors.IsProvisioning(err))
}

func TestAddParticipant_Sends_Profile(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	provider := memory.NewProvider()
	provisioner := NewParticipantProvisioner(provider, provider, testLogger(), time.Second)
	conversation, err := provider.CreateConversation(ctx, domain.ConversationDraft{Key: "GROUP_x", Attributes: domain.GroupAttributes("")})
	req.NoError(err)

	participant, err := provisioner.AddParticipant(ctx, conversation.SID, people()["C"], domain.Member)
	req.NoError(err)
	req.Equal(domain.Member, participant.Role)
	_, ok := provider.Identity("C")
	req.True(ok)

	_, err = provisioner.AddParticipant(ctx, "CH-missing", people()["A"], domain.Admin)
	req.True(errors.IsProvisioning(err))
}

func TestSyncAll_Aggregates_Failures(t *testing.T) {
	req := require.New(t)
	provider := memory.NewProvider()
	provider.FailFor("B", fmt.Errorf("rejected"))
	provisioner := NewParticipantProvisioner(provider, provider, testLogger(), time.Second)
	users := []domain.User{people()["A"], people()["B"], people()["C"], people()["A"]}

	outcome := provisioner.SyncAll(context.Background(), users)

	req.Len(outcome.Synced, 2)
	req.Len(outcome.Failed, 1)
	req.Contains(outcome.Failed, domain.UserID("B"))
	req.True(errors.IsProvisioning(outcome.Failed["B"]))
}
