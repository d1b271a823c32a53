package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

type IParticipantProvisioner interface {
	EnsureUser(ctx context.Context, user domain.User) (domain.Identity, error)
	AddParticipant(ctx context.Context, conversationSID string, user domain.User, role domain.Role) (domain.Participant, error)
	SyncAll(ctx context.Context, users []domain.User) domain.SyncOutcome
}

// ParticipantProvisioner mirrors local users into the external identity
// directory and enrolls them in conversations.
type ParticipantProvisioner struct {
	identities    contract.IdentityProvider
	conversations contract.ConversationProvider
	log           *slog.Logger
	timeout       time.Duration
}

func NewParticipantProvisioner(
	identities contract.IdentityProvider,
	conversations contract.ConversationProvider,
	log *slog.Logger,
	timeout time.Duration,
) *ParticipantProvisioner {
	return &ParticipantProvisioner{
		identities:    identities,
		conversations: conversations,
		log:           log,
		timeout:       timeout,
	}
}

// EnsureUser creates or updates the external identity of user. A user without an
// avatar is given the default one first.
func (p *ParticipantProvisioner) EnsureUser(ctx context.Context, user domain.User) (domain.Identity, error) {
	user = user.WithDefaultAvatar()
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.identities.FetchIdentity(ctx, user.ID)
	switch {
	case err == nil:
		return p.update(ctx, user)
	case errors.IsNotFound(err):
		identity, err := p.identities.CreateIdentity(ctx, user)
		if errors.Is(err, errors.ErrAlreadyExists) {
			// Created concurrently since the lookup.
			return p.update(ctx, user)
		}
		if err != nil {
			return domain.Identity{}, errors.NewProvisioningError("create user", user.ID.String(), err)
		}
		p.log.Debug("Identity created", "user_id", user.ID, "identity_sid", identity.SID)
		return identity, nil
	default:
		return domain.Identity{}, errors.NewProvisioningError("fetch user", user.ID.String(), err)
	}
}

func (p *ParticipantProvisioner) update(ctx context.Context, user domain.User) (domain.Identity, error) {
	identity, err := p.identities.UpdateIdentity(ctx, user)
	if err != nil {
		return domain.Identity{}, errors.NewProvisioningError("update user", user.ID.String(), err)
	}
	return identity, nil
}

// AddParticipant provisions user then enrolls it in the conversation with role.
func (p *ParticipantProvisioner) AddParticipant(ctx context.Context, conversationSID string, user domain.User, role domain.Role) (domain.Participant, error) {
	user = user.WithDefaultAvatar()
	if _, err := p.EnsureUser(ctx, user); err != nil {
		return domain.Participant{}, err
	}
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()
	participant, err := p.conversations.AddParticipant(ctx, conversationSID, domain.ParticipantDraft{
		UserID:  user.ID,
		Role:    role,
		Profile: user.Profile(),
	})
	if err != nil {
		return domain.Participant{}, errors.NewProvisioningError("add participant", conversationSID, err)
	}
	return participant, nil
}

// SyncAll ensures every user exists externally. A failing user is recorded and
// the batch goes on.
func (p *ParticipantProvisioner) SyncAll(ctx context.Context, users []domain.User) domain.SyncOutcome {
	outcome := domain.SyncOutcome{Failed: make(map[domain.UserID]error)}
	for _, user := range lo.UniqBy(users, func(u domain.User) domain.UserID { return u.ID }) {
		if ctx.Err() != nil {
			outcome.Failed[user.ID] = ctx.Err()
			continue
		}
		identity, err := p.EnsureUser(ctx, user)
		if err != nil {
			p.log.Warn("User synchronisation failed", "user_id", user.ID, "error", err)
			outcome.Failed[user.ID] = err
			continue
		}
		outcome.Synced = append(outcome.Synced, identity)
	}
	p.log.Info("Users synchronised", "synced", len(outcome.Synced), "failed", len(outcome.Failed))
	return outcome
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
