package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

var _ contract.ConversationGuard = (*ConversationResolver)(nil)

type IConversationResolver interface {
	ResolveDual(ctx context.Context, otherID, currentID domain.UserID) (domain.Resolution, error)
	CreateGroup(ctx context.Context, memberIDs []domain.UserID, friendlyName, description string, initiatorID domain.UserID) (domain.Resolution, error)
	FindOrCreate(ctx context.Context, participantIDs []domain.UserID, friendlyName, description string, currentID domain.UserID) (domain.Resolution, error)
	List(ctx context.Context, limit int) ([]domain.Conversation, error)
	Delete(ctx context.Context, sid string) error
	EnsureExists(ctx context.Context, sid string) error
}

// ConversationResolver turns a participant set into a conversation of the
// external service, creating it on first use.
//
// Dual keys are not order-canonicalized: "DUAL_{other}_{current}" is looked up
// first, then "DUAL_{current}_{other}", and a new conversation is created under
// the first form. Nothing locks the lookup-then-create sequence; the service's
// unique-name constraint is the only guard, and losing that race re-reads the
// winner instead of failing.
type ConversationResolver struct {
	provider    contract.ConversationProvider
	provisioner IParticipantProvisioner
	users       contract.UserDirectory
	log         *slog.Logger
	timeout     time.Duration

	mu    sync.RWMutex
	known map[string]struct{}
}

func NewConversationResolver(
	provider contract.ConversationProvider,
	provisioner IParticipantProvisioner,
	users contract.UserDirectory,
	log *slog.Logger,
	timeout time.Duration,
) *ConversationResolver {
	return &ConversationResolver{
		provider:    provider,
		provisioner: provisioner,
		users:       users,
		log:         log,
		timeout:     timeout,
		known:       make(map[string]struct{}),
	}
}

func (r *ConversationResolver) ResolveDual(ctx context.Context, otherID, currentID domain.UserID) (domain.Resolution, error) {
	if otherID == currentID {
		return domain.Resolution{}, errors.ErrSelfConversation
	}
	key1 := domain.DualKey(otherID, currentID)
	key2 := domain.DualKey(currentID, otherID)

	found, ok, err := r.lookupDual(ctx, key1, key2)
	if err != nil {
		return domain.Resolution{}, err
	}
	if ok {
		return domain.Resolution{Conversation: found}, nil
	}

	other, err := r.users.GetUser(ctx, otherID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolve %s: %w", otherID, err)
	}
	current, err := r.users.GetUser(ctx, currentID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolve %s: %w", currentID, err)
	}
	other, current = other.WithDefaultAvatar(), current.WithDefaultAvatar()

	created, err := r.create(ctx, domain.ConversationDraft{
		Key:          key1,
		FriendlyName: other.FirstName + "/" + current.FirstName,
		Attributes:   domain.DualAttributes(other, current),
	})
	if errors.Is(err, errors.ErrAlreadyExists) {
		// The other side won the creation race.
		found, ok, lookupErr := r.lookupDual(ctx, key1, key2)
		if lookupErr != nil {
			return domain.Resolution{}, lookupErr
		}
		if ok {
			return domain.Resolution{Conversation: found}, nil
		}
	}
	if err != nil {
		return domain.Resolution{}, errors.NewProvisioningError("create conversation", key1.String(), err)
	}

	var outcome domain.MembershipOutcome
	r.enroll(ctx, created.SID, other, domain.Admin, &outcome)
	r.enroll(ctx, created.SID, current, domain.Admin, &outcome)
	created.Participants = outcome.Succeeded
	r.remember(created.SID)
	observability.ConversationsCreated.WithLabelValues(string(domain.Dual)).Inc()
	r.log.Info("Dual conversation created", "conversation_sid", created.SID, "key", created.Key)
	return domain.Resolution{Conversation: created, Created: true, Membership: outcome}, nil
}

// lookupDual fetches key1 then key2. A miss on both is ok=false, not an error.
func (r *ConversationResolver) lookupDual(ctx context.Context, key1, key2 domain.ConversationKey) (domain.Conversation, bool, error) {
	for _, key := range []domain.ConversationKey{key1, key2} {
		c, err := r.fetch(ctx, key.String())
		if err == nil {
			r.remember(c.SID)
			return c, true, nil
		}
		if !errors.IsNotFound(err) {
			return domain.Conversation{}, false, errors.NewProvisioningError("fetch conversation", key.String(), err)
		}
	}
	return domain.Conversation{}, false, nil
}

// CreateGroup always creates a new conversation. The initiator is required;
// members that cannot be resolved or enrolled are reported in the outcome.
func (r *ConversationResolver) CreateGroup(ctx context.Context, memberIDs []domain.UserID, friendlyName, description string, initiatorID domain.UserID) (domain.Resolution, error) {
	initiator, err := r.users.GetUser(ctx, initiatorID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolve %s: %w", initiatorID, err)
	}
	key := domain.GroupKey()
	created, err := r.create(ctx, domain.ConversationDraft{
		Key:          key,
		FriendlyName: friendlyName,
		Attributes:   domain.GroupAttributes(description),
	})
	if err != nil {
		return domain.Resolution{}, errors.NewProvisioningError("create conversation", key.String(), err)
	}

	var outcome domain.MembershipOutcome
	r.enroll(ctx, created.SID, initiator, domain.Admin, &outcome)
	members := lo.Without(lo.Uniq(memberIDs), initiatorID)
	for _, id := range members {
		member, err := r.users.GetUser(ctx, id)
		if err != nil {
			r.warn(created.SID, errors.PartialMembershipWarning{UserID: id.String(), Err: err})
			outcome.Fail(id, domain.Member, err)
			continue
		}
		r.enroll(ctx, created.SID, member, domain.Member, &outcome)
	}
	created.Participants = outcome.Succeeded
	r.remember(created.SID)
	observability.ConversationsCreated.WithLabelValues(string(domain.Group)).Inc()
	r.log.Info("Group conversation created", "conversation_sid", created.SID,
		"participants", len(outcome.Succeeded), "failed", len(outcome.Failed))
	return domain.Resolution{Conversation: created, Created: true, Membership: outcome}, nil
}

// FindOrCreate resolves a dual conversation when exactly one other participant
// is given, and creates a group otherwise.
func (r *ConversationResolver) FindOrCreate(ctx context.Context, participantIDs []domain.UserID, friendlyName, description string, currentID domain.UserID) (domain.Resolution, error) {
	others := lo.Without(lo.Uniq(participantIDs), currentID)
	if len(others) == 1 {
		return r.ResolveDual(ctx, others[0], currentID)
	}
	return r.CreateGroup(ctx, others, friendlyName, description, currentID)
}

func (r *ConversationResolver) List(ctx context.Context, limit int) ([]domain.Conversation, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	conversations, err := r.provider.ListConversations(ctx, limit)
	if err != nil {
		return nil, errors.NewProvisioningError("list conversations", "", err)
	}
	return conversations, nil
}

// Delete removes a conversation by SID. An unknown SID is a caller error.
func (r *ConversationResolver) Delete(ctx context.Context, sid string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	err := r.provider.DeleteConversation(ctx, sid)
	r.forget(sid)
	switch {
	case err == nil:
		r.log.Info("Conversation deleted", "conversation_sid", sid)
		return nil
	case errors.IsNotFound(err):
		return errors.ErrConversationNotFound
	default:
		return errors.NewProvisioningError("delete conversation", sid, err)
	}
}

// EnsureExists confirms sid is a live conversation. Hits are cached until the
// conversation is deleted through this resolver.
func (r *ConversationResolver) EnsureExists(ctx context.Context, sid string) error {
	r.mu.RLock()
	_, ok := r.known[sid]
	r.mu.RUnlock()
	if ok {
		return nil
	}
	c, err := r.fetch(ctx, sid)
	switch {
	case err == nil:
		r.remember(c.SID)
		return nil
	case errors.IsNotFound(err):
		return errors.ErrConversationNotFound
	default:
		return errors.NewProvisioningError("fetch conversation", sid, err)
	}
}

func (r *ConversationResolver) enroll(ctx context.Context, sid string, user domain.User, role domain.Role, outcome *domain.MembershipOutcome) {
	participant, err := r.provisioner.AddParticipant(ctx, sid, user, role)
	if err != nil {
		r.warn(sid, errors.PartialMembershipWarning{UserID: user.ID.String(), Err: err})
		outcome.Fail(user.ID, role, err)
		return
	}
	outcome.Add(participant)
}

func (r *ConversationResolver) warn(sid string, w errors.PartialMembershipWarning) {
	observability.MembershipFailures.Inc()
	r.log.Warn("Participant not added", "conversation_sid", sid, "user_id", w.UserID, "error", w.Err)
}

func (r *ConversationResolver) fetch(ctx context.Context, keyOrSID string) (domain.Conversation, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	return r.provider.FetchConversation(ctx, keyOrSID)
}

func (r *ConversationResolver) create(ctx context.Context, draft domain.ConversationDraft) (domain.Conversation, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	return r.provider.CreateConversation(ctx, draft)
}

func (r *ConversationResolver) remember(sid string) {
	r.mu.Lock()
	r.known[sid] = struct{}{}
	r.mu.Unlock()
}

func (r *ConversationResolver) forget(sid string) {
	r.mu.Lock()
	delete(r.known, sid)
	r.mu.Unlock()
}
