// Package memory is an in-process stand-in for the external conversation and
// identity service. It backs local development and the service tests.
package memory

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	_ contract.ConversationProvider = (*Provider)(nil)
	_ contract.IdentityProvider     = (*Provider)(nil)
)

type Provider struct {
	mu            sync.Mutex
	seq           int
	conversations map[string]*domain.Conversation // by SID
	byKey         map[domain.ConversationKey]string
	identities    map[domain.UserID]domain.Identity
	failures      map[domain.UserID]error
	creates       int
	now           func() time.Time
}

func NewProvider() *Provider {
	return &Provider{
		conversations: make(map[string]*domain.Conversation),
		byKey:         make(map[domain.ConversationKey]string),
		identities:    make(map[domain.UserID]domain.Identity),
		failures:      make(map[domain.UserID]error),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// FailFor makes every identity and membership call about userID return err.
func (p *Provider) FailFor(userID domain.UserID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[userID] = err
}

// Creates is the number of conversations ever created.
func (p *Provider) Creates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creates
}

func (p *Provider) nextSID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s%032d", prefix, p.seq)
}

func (p *Provider) CreateConversation(ctx context.Context, draft domain.ConversationDraft) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byKey[draft.Key]; ok {
		return domain.Conversation{}, fmt.Errorf("unique name %q: %w", draft.Key, errors.ErrAlreadyExists)
	}
	c := &domain.Conversation{
		SID:          p.nextSID("CH"),
		Key:          draft.Key,
		Kind:         draft.Attributes.Kind,
		FriendlyName: draft.FriendlyName,
		Attributes:   draft.Attributes,
		CreatedAt:    p.now(),
	}
	p.conversations[c.SID] = c
	p.byKey[c.Key] = c.SID
	p.creates++
	return snapshot(c), nil
}

func (p *Provider) FetchConversation(ctx context.Context, keyOrSID string) (domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Conversation{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.lookup(keyOrSID)
	if !ok {
		return domain.Conversation{}, errors.ErrNotFound
	}
	return snapshot(c), nil
}

func (p *Provider) ListConversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Conversation, 0, len(p.conversations))
	for _, c := range p.conversations {
		out = append(out, snapshot(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Provider) DeleteConversation(ctx context.Context, sid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conversations[sid]
	if !ok {
		return errors.ErrNotFound
	}
	delete(p.byKey, c.Key)
	delete(p.conversations, sid)
	return nil
}

func (p *Provider) AddParticipant(ctx context.Context, conversationSID string, draft domain.ParticipantDraft) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failures[draft.UserID]; ok {
		return domain.Participant{}, err
	}
	c, ok := p.conversations[conversationSID]
	if !ok {
		return domain.Participant{}, errors.ErrNotFound
	}
	for _, existing := range c.Participants {
		if existing.UserID == draft.UserID {
			return domain.Participant{}, fmt.Errorf("participant %s: %w", draft.UserID, errors.ErrAlreadyExists)
		}
	}
	participant := domain.Participant{
		SID:             p.nextSID("MB"),
		ConversationSID: conversationSID,
		UserID:          draft.UserID,
		Role:            draft.Role,
	}
	c.Participants = append(c.Participants, participant)
	return participant, nil
}

func (p *Provider) FetchIdentity(ctx context.Context, id domain.UserID) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failures[id]; ok {
		return domain.Identity{}, err
	}
	identity, ok := p.identities[id]
	if !ok {
		return domain.Identity{}, errors.ErrNotFound
	}
	return identity, nil
}

func (p *Provider) CreateIdentity(ctx context.Context, user domain.User) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failures[user.ID]; ok {
		return domain.Identity{}, err
	}
	if _, ok := p.identities[user.ID]; ok {
		return domain.Identity{}, fmt.Errorf("identity %s: %w", user.ID, errors.ErrAlreadyExists)
	}
	identity := domain.Identity{
		SID:          p.nextSID("US"),
		Identity:     user.ID,
		FriendlyName: user.DisplayName(),
		ImageURL:     user.ImageURL,
	}
	p.identities[user.ID] = identity
	return identity, nil
}

func (p *Provider) UpdateIdentity(ctx context.Context, user domain.User) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failures[user.ID]; ok {
		return domain.Identity{}, err
	}
	identity, ok := p.identities[user.ID]
	if !ok {
		return domain.Identity{}, errors.ErrNotFound
	}
	identity.FriendlyName = user.DisplayName()
	identity.ImageURL = user.ImageURL
	p.identities[user.ID] = identity
	return identity, nil
}

// Identity returns the mirrored record of id, if any.
func (p *Provider) Identity(id domain.UserID) (domain.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	identity, ok := p.identities[id]
	return identity, ok
}

func (p *Provider) lookup(keyOrSID string) (*domain.Conversation, bool) {
	if c, ok := p.conversations[keyOrSID]; ok {
		return c, true
	}
	sid, ok := p.byKey[domain.ConversationKey(keyOrSID)]
	if !ok {
		return nil, false
	}
	return p.conversations[sid], true
}

func snapshot(c *domain.Conversation) domain.Conversation {
	out := *c
	out.Participants = append([]domain.Participant(nil), c.Participants...)
	return out
}
