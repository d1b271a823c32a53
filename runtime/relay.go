// Package runtime persists and broadcasts conversation messages.
// It orchestrates topics and subscribers without containing provisioning rules.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/runtime/workers"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Censor rewrites message text before it is persisted.
type Censor interface {
	Censor(text string) (string, []string)
}

type RelayConfig struct {
	BufferSize     int
	PublishTimeout time.Duration
	SinkTimeout    time.Duration
	IdleTimeout    time.Duration
	PresenceTTL    time.Duration
}

type topic struct {
	mu      sync.Mutex
	queue   chan domain.Message
	retired bool
}

// Relay owns one topic per active conversation. A topic is a bounded queue
// drained by a supervised TopicWorker.
//
// Send persists then enqueues under the topic lock, so broadcast order is the
// order in which Send calls took that lock. A message that cannot be queued
// within PublishTimeout stays persisted and is not broadcast.
type Relay struct {
	mu             sync.Mutex
	log            *slog.Logger
	cfg            RelayConfig
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	guard          contract.ConversationGuard
	repository     contract.IMessageRepository
	censor         Censor
	presence       contract.PresenceTracker
	permanentSinks []contract.EventSink
	topics         map[string]*topic
	stopped        bool
	now            func() time.Time
}

func NewRelay(log *slog.Logger, cfg RelayConfig, supervisor contract.ISupervisor, registry contract.IRegistry,
	guard contract.ConversationGuard, repository contract.IMessageRepository) *Relay {
	return &Relay{
		log:        log,
		cfg:        cfg,
		supervisor: supervisor,
		registry:   registry,
		guard:      guard,
		repository: repository,
		topics:     make(map[string]*topic),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Add registers sinks that see every broadcast of every conversation.
// Sinks must be added before Start.
func (r *Relay) Add(sinks ...contract.EventSink) *Relay {
	r.permanentSinks = append(r.permanentSinks, sinks...)
	return r
}

func (r *Relay) WithCensor(c Censor) *Relay {
	r.censor = c
	return r
}

func (r *Relay) WithPresence(p contract.PresenceTracker) *Relay {
	r.presence = p
	return r
}

// Start blocks running the supervised topic workers until ctx ends or Stop.
func (r *Relay) Start(ctx context.Context) {
	r.log.Info("Starting relay", "permanent_sinks", len(r.permanentSinks))
	r.supervisor.Run(ctx)
}

func (r *Relay) Stop() {
	r.log.Info("Requesting relay shutdown")
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.supervisor.Stop()
}

// Send persists a message and queues it for broadcast. It returns once the
// message is persisted; broadcast happens asynchronously.
func (r *Relay) Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if cmd.Text == "" && cmd.Media == nil {
		return domain.Message{}, errors.ErrEmptyMessage
	}
	if err := r.guard.EnsureExists(ctx, cmd.ConversationSID); err != nil {
		return domain.Message{}, err
	}

	text := cmd.Text
	if r.censor != nil && text != "" {
		if censored, words := r.censor.Censor(text); len(words) > 0 {
			lang := moderation.DetectLanguage(text)
			observability.CensoredMessages.WithLabelValues(lang).Inc()
			r.log.Debug("Censored words replaced", "conversation_sid", cmd.ConversationSID, "count", len(words), "lang", lang)
			text = censored
		}
	}

	message := domain.Message{
		ID:              uuid.New(),
		ConversationSID: cmd.ConversationSID,
		SenderID:        cmd.SenderID,
		Text:            text,
		Media:           cmd.Media,
		CreatedAt:       r.now(),
		Flags:           cmd.Flags,
	}
	err := r.publish(ctx, message, func() error {
		return r.repository.StoreMessage(message)
	})
	if err != nil {
		return domain.Message{}, err
	}
	observability.MessagesSent.Inc()
	return message, nil
}

// Subscribe attaches sink to a conversation and broadcasts a join announcement
// for subscriber. The announcement is not persisted and earlier messages are not
// replayed. The returned func detaches the sink; it is safe to call twice.
func (r *Relay) Subscribe(ctx context.Context, conversationSID, subscriber string, sink contract.EventSink) (func(), error) {
	if err := r.guard.EnsureExists(ctx, conversationSID); err != nil {
		return nil, err
	}
	subscriptionID := uuid.NewString()
	r.registry.Subscribe(subscriptionID, conversationSID, sink)
	observability.ActiveSubscribers.Inc()
	r.join(ctx, conversationSID, subscriber)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.registry.Unsubscribe(subscriptionID, conversationSID)
			observability.ActiveSubscribers.Dec()
			r.leave(conversationSID, subscriber)
		})
	}

	announcement := domain.JoinAnnouncement(conversationSID, subscriber, r.now())
	if err := r.publish(ctx, announcement, nil); err != nil {
		unsubscribe()
		return nil, err
	}
	return unsubscribe, nil
}

// publish runs persist, when given, and enqueues m while holding the topic lock.
func (r *Relay) publish(ctx context.Context, m domain.Message, persist func() error) error {
	for {
		t, err := r.topic(ctx, m.ConversationSID)
		if err != nil {
			return err
		}
		t.mu.Lock()
		if t.retired {
			// Retired between lookup and lock, a fresh topic replaces it.
			t.mu.Unlock()
			continue
		}
		if persist != nil {
			if err := persist(); err != nil {
				t.mu.Unlock()
				return err
			}
		}
		r.enqueue(t, m)
		t.mu.Unlock()
		return nil
	}
}

// enqueue hands a persisted message to the topic worker. Only PublishTimeout
// bounds the wait: the message is stored, so a departed caller does not cancel
// its broadcast.
func (r *Relay) enqueue(t *topic, m domain.Message) {
	select {
	case t.queue <- m:
		return
	default:
	}
	timer := time.NewTimer(r.cfg.PublishTimeout)
	defer timer.Stop()
	select {
	case t.queue <- m:
	case <-timer.C:
		observability.PublishTimeouts.Inc()
		r.log.Warn("Topic queue full, message not broadcast",
			"conversation_sid", m.ConversationSID, "message_id", m.ID, "error", errors.ErrPublishTimeout)
	}
}

// topic returns the live topic of a conversation, starting one when needed.
func (r *Relay) topic(ctx context.Context, sid string) (*topic, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, errors.ErrRelayStopped
	}
	if t, ok := r.topics[sid]; ok {
		r.mu.Unlock()
		return t, nil
	}
	t := &topic{queue: make(chan domain.Message, r.cfg.BufferSize)}
	r.topics[sid] = t
	r.mu.Unlock()

	worker := workers.NewTopicWorker(sid, t.queue, r.registry, r.permanentSinks,
		r.cfg.SinkTimeout, r.cfg.IdleTimeout, func() bool { return r.retire(sid, t) }, r.log)
	if err := r.supervisor.Spawn(ctx, worker); err != nil {
		r.mu.Lock()
		if r.topics[sid] == t {
			delete(r.topics, sid)
		}
		r.mu.Unlock()
		t.mu.Lock()
		t.retired = true
		t.mu.Unlock()
		if errors.Is(err, errors.ErrSupervisorStopped) {
			return nil, errors.ErrRelayStopped
		}
		return nil, err
	}
	observability.ActiveTopics.Inc()
	r.log.Debug("Topic started", "conversation_sid", sid)
	return t, nil
}

// retire removes an idle topic when nothing is queued and nobody listens.
// Lock order is relay then topic; a topic locked by a publisher is not idle.
func (r *Relay) retire(sid string, t *topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !t.mu.TryLock() {
		return false
	}
	defer t.mu.Unlock()
	if len(t.queue) > 0 || r.registry.Count(sid) > 0 {
		return false
	}
	t.retired = true
	if r.topics[sid] == t {
		delete(r.topics, sid)
	}
	observability.ActiveTopics.Dec()
	return true
}

// ActiveTopics is the number of conversations with a running topic.
func (r *Relay) ActiveTopics() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

// QueueDepths samples the broadcast queue of every running topic.
func (r *Relay) QueueDepths() []workers.QueueGauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	gauges := make([]workers.QueueGauge, 0, len(r.topics))
	for sid, t := range r.topics {
		gauges = append(gauges, workers.QueueGauge{Name: sid, Length: len(t.queue), Capacity: cap(t.queue)})
	}
	return gauges
}

func (r *Relay) join(ctx context.Context, sid, subscriber string) {
	if r.presence == nil {
		return
	}
	if err := r.presence.Join(ctx, sid, subscriber, r.cfg.PresenceTTL); err != nil {
		r.log.Warn("Presence not recorded", "conversation_sid", sid, "subscriber", subscriber, "error", err)
	}
}

func (r *Relay) leave(sid, subscriber string) {
	if r.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SinkTimeout)
	defer cancel()
	if err := r.presence.Leave(ctx, sid, subscriber); err != nil {
		r.log.Warn("Presence not cleared", "conversation_sid", sid, "subscriber", subscriber, "error", err)
	}
}
