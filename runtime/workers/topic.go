package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"time"
)

var _ contract.Worker = (*TopicWorker)(nil)

// TopicWorker drains the broadcast queue of one conversation. Messages reach
// every live subscriber in queue order, then the permanent sinks.
//
// Subscriber sinks must not block; a full subscriber loses the message and
// nobody else is slowed down. Permanent sinks get sinkTimeout each.
type TopicWorker struct {
	SID         string
	Queue       chan domain.Message
	registry    contract.IRegistry
	permanent   []contract.EventSink
	sinkTimeout time.Duration
	idleTimeout time.Duration
	// retire is asked whether the idle topic may stop. It returns true once the
	// topic is unreachable from new publishers.
	retire func() bool
	log    *slog.Logger
}

func NewTopicWorker(
	sid string,
	queue chan domain.Message,
	registry contract.IRegistry,
	permanent []contract.EventSink,
	sinkTimeout, idleTimeout time.Duration,
	retire func() bool,
	log *slog.Logger,
) *TopicWorker {
	return &TopicWorker{
		SID:         sid,
		Queue:       queue,
		registry:    registry,
		permanent:   permanent,
		sinkTimeout: sinkTimeout,
		idleTimeout: idleTimeout,
		retire:      retire,
		log:         log.With("conversation_sid", sid),
	}
}

func (w *TopicWorker) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if w.idleTimeout > 0 && w.retire != nil {
		ticker := time.NewTicker(w.idleTimeout / 2)
		defer ticker.Stop()
		tick = ticker.C
	}
	lastActivity := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-w.Queue:
			w.Deliver(ctx, m)
			lastActivity = time.Now()
		case <-tick:
			if time.Since(lastActivity) < w.idleTimeout {
				continue
			}
			if w.retire() {
				w.log.Debug("Idle topic retired")
				return nil
			}
		}
	}
}

// Deliver hands one message to the subscribers registered right now, then to
// the permanent sinks.
func (w *TopicWorker) Deliver(ctx context.Context, m domain.Message) {
	for _, sink := range w.registry.SinksFor(w.SID) {
		err := sink.Consume(ctx, m)
		switch {
		case err == nil:
			observability.BroadcastsDelivered.Inc()
		case errors.Is(err, errors.ErrSubscriberBackpressure):
			observability.SubscriberBackpressure.Inc()
			w.log.Debug("Subscriber too slow, message dropped", "message_id", m.ID)
		default:
			w.log.Debug("Subscriber gone", "message_id", m.ID, "error", err)
		}
	}

	for _, sink := range w.permanent {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, m); err != nil {
			name := fmt.Sprintf("%T", sink)
			observability.SinkFailures.WithLabelValues(name).Inc()
			w.log.Warn("Permanent sink failed", "sink", name, "message_id", m.ID, "error", err)
		}
		cancel()
	}
}
