package runtime

import (
	"chat-relay/contract"
	"sync"
)

var _ contract.IRegistry = (*Registry)(nil)

type Set map[string]contract.EventSink

// Registry maps each conversation to its live subscriptions.
type Registry struct {
	mu            sync.RWMutex
	Subscriptions map[string]Set // conversation SID -> subscription ID -> sink
}

func NewRegistry() *Registry {
	return &Registry{Subscriptions: make(map[string]Set)}
}

// SinksFor returns a snapshot of the sinks subscribed to a conversation, or nil.
func (r *Registry) SinksFor(conversationSID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscriptions, ok := r.Subscriptions[conversationSID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(subscriptions))
	for _, sink := range subscriptions {
		sinks = append(sinks, sink)
	}
	return sinks
}

// Subscribe attaches a sink to a conversation. Subscribing twice with the same
// ID replaces the previous sink.
func (r *Registry) Subscribe(subscriptionID, conversationSID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.Subscriptions[conversationSID]; !ok {
		r.Subscriptions[conversationSID] = make(Set)
	}
	r.Subscriptions[conversationSID][subscriptionID] = sink
}

// Unsubscribe removes a subscription and drops the conversation entry once empty.
func (r *Registry) Unsubscribe(subscriptionID, conversationSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subscriptions, ok := r.Subscriptions[conversationSID]; ok {
		delete(subscriptions, subscriptionID)
		if len(subscriptions) == 0 {
			delete(r.Subscriptions, conversationSID)
		}
	}
}

func (r *Registry) Count(conversationSID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Subscriptions[conversationSID])
}
