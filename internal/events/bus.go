// Package events provides the in-process lifecycle event bus. Emit is
// fire-and-forget: it never blocks the emitter and never propagates a
// failure back into the request loop.
package events

import (
	"sync"
	"time"

	"knowshowgo/internal/logging"
)

// Event is one emitted lifecycle event.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	TS      time.Time   `json:"ts"`
}

// Lifecycle event types emitted by the agent.
const (
	TypeRequestReceived    = "request_received"
	TypeRAGQuery           = "rag_query"
	TypePlanReady          = "plan_ready"
	TypeToolStart          = "tool_start"
	TypeToolInvoked        = "tool_invoked"
	TypeExecutionCompleted = "execution_completed"
	TypeQueueUpdated       = "queue_updated"
	TypeProcedureRecall    = "procedure_recall"
	TypeConceptRecall      = "concept_recall"
	TypeMemoryUpsert       = "memory_upsert"
	TypeMessageLogged      = "message_logged"
)

// subscriberBuffer bounds each subscriber's channel; a full buffer drops the
// event for that subscriber rather than blocking the emitter.
const subscriberBuffer = 64

type subscriber struct {
	eventType string // "*" matches everything
	ch        chan Event
}

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers interest in one event type, or "*" for all. The
// returned channel is buffered; slow consumers miss events instead of
// stalling emitters. Cancel with the returned function.
func (b *Bus) Subscribe(eventType string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	sub := &subscriber{eventType: eventType, ch: make(chan Event, subscriberBuffer)}
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Emit delivers the event to every matching subscriber. It never blocks and
// never panics outward.
func (b *Bus) Emit(eventType string, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryEvents).Warn("emit %s panicked: %v", eventType, r)
		}
	}()

	event := Event{Type: eventType, Payload: payload, TS: time.Now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.eventType != "*" && sub.eventType != eventType {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			logging.EventsDebug("subscriber for %s full, dropping %s", sub.eventType, eventType)
		}
	}
	logging.EventsDebug("emitted %s", eventType)
}
