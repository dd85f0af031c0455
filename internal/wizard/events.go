package wizard

import (
	"sync"
	"time"

	"github.com/ppiankov/claimdesk/internal/model"
)

// EventType identifies a session change notification
type EventType string

const (
	EventStepChanged           EventType = "step_changed"
	EventFilesChanged          EventType = "files_changed"
	EventFactsLoaded           EventType = "facts_loaded"
	EventConflictAccepted      EventType = "conflict_accepted"
	EventAllResolved           EventType = "all_resolved"
	EventSignalsUpdated        EventType = "signals_updated"
	EventTimelineUpdated       EventType = "timeline_updated"
	EventRecommendationUpdated EventType = "recommendation_updated"
	EventRationaleUpdated      EventType = "rationale_updated"
	EventEvidenceUpdated       EventType = "evidence_updated"
	EventEscalationUpdated     EventType = "escalation_updated"
	EventOperationStarted      EventType = "operation_started"
	EventOperationFinished     EventType = "operation_finished"
	EventError                 EventType = "error"
)

// Event is a change notification published after the session state changed
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Step      model.Step  `json:"step"`
	Operation Operation   `json:"operation,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	At        time.Time   `json:"at"`
}

// EventBus fans events out to subscribers. Slow subscribers miss events
// rather than block the publisher.
type EventBus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	buffer int
	closed bool
}

// NewEventBus creates a bus whose subscriber channels hold buffer events.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 16
	}
	return &EventBus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers e to every subscriber without blocking.
func (b *EventBus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes every subscriber channel. Later subscriptions are closed
// immediately.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
