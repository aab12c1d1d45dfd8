package domain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	EventSessionStarted   = "session.started"
	EventAnswerRecorded   = "answer.recorded"
	EventSessionCompleted = "session.completed"
)

// -----------------------------------------------------------------------------
// Event
// -----------------------------------------------------------------------------

// Event is a domain event published after a state change has been committed.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	SessionID  string    `json:"session_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Payload    any       `json:"payload,omitempty"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(eventType, sessionID, userID string, at time.Time, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: at,
		SessionID:  sessionID,
		UserID:     userID,
		Payload:    payload,
	}
}

// EventPublisher delivers events to interested parties.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// -----------------------------------------------------------------------------
// Event Handler and Dispatcher
// -----------------------------------------------------------------------------

// EventHandler processes domain events
type EventHandler func(ctx context.Context, event Event) error

// EventDispatcher fans events out to in-process handlers
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[string][]EventHandler
	allHandlers []EventHandler
}

// NewEventDispatcher creates a new event dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[string][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (d *EventDispatcher) Subscribe(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (d *EventDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, handler)
}

// Publish dispatches an event to all registered handlers. Every handler runs;
// their errors are joined.
func (d *EventDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.handlers[event.Type]...)
	handlers = append(handlers, d.allHandlers...)
	d.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
