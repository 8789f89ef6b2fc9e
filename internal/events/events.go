package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Event types published by the site.
const (
	TypeBookingCreated   = "booking.created"
	TypeContactSubmitted = "contact.submitted"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   any
	CreatedAt time.Time
}

// BookingCreated is the payload of TypeBookingCreated.
type BookingCreated struct {
	EventID string
	Name    string
	Email   string
	Company string
	Notes   string
	Start   time.Time
	End     time.Time
}

// ContactSubmitted is the payload of TypeContactSubmitted.
type ContactSubmitted struct {
	Name    string
	Email   string
	Company string
	Message string
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every handler of the event type in subscription order. A
// failing handler does not stop the others; all failures are joined.
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for i, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %d: %w", event.Type, i, err))
		}
	}
	return errors.Join(errs...)
}
