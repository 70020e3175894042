// Package events provides the typed event bus that fans push deliveries out to
// the stores that own them.
package events

import (
	"context"
	"sync"

	"github.com/storefront-io/chatsync/internal/models"
)

// Type categorizes bus events.
type Type string

const (
	// TypeMessageCreated carries a newly delivered message.
	TypeMessageCreated Type = "message.created"

	// TypeConversationRead signals a conversation's read state changed.
	TypeConversationRead Type = "conversation.read"
)

// Event is one push delivery routed through the bus. Message is set for
// message.created events; ConversationID is always set.
type Event struct {
	Type           Type
	ConversationID string
	Message        *models.Message
}

// Handler is a callback invoked for each event matching a subscription.
type Handler func(event Event)

// Filter defines criteria for matching events.
type Filter struct {
	// Types filters by event type (nil = all types).
	Types []Type

	// ConversationID scopes the subscription to one conversation (empty = all).
	ConversationID string
}

// Matches returns true if the event matches the filter criteria.
func (f *Filter) Matches(event Event) bool {
	if len(f.Types) > 0 {
		matched := false
		for _, t := range f.Types {
			if event.Type == t {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if f.ConversationID != "" && event.ConversationID != f.ConversationID {
		return false
	}

	return true
}

// subscription represents an active bus subscription.
type subscription struct {
	id      string
	filter  Filter
	handler Handler
}

// Bus defines the interface for event publishing and subscription.
type Bus interface {
	// Publish sends an event to all matching subscribers, synchronously and in
	// the caller's goroutine, so merges stay ordered per source.
	Publish(ctx context.Context, event Event)

	// Subscribe registers a handler for events matching the filter.
	Subscribe(id string, filter Filter, handler Handler) error

	// Unsubscribe removes a subscription by ID.
	Unsubscribe(id string) error

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// InMemoryBus implements Bus with in-process fan-out.
type InMemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subscriptions: make(map[string]*subscription),
	}
}

// Publish sends an event to all matching subscribers.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	if event.ConversationID == "" {
		return
	}

	// Collect matching handlers under read lock.
	b.mu.RLock()
	var handlers []Handler
	for _, sub := range b.subscriptions {
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	// Invoke handlers outside the lock to avoid deadlocks when a handler
	// subscribes or unsubscribes.
	for _, handler := range handlers {
		handler(event)
	}
}

// Subscribe registers a handler for events matching the filter.
func (b *InMemoryBus) Subscribe(id string, filter Filter, handler Handler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}

	b.subscriptions[id] = &subscription{
		id:      id,
		filter:  filter,
		handler: handler,
	}

	return nil
}

// Unsubscribe removes a subscription by ID.
func (b *InMemoryBus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}

	delete(b.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (b *InMemoryBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close removes all subscriptions.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string]*subscription)
}

// Errors for bus operations.
var (
	ErrInvalidSubscriptionID = &BusError{Message: "subscription ID is required"}
	ErrNilHandler            = &BusError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &BusError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &BusError{Message: "subscription not found"}
)

// BusError represents an error from bus operations.
type BusError struct {
	Message string
}

func (e *BusError) Error() string {
	return e.Message
}
