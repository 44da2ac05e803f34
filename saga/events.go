package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Event is something that happened once a saga succeeded
type Event interface {
	EventName() string
}

// EventBus dispatches events to whoever listens for them
type EventBus interface {
	Dispatch(ctx context.Context, event Event) error
}

// Listener reacts to a dispatched event
type Listener interface {
	Handle(ctx context.Context, event Event) error
}

// ListenerFunc is a function adapter for Listener
type ListenerFunc func(ctx context.Context, event Event) error

// Handle implements Listener
func (f ListenerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// LocalEventBus delivers events synchronously to in-process listeners
type LocalEventBus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewLocalEventBus creates a bus with no listeners
func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{listeners: make(map[string][]Listener)}
}

// Subscribe registers a listener for events with the given name
func (b *LocalEventBus) Subscribe(name string, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], listener)
}

// Dispatch calls every listener of the event. All listeners run even if
// one fails; their errors are joined.
func (b *LocalEventBus) Dispatch(ctx context.Context, event Event) error {
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners[event.EventName()]...)
	b.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l.Handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("listener for %s failed: %w", event.EventName(), err))
		}
	}
	return errors.Join(errs...)
}
