package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus implements an asynchronous publish-subscribe event system.
// Sessions publish lifecycle events on it; the API, console and telemetry
// subscribe without the session knowing about them.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	stopCh   chan struct{}
	stopped  bool

	// inflight counts handlers started by Emit.
	inflight sync.WaitGroup
}

type handlerEntry struct {
	name    string
	handler HandlerFunc
}

// call runs the handler, turning a panic into an error.
func (h handlerEntry) call(ctx context.Context, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.handler(ctx, event)
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]handlerEntry),
		stopCh:   make(chan struct{}),
	}
}

// Subscribe registers a handler for an event type. A name may be reused
// across event types; Unsubscribe removes it per type.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handlerEntry{
		name:    name,
		handler: handler,
	})

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed to event")
}

// Unsubscribe removes a named handler from a specific event type.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	current := eb.handlers[eventType]
	kept := current[:0:0]
	for _, h := range current {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(eb.handlers, eventType)
	} else {
		eb.handlers[eventType] = kept
	}

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("unsubscribed from event")
}

// snapshot returns the handlers for event.Type and stamps the event time.
// ok is false once the bus is stopped or nobody listens.
func (eb *EventBus) snapshot(event *Event) ([]handlerEntry, bool) {
	if eb.stopped {
		return nil, false
	}
	handlers := eb.handlers[event.Type]
	if len(handlers) == 0 {
		return nil, false
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	return append([]handlerEntry(nil), handlers...), true
}

// Emit publishes an event to all subscribed handlers. Each handler runs in
// its own goroutine; Emit never blocks on them.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	handlers, ok := eb.snapshot(&event)
	if !ok {
		return
	}

	log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(handlers)).
		Msg("emitting event")

	eb.inflight.Add(len(handlers))
	for _, h := range handlers {
		h := h
		go func() {
			defer eb.inflight.Done()
			if err := h.call(ctx, event); err != nil {
				logHandlerError(event, h, err)
			}
		}()
	}
}

// EmitSync publishes an event and waits for all handlers to complete.
// Returns the first error encountered, if any.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	eb.mu.RLock()
	handlers, ok := eb.snapshot(&event)
	eb.mu.RUnlock()
	if !ok {
		return nil
	}

	errs := make([]error, len(handlers))
	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for i, h := range handlers {
		i, h := i, h
		go func() {
			defer wg.Done()
			if err := h.call(ctx, event); err != nil {
				logHandlerError(event, h, err)
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func logHandlerError(event Event, h handlerEntry, err error) {
	log.Error().
		Err(err).
		Str("event", string(event.Type)).
		Str("handler", h.name).
		Msg("event handler failed")
}

// Stop stops accepting new events and waits for in-flight handlers started
// by Emit. Calling Stop twice is a no-op.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	close(eb.stopCh)
	eb.mu.Unlock()

	eb.inflight.Wait()
	log.Info().Msg("event bus stopped")
}

// StopCh returns a channel that is closed when the EventBus is stopped.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.stopCh
}

// HandlerCount returns the number of handlers registered for an event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}
