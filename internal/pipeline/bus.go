package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/matrixci/internal/logfields"
)

// EventStore defines the interface for persisting events.
// This is a subset of history.Store to avoid circular dependencies.
type EventStore interface {
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error
}

// Handler processes an Event; return error to signal failure.
type Handler func(Event) error

// Bus is a simple synchronous pub/sub event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	eventStore  EventStore // optional event store for persistence
}

func NewBus() *Bus { return &Bus{subscribers: map[string][]Handler{}} }

// NewBusWithEventStore creates a bus that persists events to the store.
func NewBusWithEventStore(store EventStore) *Bus {
	return &Bus{
		subscribers: map[string][]Handler{},
		eventStore:  store,
	}
}

// Subscribe registers a handler for a given event name.
func (b *Bus) Subscribe(event string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[event] = append(b.subscribers[event], h)
	b.mu.Unlock()
}

// Publish delivers an event to all handlers synchronously.
// If an event store is configured, the event is persisted before being
// delivered to handlers; persistence failures are logged and do not affect
// the run.
func (b *Bus) Publish(e Event) error {
	if b.eventStore != nil {
		runID := "unknown"
		if re, ok := e.(interface{ GetRunID() string }); ok {
			runID = re.GetRunID()
		}

		payload, err := json.Marshal(e)
		if err != nil {
			payload = []byte{}
		}
		if err := b.eventStore.Append(context.Background(), runID, e.Name(), payload, nil); err != nil {
			slog.Warn("Failed to persist pipeline event",
				logfields.RunID(runID),
				logfields.Event(e.Name()),
				logfields.Error(err))
		}
	}

	b.mu.RLock()
	hs := append([]Handler(nil), b.subscribers[e.Name()]...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(e); err != nil {
			return err
		}
	}
	return nil
}
