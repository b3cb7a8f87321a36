package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind names an identity lifecycle event.
type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	// EventRoleChanged is raised when an administrator changes a user's role.
	EventRoleChanged EventKind = "role_changed"
)

// Event describes an identity change for a single user.
type Event struct {
	Kind   EventKind
	UserID string
	At     time.Time
}

// EventHandler reacts to a published event.
type EventHandler func(context.Context, Event) error

// EventBus fans identity events out to in-process subscribers. Handlers run
// synchronously in subscription order so caches are coherent once Publish
// returns.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventKind][]EventHandler
	logger      *slog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{subscribers: make(map[EventKind][]EventHandler), logger: logger}
}

// Subscribe registers handler for the listed kinds.
func (b *EventBus) Subscribe(handler EventHandler, kinds ...EventKind) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, kind := range kinds {
		b.subscribers[kind] = append(b.subscribers[kind], handler)
	}
}

// Publish delivers the event to every subscriber of its kind. Handler errors
// are logged and do not stop delivery.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Kind]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			b.logger.Warn("identity event handler", slog.String("kind", string(event.Kind)), slog.String("user_id", event.UserID), slog.Any("error", err))
		}
	}
}
