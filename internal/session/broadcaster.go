// ABOUTME: In-memory fan-out of session events to live subscribers
// ABOUTME: Sessions publish each appended message and every status change keyed by session id

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// EventKind distinguishes session events.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventStatus  EventKind = "status"
)

// Event is published when a session appends a message or changes status.
// Message is set for EventMessage only.
type Event struct {
	Kind      EventKind
	SessionID string
	Seq       int
	Status    Status
	Message   *Message
	Hash      string
}

// Broadcaster provides pub/sub of session events. Publishing never blocks:
// events are dropped for subscribers whose buffers are full.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // sessionID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for events of one session. The subscription ends when
// ctx is cancelled or Unsubscribe is called; the channel is then closed.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[string]chan Event)
	}
	b.subscribers[sessionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session_id", sessionID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish delivers ev to every subscriber of ev.SessionID.
func (b *Broadcaster) Publish(ev Event) {
	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"session_id", ev.SessionID,
				"kind", ev.Kind,
				"seq", ev.Seq)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("subscriber removed", "session_id", sessionID, "sub_id", subID)
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, sessionID)
	}
}
