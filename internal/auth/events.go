package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/barangayhub/portal/internal/ids"
)

// EventKind names a session lifecycle event.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event describes a change to a user's session. SessionID is uuid.Nil for
// events that apply to every session of the user.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	UserID    uuid.UUID `json:"userId"`
	SessionID uuid.UUID `json:"sessionId"`
	At        time.Time `json:"at"`
}

// Concerns reports whether e is relevant to the given session of userID.
func (e Event) Concerns(userID, sessionID uuid.UUID) bool {
	if e.UserID != userID {
		return false
	}
	return e.SessionID == uuid.Nil || e.SessionID == sessionID
}

// Broker fans session events out to all active subscribers.
type Broker struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when ctx ends.
func (b *Broker) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to every subscriber, assigning an ID and timestamp
// when missing.
func (b *Broker) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = ids.New()
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
