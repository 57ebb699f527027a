// Package events carries the in-process publish/subscribe plumbing the
// modules use to decouple side effects from the writes that cause them.
// Domain event types live in internal/events; this package only defines the
// envelope and the bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by everything published on the bus. EventName keys
// handler registration and must stay stable across releases.
type Event interface {
	EventName() string
	EventID() uuid.UUID
	OccurredAt() time.Time
}

// BaseEvent is the envelope every event embeds: a unique ID that correlates
// handler logs with the publishing write, and the publish time.
type BaseEvent struct {
	ID        uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps a fresh envelope.
func NewBaseEvent() BaseEvent {
	return BaseEvent{ID: uuid.New(), Timestamp: time.Now()}
}
