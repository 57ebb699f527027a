package events

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"outreach_backend/platform/logger"
)

type pingEvent struct {
	BaseEvent
}

func (pingEvent) EventName() string { return "test.ping" }

func TestBaseEventCarriesIdentity(t *testing.T) {
	evt := pingEvent{BaseEvent: NewBaseEvent()}
	if evt.EventID() == uuid.Nil {
		t.Fatal("expected a stamped event id")
	}
	if evt.OccurredAt().IsZero() {
		t.Fatal("expected a stamped timestamp")
	}
	if other := NewBaseEvent(); other.EventID() == evt.EventID() {
		t.Fatal("expected distinct ids per envelope")
	}
}

func TestPublishSyncDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryBus(logger.New("test"))

	var seen []uuid.UUID
	bus.Subscribe(pingEvent{}.EventName(), HandlerFunc(func(_ context.Context, event Event) error {
		seen = append(seen, event.EventID())
		return nil
	}))

	evt := pingEvent{BaseEvent: NewBaseEvent()}
	if err := bus.PublishSync(context.Background(), evt); err != nil {
		t.Fatalf("publish sync: %v", err)
	}
	if len(seen) != 1 || seen[0] != evt.EventID() {
		t.Fatalf("expected the published envelope to reach the handler, got %v", seen)
	}
}
