package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"outreach_backend/internal/events"
	"outreach_backend/internal/notification/repository"
	platformevents "outreach_backend/platform/events"
	"outreach_backend/platform/logger"
)

type fakeStore struct {
	mu      sync.Mutex
	created []repository.Notification
}

func (s *fakeStore) Create(_ context.Context, params repository.CreateParams) (repository.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := repository.Notification{
		ID:         uuid.New(),
		Kind:       params.Kind,
		CampaignID: params.CampaignID,
		ContactID:  params.ContactID,
		Title:      params.Title,
		Body:       params.Body,
	}
	s.created = append(s.created, n)
	return n, nil
}

func (s *fakeStore) ListUnread(_ context.Context, limit int) ([]repository.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.created) > limit {
		return s.created[:limit], nil
	}
	return s.created, nil
}

func (s *fakeStore) MarkRead(context.Context, uuid.UUID) error { return nil }

type disabledEmail struct{}

func (disabledEmail) GetEmailEnabled() bool       { return false }
func (disabledEmail) GetSMTPHost() string         { return "" }
func (disabledEmail) GetSMTPPort() int            { return 0 }
func (disabledEmail) GetSMTPUsername() string     { return "" }
func (disabledEmail) GetSMTPPassword() string     { return "" }
func (disabledEmail) GetEmailFromName() string    { return "" }
func (disabledEmail) GetEmailFromAddress() string { return "" }

type escConfig struct{}

func (escConfig) GetEscalationEmail() string { return "" }
func (escConfig) GetAppBaseURL() string      { return "http://localhost:4200" }

func newTestService() (*Service, *fakeStore, events.Bus) {
	log := logger.New("development")
	store := &fakeStore{}
	svc := NewService(store, disabledEmail{}, escConfig{}, log)
	bus := platformevents.NewInMemoryBus(log)
	svc.RegisterHandlers(bus)
	return svc, store, bus
}

func TestEscalationCreatesNotification(t *testing.T) {
	_, store, bus := newTestService()

	evt := events.EngagementEscalated{
		BaseEvent:      events.NewBaseEvent(),
		EngagementID:   uuid.New(),
		CampaignID:     uuid.New(),
		ContactID:      uuid.New(),
		ContactName:    "Dana Reyes",
		Organization:   "Acme",
		ResponseDetail: "call me Thursday",
	}
	if err := bus.PublishSync(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(store.created))
	}
	n := store.created[0]
	if n.Kind != repository.KindEscalation {
		t.Fatalf("expected escalation kind, got %s", n.Kind)
	}
	if n.CampaignID == nil || *n.CampaignID != evt.CampaignID {
		t.Fatal("expected campaign reference on the notification")
	}
}

func TestWonAndLostCreateNotifications(t *testing.T) {
	_, store, bus := newTestService()
	ctx := context.Background()

	if err := bus.PublishSync(ctx, events.CampaignWon{
		BaseEvent: events.NewBaseEvent(), CampaignID: uuid.New(), ContactID: uuid.New(),
	}); err != nil {
		t.Fatalf("publish won: %v", err)
	}
	if err := bus.PublishSync(ctx, events.CampaignLost{
		BaseEvent: events.NewBaseEvent(), CampaignID: uuid.New(),
	}); err != nil {
		t.Fatalf("publish lost: %v", err)
	}

	if len(store.created) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(store.created))
	}
	if store.created[0].Kind != repository.KindCampaignWon || store.created[1].Kind != repository.KindCampaignLost {
		t.Fatalf("unexpected kinds: %s, %s", store.created[0].Kind, store.created[1].Kind)
	}
}

func TestUnreadClampsLimit(t *testing.T) {
	svc, store, _ := newTestService()
	for i := 0; i < 3; i++ {
		store.created = append(store.created, repository.Notification{ID: uuid.New()})
	}

	out, err := svc.Unread(context.Background(), -5)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected all 3 notifications, got %d", len(out))
	}
}
