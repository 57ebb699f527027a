// Package notification turns campaign outcomes into operator-facing
// notifications: in-app rows always, plus an email to the escalation inbox
// when one is configured.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"outreach_backend/internal/events"
	"outreach_backend/internal/notification/repository"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, params repository.CreateParams) (repository.Notification, error)
	ListUnread(ctx context.Context, limit int) ([]repository.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	store    Store
	emailCfg config.EmailConfig
	escCfg   config.EscalationConfig
	log      *logger.Logger
}

func NewService(store Store, emailCfg config.EmailConfig, escCfg config.EscalationConfig, log *logger.Logger) *Service {
	return &Service{store: store, emailCfg: emailCfg, escCfg: escCfg, log: log}
}

// RegisterHandlers subscribes the service to the campaign outcome events.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.EngagementEscalated{}.EventName(), events.HandlerFunc(s.onEscalated))
	bus.Subscribe(events.CampaignWon{}.EventName(), events.HandlerFunc(s.onWon))
	bus.Subscribe(events.CampaignLost{}.EventName(), events.HandlerFunc(s.onLost))
}

func (s *Service) onEscalated(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.EngagementEscalated)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	title := fmt.Sprintf("%s at %s responded", evt.ContactName, evt.Organization)
	body := "The engagement was handed off for a human follow-up."
	if evt.ResponseDetail != "" {
		body = fmt.Sprintf("Response: %q", evt.ResponseDetail)
	}

	if _, err := s.store.Create(ctx, repository.CreateParams{
		Kind:       repository.KindEscalation,
		CampaignID: &evt.CampaignID,
		ContactID:  &evt.ContactID,
		Title:      title,
		Body:       body,
	}); err != nil {
		return err
	}

	s.sendEscalationEmail(ctx, title, fmt.Sprintf(
		"%s\n\nCampaign: %s/campaigns/%s\n", body, s.escCfg.GetAppBaseURL(), evt.CampaignID))
	return nil
}

func (s *Service) onWon(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.CampaignWon)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	_, err := s.store.Create(ctx, repository.CreateParams{
		Kind:       repository.KindCampaignWon,
		CampaignID: &evt.CampaignID,
		ContactID:  &evt.ContactID,
		Title:      "Campaign converted",
		Body:       fmt.Sprintf("Campaign %s was marked won.", evt.CampaignID),
	})
	return err
}

func (s *Service) onLost(ctx context.Context, event events.Event) error {
	evt, ok := event.(events.CampaignLost)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	_, err := s.store.Create(ctx, repository.CreateParams{
		Kind:       repository.KindCampaignLost,
		CampaignID: &evt.CampaignID,
		Title:      "Campaign closed without response",
		Body:       fmt.Sprintf("Every contact in campaign %s was exhausted.", evt.CampaignID),
	})
	return err
}

// sendEscalationEmail is best effort; the in-app notification is the source
// of truth and a mail failure only logs.
func (s *Service) sendEscalationEmail(ctx context.Context, subject, body string) {
	to := s.escCfg.GetEscalationEmail()
	if to == "" || !s.emailCfg.GetEmailEnabled() {
		return
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.emailCfg.GetEmailFromName(), s.emailCfg.GetEmailFromAddress()); err != nil {
		s.log.Error("escalation email from address", "error", err.Error())
		return
	}
	if err := msg.To(to); err != nil {
		s.log.Error("escalation email recipient", "error", err.Error())
		return
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(s.emailCfg.GetSMTPHost(),
		mail.WithPort(s.emailCfg.GetSMTPPort()),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.emailCfg.GetSMTPUsername()),
		mail.WithPassword(s.emailCfg.GetSMTPPassword()),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		s.log.Error("escalation email client", "error", err.Error())
		return
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		s.log.Error("escalation email send", "error", err.Error())
	}
}

// Unread returns the most recent unread notifications.
func (s *Service) Unread(ctx context.Context, limit int) ([]repository.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListUnread(ctx, limit)
}

// MarkRead acknowledges one notification.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.store.MarkRead(ctx, id)
}
