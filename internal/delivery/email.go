package delivery

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"outreach_backend/internal/engagement"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// EmailSender delivers outreach email over SMTP.
type EmailSender struct {
	cfg config.EmailConfig
	log *logger.Logger
}

func NewEmailSender(cfg config.EmailConfig, log *logger.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, log: log}
}

func (s *EmailSender) Send(ctx context.Context, req engagement.DispatchRequest) error {
	if !s.cfg.GetEmailEnabled() {
		return fmt.Errorf("email sending is disabled")
	}
	if req.Contact.Email == "" {
		return fmt.Errorf("contact %s has no email address", req.Contact.ID)
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.GetEmailFromName(), s.cfg.GetEmailFromAddress()); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.AddToFormat(req.Contact.Name, req.Contact.Email); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(req.Message.Subject)
	msg.SetBodyString(mail.TypeTextPlain, req.Message.Body)

	client, err := mail.NewClient(s.cfg.GetSMTPHost(),
		mail.WithPort(s.cfg.GetSMTPPort()),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.GetSMTPUsername()),
		mail.WithPassword(s.cfg.GetSMTPPassword()),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	s.log.Info("outreach email sent",
		"to", req.Contact.Email,
		"subject", req.Message.Subject)
	return nil
}
