package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"outreach_backend/internal/engagement"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/phone"
)

// SMSSender delivers outreach texts through an HTTP SMS gateway.
type SMSSender struct {
	cfg    config.SMSConfig
	client *http.Client
	log    *logger.Logger
}

func NewSMSSender(cfg config.SMSConfig, log *logger.Logger) *SMSSender {
	return &SMSSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type smsPayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *SMSSender) Send(ctx context.Context, req engagement.DispatchRequest) error {
	if s.cfg.GetSMSGatewayURL() == "" {
		return fmt.Errorf("sms gateway is not configured")
	}
	if req.Contact.Phone == "" {
		return fmt.Errorf("contact %s has no phone number", req.Contact.ID)
	}

	body, err := json.Marshal(smsPayload{
		To:   phone.NormalizeE164(req.Contact.Phone),
		Body: req.Message.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.GetSMSGatewayURL()+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.GetSMSGatewayKey())

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sms gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, string(raw))
	}

	s.log.Info("outreach sms sent", "to", req.Contact.Phone)
	return nil
}
