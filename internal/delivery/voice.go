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

// VoiceSender places automated calls through an HTTP voice gateway. The
// message body becomes the call script read to the contact.
type VoiceSender struct {
	cfg    config.VoiceConfig
	client *http.Client
	log    *logger.Logger
}

func NewVoiceSender(cfg config.VoiceConfig, log *logger.Logger) *VoiceSender {
	return &VoiceSender{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type callPayload struct {
	To       string `json:"to"`
	CallerID string `json:"callerId"`
	Script   string `json:"script"`
}

func (s *VoiceSender) Send(ctx context.Context, req engagement.DispatchRequest) error {
	if s.cfg.GetVoiceGatewayURL() == "" {
		return fmt.Errorf("voice gateway is not configured")
	}
	if req.Contact.Phone == "" {
		return fmt.Errorf("contact %s has no phone number", req.Contact.ID)
	}

	body, err := json.Marshal(callPayload{
		To:       phone.NormalizeE164(req.Contact.Phone),
		CallerID: s.cfg.GetVoiceCallerID(),
		Script:   req.Message.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal call payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.GetVoiceGatewayURL()+"/v1/calls", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build call request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.GetVoiceGatewayKey())

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("voice gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("voice gateway returned %d: %s", resp.StatusCode, string(raw))
	}

	s.log.Info("outreach call placed", "to", req.Contact.Phone)
	return nil
}
