// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/policy"
	"outreach_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadQualified is published after a lead has been scored and persisted.
type LeadQualified struct {
	BaseEvent
	LeadID    uuid.UUID   `json:"leadId"`
	OrgDomain string      `json:"orgDomain"`
	Score     int         `json:"score"`
	Tier      policy.Tier `json:"tier"`
}

func (e LeadQualified) EventName() string { return "leads.lead.qualified" }

// LeadRejected is published when an intake payload fails validation.
type LeadRejected struct {
	BaseEvent
	Reason string `json:"reason"`
	Source string `json:"source,omitempty"`
}

func (e LeadRejected) EventName() string { return "leads.lead.rejected" }

// =============================================================================
// Engagement Domain Events
// =============================================================================

// EngagementStateChanged is published on every state machine transition.
type EngagementStateChanged struct {
	BaseEvent
	EngagementID uuid.UUID `json:"engagementId"`
	CampaignID   uuid.UUID `json:"campaignId"`
	ContactID    uuid.UUID `json:"contactId"`
	OldState     string    `json:"oldState"`
	NewState     string    `json:"newState"`
	Attempt      int       `json:"attempt"`
}

func (e EngagementStateChanged) EventName() string { return "engagement.state.changed" }

// TouchpointRecorded is published after an outreach attempt is logged.
type TouchpointRecorded struct {
	BaseEvent
	TouchpointID uuid.UUID      `json:"touchpointId"`
	EngagementID uuid.UUID      `json:"engagementId"`
	CampaignID   uuid.UUID      `json:"campaignId"`
	ContactID    uuid.UUID      `json:"contactId"`
	Channel      policy.Channel `json:"channel"`
	Outcome      string         `json:"outcome"`
}

func (e TouchpointRecorded) EventName() string { return "engagement.touchpoint.recorded" }

// ResponseReceived is published when a contact responds on any channel.
type ResponseReceived struct {
	BaseEvent
	EngagementID uuid.UUID `json:"engagementId"`
	CampaignID   uuid.UUID `json:"campaignId"`
	ContactID    uuid.UUID `json:"contactId"`
	Channel      string    `json:"channel,omitempty"`
	Detail       string    `json:"detail,omitempty"`
}

func (e ResponseReceived) EventName() string { return "engagement.response.received" }

// EngagementEscalated is published when an engagement hands over to a human.
type EngagementEscalated struct {
	BaseEvent
	EngagementID    uuid.UUID  `json:"engagementId"`
	CampaignID      uuid.UUID  `json:"campaignId"`
	ContactID       uuid.UUID  `json:"contactId"`
	ContactName     string     `json:"contactName"`
	Organization    string     `json:"organization"`
	ResponseTouchID *uuid.UUID `json:"responseTouchpointId,omitempty"`
	ResponseDetail  string     `json:"responseDetail,omitempty"`
}

func (e EngagementEscalated) EventName() string { return "engagement.escalated" }

// =============================================================================
// Campaign Domain Events
// =============================================================================

// ContactPromoted is published when a sibling contact becomes primary after
// the previous primary was exhausted.
type ContactPromoted struct {
	BaseEvent
	CampaignID         uuid.UUID `json:"campaignId"`
	PromotedContactID  uuid.UUID `json:"promotedContactId"`
	ExhaustedContactID uuid.UUID `json:"exhaustedContactId"`
}

func (e ContactPromoted) EventName() string { return "campaign.contact.promoted" }

// CampaignPaused is published when conflict detection pauses a campaign.
type CampaignPaused struct {
	BaseEvent
	CampaignID uuid.UUID `json:"campaignId"`
	Reason     string    `json:"reason"`
}

func (e CampaignPaused) EventName() string { return "campaign.paused" }

// CampaignResumed is published when a paused campaign becomes active again.
type CampaignResumed struct {
	BaseEvent
	CampaignID uuid.UUID `json:"campaignId"`
}

func (e CampaignResumed) EventName() string { return "campaign.resumed" }

// CampaignWon is published when an operator marks a responded campaign converted.
type CampaignWon struct {
	BaseEvent
	CampaignID uuid.UUID `json:"campaignId"`
	ContactID  uuid.UUID `json:"contactId"`
}

func (e CampaignWon) EventName() string { return "campaign.won" }

// CampaignLost is published when every contact closed without a response.
type CampaignLost struct {
	BaseEvent
	CampaignID uuid.UUID `json:"campaignId"`
}

func (e CampaignLost) EventName() string { return "campaign.lost" }

// CampaignCancelled is published when an operator cancels a campaign.
type CampaignCancelled struct {
	BaseEvent
	CampaignID  uuid.UUID `json:"campaignId"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (e CampaignCancelled) EventName() string { return "campaign.cancelled" }
