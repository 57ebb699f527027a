package campaign

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_backend/internal/campaign/repository"
	enrepo "outreach_backend/internal/engagement/repository"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"
)

// Reader is the read surface the campaign handler needs.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Campaign, error)
	GetByOrgDomain(ctx context.Context, orgDomain string) (repository.Campaign, error)
	ListContacts(ctx context.Context, orgDomain string) ([]repository.Contact, error)
}

// EngagementReader is the engagement read surface for timelines.
type EngagementReader interface {
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]enrepo.EngagementState, error)
	ListTouchpointsByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]enrepo.Touchpoint, error)
}

// Handler handles campaign HTTP requests.
type Handler struct {
	orch        *Orchestrator
	campaigns   Reader
	engagements EngagementReader
	val         *validator.Validator
	log         *logger.Logger
}

func NewHandler(orch *Orchestrator, campaigns Reader, engagements EngagementReader, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{orch: orch, campaigns: campaigns, engagements: engagements, val: val, log: log}
}

// CampaignResponse is the API representation of a campaign.
type CampaignResponse struct {
	ID               uuid.UUID            `json:"id"`
	OrgDomain        string               `json:"orgDomain"`
	Organization     string               `json:"organization"`
	Status           string               `json:"status"`
	ConflictFlag     bool                 `json:"conflictFlag"`
	PrimaryContactID *uuid.UUID           `json:"primaryContactId,omitempty"`
	FirstResponderID *uuid.UUID           `json:"firstResponderId,omitempty"`
	CancelRequested  bool                 `json:"cancelRequested"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
	Contacts         []ContactResponse    `json:"contacts,omitempty"`
	Engagements      []EngagementResponse `json:"engagements,omitempty"`
}

// ContactResponse is the API representation of a campaign contact.
type ContactResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    *string   `json:"email,omitempty"`
	Phone    *string   `json:"phone,omitempty"`
	Role     string    `json:"role,omitempty"`
	Priority int       `json:"priority"`
}

// EngagementResponse is the API representation of one contact's engagement.
type EngagementResponse struct {
	ID              uuid.UUID       `json:"id"`
	ContactID       uuid.UUID       `json:"contactId"`
	State           string          `json:"state"`
	Tier            string          `json:"tier"`
	AttemptCount    int             `json:"attemptCount"`
	CurrentChannel  *policy.Channel `json:"currentChannel,omitempty"`
	LastContactedAt *time.Time      `json:"lastContactedAt,omitempty"`
	NextScheduledAt *time.Time      `json:"nextScheduledAt,omitempty"`
}

// TouchpointResponse is one timeline entry.
type TouchpointResponse struct {
	ID             uuid.UUID     `json:"id"`
	EngagementID   uuid.UUID     `json:"engagementId"`
	ContactID      uuid.UUID     `json:"contactId"`
	Channel        policy.Channel `json:"channel"`
	Outcome        string        `json:"outcome"`
	ColleagueRefID *uuid.UUID    `json:"colleagueRefId,omitempty"`
	Subject        *string       `json:"subject,omitempty"`
	Detail         *string       `json:"detail,omitempty"`
	OccurredAt     time.Time     `json:"occurredAt"`
}

// HandleGetCampaign returns a campaign with its contacts and engagements.
// GET /api/v1/campaigns/:campaignId
func (h *Handler) HandleGetCampaign(c *gin.Context) {
	camp, ok := h.loadCampaign(c)
	if !ok {
		return
	}

	contacts, err := h.campaigns.ListContacts(c.Request.Context(), camp.OrgDomain)
	if httpkit.HandleError(c, err) {
		return
	}
	states, err := h.engagements.ListByCampaign(c.Request.Context(), camp.ID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toCampaignResponse(camp, contacts, states))
}

// HandleGetCampaignByDomain resolves a campaign by organization domain.
// GET /api/v1/campaigns?orgDomain=...
func (h *Handler) HandleGetCampaignByDomain(c *gin.Context) {
	orgDomain := c.Query("orgDomain")
	if orgDomain == "" {
		httpkit.Error(c, http.StatusBadRequest, "orgDomain query parameter is required", nil)
		return
	}

	camp, err := h.campaigns.GetByOrgDomain(c.Request.Context(), orgDomain)
	if errors.Is(err, repository.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "campaign not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toCampaignResponse(camp, nil, nil))
}

// HandleTimeline returns the touchpoint history of a campaign, newest first.
// GET /api/v1/campaigns/:campaignId/timeline
func (h *Handler) HandleTimeline(c *gin.Context) {
	camp, ok := h.loadCampaign(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	touchpoints, err := h.engagements.ListTouchpointsByCampaign(c.Request.Context(), camp.ID, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]TouchpointResponse, len(touchpoints))
	for i, tp := range touchpoints {
		out[i] = TouchpointResponse{
			ID:             tp.ID,
			EngagementID:   tp.EngagementID,
			ContactID:      tp.ContactID,
			Channel:        tp.Channel,
			Outcome:        tp.Outcome,
			ColleagueRefID: tp.ColleagueRefID,
			Subject:        tp.Subject,
			Detail:         tp.Detail,
			OccurredAt:     tp.OccurredAt,
		}
	}
	httpkit.OK(c, out)
}

// HandleMarkWon closes a campaign as converted.
// POST /api/v1/campaigns/:campaignId/won
func (h *Handler) HandleMarkWon(c *gin.Context) {
	h.verdict(c, h.orch.MarkWon)
}

// HandleMarkLost closes a campaign as not converted.
// POST /api/v1/campaigns/:campaignId/lost
func (h *Handler) HandleMarkLost(c *gin.Context) {
	h.verdict(c, h.orch.MarkLost)
}

// HandleCancel requests cancellation; the next scheduler tick finalizes it.
// POST /api/v1/campaigns/:campaignId/cancel
func (h *Handler) HandleCancel(c *gin.Context) {
	h.verdict(c, h.orch.Cancel)
}

// RecordResponseRequest is an operator-entered contact response.
type RecordResponseRequest struct {
	Channel string `json:"channel" validate:"required,oneof=email sms call"`
	Detail  string `json:"detail" validate:"max=5000"`
}

// HandleRecordResponse records a contact response against an engagement.
// POST /api/v1/engagements/:engagementId/response
func (h *Handler) HandleRecordResponse(c *gin.Context) {
	engagementID, err := uuid.Parse(c.Param("engagementId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid engagement ID", nil)
		return
	}

	var req RecordResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	err = h.orch.RecordResponse(c.Request.Context(), engagementID, req.Channel, req.Detail)
	if errors.Is(err, enrepo.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "engagement not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "recorded"})
}

func (h *Handler) verdict(c *gin.Context, apply func(ctx context.Context, id uuid.UUID) error) {
	operator := httpkit.MustGetIdentity(c)
	if operator == nil {
		return
	}

	campaignID, err := uuid.Parse(c.Param("campaignId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid campaign ID", nil)
		return
	}

	h.log.Info("campaign verdict requested",
		"campaign_id", campaignID.String(),
		"operator_id", operator.UserID().String())

	err = apply(c.Request.Context(), campaignID)
	if errors.Is(err, repository.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "campaign not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "accepted"})
}

func (h *Handler) loadCampaign(c *gin.Context) (repository.Campaign, bool) {
	campaignID, err := uuid.Parse(c.Param("campaignId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid campaign ID", nil)
		return repository.Campaign{}, false
	}

	camp, err := h.campaigns.GetByID(c.Request.Context(), campaignID)
	if errors.Is(err, repository.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "campaign not found", nil)
		return repository.Campaign{}, false
	}
	if httpkit.HandleError(c, err) {
		return repository.Campaign{}, false
	}
	return camp, true
}

func toCampaignResponse(camp repository.Campaign, contacts []repository.Contact, states []enrepo.EngagementState) CampaignResponse {
	resp := CampaignResponse{
		ID:               camp.ID,
		OrgDomain:        camp.OrgDomain,
		Organization:     camp.Organization,
		Status:           camp.Status,
		ConflictFlag:     camp.ConflictFlag,
		PrimaryContactID: camp.PrimaryContactID,
		FirstResponderID: camp.FirstResponderID,
		CancelRequested:  camp.CancelRequested,
		CreatedAt:        camp.CreatedAt,
		UpdatedAt:        camp.UpdatedAt,
	}
	for _, contact := range contacts {
		resp.Contacts = append(resp.Contacts, ContactResponse{
			ID:       contact.ID,
			Name:     contact.Name,
			Email:    contact.Email,
			Phone:    contact.Phone,
			Role:     contact.Role,
			Priority: contact.Priority,
		})
	}
	for _, state := range states {
		resp.Engagements = append(resp.Engagements, EngagementResponse{
			ID:              state.ID,
			ContactID:       state.ContactID,
			State:           state.State,
			Tier:            string(state.Tier),
			AttemptCount:    state.AttemptCount,
			CurrentChannel:  state.CurrentChannel,
			LastContactedAt: state.LastContactedAt,
			NextScheduledAt: state.NextScheduledAt,
		})
	}
	return resp
}
