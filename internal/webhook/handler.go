package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	enrepo "outreach_backend/internal/engagement/repository"
	"outreach_backend/internal/leads"
	leaddomain "outreach_backend/internal/leads/domain"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
)

// LeadIntaker accepts a validated lead submission.
type LeadIntaker interface {
	Intake(ctx context.Context, params leads.IntakeParams) (leaddomain.Lead, leaddomain.QualificationResult, error)
}

// ResponseRecorder applies an inbound contact response to its engagement.
type ResponseRecorder interface {
	RecordResponse(ctx context.Context, engagementID uuid.UUID, channel, detail string) error
}

// Handler handles webhook HTTP requests.
type Handler struct {
	intaker   LeadIntaker
	responses ResponseRecorder
	repo      *Repository
	val       *validator.Validator
}

func NewHandler(intaker LeadIntaker, responses ResponseRecorder, repo *Repository, val *validator.Validator) *Handler {
	return &Handler{intaker: intaker, responses: responses, repo: repo, val: val}
}

// ---- Lead intake (public, API-key authenticated) ----

// LeadSubmission is the inbound lead payload.
type LeadSubmission struct {
	Organization   string  `json:"organization" validate:"required,min=1,max=200"`
	OrgDomain      string  `json:"orgDomain" validate:"required,min=3,max=200"`
	ContactName    string  `json:"contactName" validate:"required,min=1,max=200"`
	ContactRole    string  `json:"contactRole" validate:"max=100"`
	Email          string  `json:"email" validate:"required,email"`
	Phone          string  `json:"phone" validate:"max=30"`
	OrgSizeBucket  string  `json:"orgSizeBucket" validate:"max=20"`
	VolumeBucket   string  `json:"volumeBucket" validate:"max=20"`
	FreeText       string  `json:"freeText" validate:"max=5000"`
	FormCompleted  bool    `json:"formCompleted"`
	MeetingBooked  bool    `json:"meetingBooked"`
	IndustrySignal *string `json:"industrySignal" validate:"omitempty,max=100"`
	AnnualRevenue  *int64  `json:"annualRevenue" validate:"omitempty,min=0"`
	EmployeeCount  *int    `json:"employeeCount" validate:"omitempty,min=0"`
	Source         string  `json:"source" validate:"max=100"`
	ReplacesLeadID *string `json:"replacesLeadId" validate:"omitempty,uuid"`
}

// LeadSubmissionResponse echoes the created lead and its qualification.
type LeadSubmissionResponse struct {
	LeadID    uuid.UUID `json:"leadId"`
	Score     int       `json:"score"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"createdAt"`
}

// HandleLeadSubmission processes an inbound lead submission.
// POST /api/v1/webhook/leads
func (h *Handler) HandleLeadSubmission(c *gin.Context) {
	var req LeadSubmission
	if !h.bindAndValidate(c, &req) {
		return
	}

	params := leads.IntakeParams{
		Organization:   req.Organization,
		OrgDomain:      req.OrgDomain,
		ContactName:    req.ContactName,
		ContactRole:    req.ContactRole,
		Email:          req.Email,
		Phone:          req.Phone,
		OrgSizeBucket:  req.OrgSizeBucket,
		VolumeBucket:   req.VolumeBucket,
		FreeText:       req.FreeText,
		FormCompleted:  req.FormCompleted,
		MeetingBooked:  req.MeetingBooked,
		IndustrySignal: req.IndustrySignal,
		AnnualRevenue:  req.AnnualRevenue,
		EmployeeCount:  req.EmployeeCount,
		Source:         req.Source,
	}
	if req.ReplacesLeadID != nil {
		id, err := uuid.Parse(*req.ReplacesLeadID)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid replacesLeadId", nil)
			return
		}
		params.ReplacesLeadID = &id
	}

	lead, result, err := h.intaker.Intake(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, LeadSubmissionResponse{
		LeadID:    lead.ID,
		Score:     result.Score,
		Tier:      string(result.Tier),
		CreatedAt: lead.CreatedAt,
	})
}

// ---- Response intake (public, API-key authenticated) ----

// ResponseNotification is an inbound contact response from a channel provider.
type ResponseNotification struct {
	EngagementID string `json:"engagementId" validate:"required,uuid"`
	Channel      string `json:"channel" validate:"required,oneof=email sms call"`
	Detail       string `json:"detail" validate:"max=5000"`
}

// HandleResponseNotification records an inbound contact response.
// POST /api/v1/webhook/responses
func (h *Handler) HandleResponseNotification(c *gin.Context) {
	var req ResponseNotification
	if !h.bindAndValidate(c, &req) {
		return
	}

	engagementID, err := uuid.Parse(req.EngagementID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid engagement ID", nil)
		return
	}

	err = h.responses.RecordResponse(c.Request.Context(), engagementID, req.Channel, req.Detail)
	if errors.Is(err, enrepo.ErrNotFound) {
		httpkit.Error(c, http.StatusNotFound, "engagement not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"status": "recorded"})
}

// ---- API key management (JWT authenticated) ----

// CreateKeyRequest is the request body for creating a new API key.
type CreateKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// KeyResponse is returned when listing or creating API keys.
type KeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateKeyResponse includes the plaintext key (shown only once).
type CreateKeyResponse struct {
	KeyResponse
	Key string `json:"key"`
}

// HandleCreateKey creates a new webhook API key.
// POST /api/v1/webhook/keys
func (h *Handler) HandleCreateKey(c *gin.Context) {
	var req CreateKeyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	plaintext, hash, prefix, err := GenerateKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate API key", nil)
		return
	}

	key, err := h.repo.Create(c.Request.Context(), req.Name, hash, prefix)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, CreateKeyResponse{
		KeyResponse: toKeyResponse(key),
		Key:         plaintext,
	})
}

// HandleListKeys lists all webhook API keys.
// GET /api/v1/webhook/keys
func (h *Handler) HandleListKeys(c *gin.Context) {
	keys, err := h.repo.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]KeyResponse, len(keys))
	for i, key := range keys {
		result[i] = toKeyResponse(key)
	}
	httpkit.OK(c, result)
}

// HandleRevokeKey deactivates a webhook API key.
// DELETE /api/v1/webhook/keys/:keyId
func (h *Handler) HandleRevokeKey(c *gin.Context) {
	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid key ID", nil)
		return
	}

	if err := h.repo.Revoke(c.Request.Context(), keyID); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			httpkit.Error(c, http.StatusNotFound, "API key not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"status": "revoked"})
}

func (h *Handler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}

func toKeyResponse(key APIKey) KeyResponse {
	return KeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		Active:    key.Active,
		CreatedAt: key.CreatedAt,
	}
}
