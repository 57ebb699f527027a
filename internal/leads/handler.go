package leads

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/platform/httpkit"
)

// Handler handles lead HTTP requests.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// LeadResponse is the API representation of a lead with its current
// qualification.
type LeadResponse struct {
	ID             uuid.UUID              `json:"id"`
	Organization   string                 `json:"organization"`
	OrgDomain      string                 `json:"orgDomain"`
	ContactName    string                 `json:"contactName"`
	ContactRole    string                 `json:"contactRole,omitempty"`
	Email          string                 `json:"email"`
	Phone          string                 `json:"phone,omitempty"`
	Source         string                 `json:"source,omitempty"`
	ReplacesLeadID *uuid.UUID             `json:"replacesLeadId,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	Qualification  *QualificationResponse `json:"qualification,omitempty"`
}

// QualificationResponse is the API representation of one scoring evaluation.
type QualificationResponse struct {
	ID              uuid.UUID      `json:"id"`
	Score           int            `json:"score"`
	Tier            string         `json:"tier"`
	Breakdown       map[string]int `json:"breakdown"`
	Rationale       string         `json:"rationale"`
	PositiveFactors []string       `json:"positiveFactors"`
	Concerns        []string       `json:"concerns"`
	ModelVersion    string         `json:"modelVersion"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// HandleGetLead returns a lead with its latest qualification.
// GET /api/v1/leads/:leadId
func (h *Handler) HandleGetLead(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}

	lead, result, err := h.service.Get(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toLeadResponse(lead, result))
}

// HandleListLeads returns the intake history for an organization.
// GET /api/v1/leads?orgDomain=...
func (h *Handler) HandleListLeads(c *gin.Context) {
	orgDomain := c.Query("orgDomain")
	if orgDomain == "" {
		httpkit.Error(c, http.StatusBadRequest, "orgDomain query parameter is required", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	items, err := h.service.ListByOrgDomain(c.Request.Context(), orgDomain, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]LeadResponse, len(items))
	for i, lead := range items {
		result[i] = toLeadResponse(lead, domain.QualificationResult{})
	}
	httpkit.OK(c, result)
}

// HandleLeadHistory returns every qualification of a lead, newest first.
// GET /api/v1/leads/:leadId/history
func (h *Handler) HandleLeadHistory(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}

	results, err := h.service.History(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]QualificationResponse, len(results))
	for i, result := range results {
		out[i] = toQualificationResponse(result)
	}
	httpkit.OK(c, out)
}

// HandleRequalify re-scores a lead against the current policy.
// POST /api/v1/leads/:leadId/requalify
func (h *Handler) HandleRequalify(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}

	result, err := h.service.Requalify(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toQualificationResponse(result))
}

func parseLeadID(c *gin.Context) (uuid.UUID, bool) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead ID", nil)
		return uuid.Nil, false
	}
	return leadID, true
}

func toLeadResponse(lead domain.Lead, result domain.QualificationResult) LeadResponse {
	resp := LeadResponse{
		ID:             lead.ID,
		Organization:   lead.Organization,
		OrgDomain:      lead.OrgDomain,
		ContactName:    lead.ContactName,
		ContactRole:    lead.ContactRole,
		Email:          lead.Email,
		Phone:          lead.Phone,
		Source:         lead.Source,
		ReplacesLeadID: lead.ReplacesLeadID,
		CreatedAt:      lead.CreatedAt,
	}
	if result.ID != uuid.Nil {
		q := toQualificationResponse(result)
		resp.Qualification = &q
	}
	return resp
}

func toQualificationResponse(result domain.QualificationResult) QualificationResponse {
	return QualificationResponse{
		ID:              result.ID,
		Score:           result.Score,
		Tier:            string(result.Tier),
		Breakdown:       result.Breakdown,
		Rationale:       result.Rationale,
		PositiveFactors: result.PositiveFactors,
		Concerns:        result.Concerns,
		ModelVersion:    result.ModelVersion,
		CreatedAt:       result.CreatedAt,
	}
}
