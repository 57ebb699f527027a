// Package leads owns lead intake and qualification: validation, scoring,
// persistence and the hand-off to campaign orchestration.
package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"outreach_backend/internal/campaign"
	"outreach_backend/internal/events"
	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/policy"
	"outreach_backend/internal/scoring"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/phone"
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListLeadsByOrgDomain(ctx context.Context, orgDomain string, limit int) ([]domain.Lead, error)
	CreateResult(ctx context.Context, result domain.QualificationResult) (domain.QualificationResult, error)
	LatestResult(ctx context.Context, leadID uuid.UUID) (domain.QualificationResult, error)
	ListResults(ctx context.Context, leadID uuid.UUID) ([]domain.QualificationResult, error)
}

// Engager starts or extends a campaign for a qualified lead.
type Engager interface {
	OnLeadQualified(ctx context.Context, lead campaign.QualifiedLead) error
}

type Service struct {
	store   Store
	engager Engager
	pol     *policy.Policy
	bus     events.Bus
	log     *logger.Logger
}

func NewService(store Store, engager Engager, pol *policy.Policy, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, engager: engager, pol: pol, bus: bus, log: log}
}

// IntakeParams is a validated lead submission.
type IntakeParams struct {
	Organization   string
	OrgDomain      string
	ContactName    string
	ContactRole    string
	Email          string
	Phone          string
	OrgSizeBucket  string
	VolumeBucket   string
	FreeText       string
	FormCompleted  bool
	MeetingBooked  bool
	IndustrySignal *string
	AnnualRevenue  *int64
	EmployeeCount  *int
	Source         string
	ReplacesLeadID *uuid.UUID
}

// Intake persists a new lead, scores it and hands qualified leads to the
// campaign orchestrator. The lead row is written before scoring so that a
// rejected or unqualified submission still leaves an audit trail.
func (s *Service) Intake(ctx context.Context, params IntakeParams) (domain.Lead, domain.QualificationResult, error) {
	lead := domain.Lead{
		Organization:   strings.TrimSpace(params.Organization),
		OrgDomain:      normalizeDomain(params.OrgDomain),
		ContactName:    strings.TrimSpace(params.ContactName),
		ContactRole:    strings.TrimSpace(params.ContactRole),
		Email:          strings.ToLower(strings.TrimSpace(params.Email)),
		Phone:          phone.NormalizeE164(params.Phone),
		OrgSizeBucket:  params.OrgSizeBucket,
		VolumeBucket:   params.VolumeBucket,
		FreeText:       params.FreeText,
		FormCompleted:  params.FormCompleted,
		MeetingBooked:  params.MeetingBooked,
		IndustrySignal: params.IndustrySignal,
		AnnualRevenue:  params.AnnualRevenue,
		EmployeeCount:  params.EmployeeCount,
		Source:         params.Source,
		ReplacesLeadID: params.ReplacesLeadID,
	}

	if params.ReplacesLeadID != nil {
		if _, err := s.store.GetLead(ctx, *params.ReplacesLeadID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Lead{}, domain.QualificationResult{},
					apperr.Validation("replaced lead does not exist")
			}
			return domain.Lead{}, domain.QualificationResult{}, err
		}
	}

	result, err := scoring.Score(lead, s.pol.Scoring)
	if err != nil {
		s.bus.Publish(ctx, events.LeadRejected{
			BaseEvent: events.NewBaseEvent(),
			Reason:    err.Error(),
			Source:    params.Source,
		})
		return domain.Lead{}, domain.QualificationResult{}, err
	}

	lead, err = s.store.CreateLead(ctx, lead)
	if err != nil {
		return domain.Lead{}, domain.QualificationResult{}, fmt.Errorf("persist lead: %w", err)
	}

	result.LeadID = lead.ID
	result, err = s.store.CreateResult(ctx, result)
	if err != nil {
		return domain.Lead{}, domain.QualificationResult{}, fmt.Errorf("persist qualification: %w", err)
	}

	s.log.Info("lead qualified",
		"lead_id", lead.ID.String(),
		"org_domain", lead.OrgDomain,
		"score", result.Score,
		"tier", string(result.Tier))

	s.bus.Publish(ctx, events.LeadQualified{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		OrgDomain: lead.OrgDomain,
		Score:     result.Score,
		Tier:      result.Tier,
	})

	if err := s.engager.OnLeadQualified(ctx, campaign.QualifiedLead{
		LeadID:       lead.ID,
		Organization: lead.Organization,
		OrgDomain:    lead.OrgDomain,
		ContactName:  lead.ContactName,
		ContactRole:  lead.ContactRole,
		Email:        lead.Email,
		Phone:        lead.Phone,
		Tier:         result.Tier,
	}); err != nil {
		// The lead and its score are already durable; orchestration errors
		// must not fail the intake.
		s.log.Error("campaign hand-off failed",
			"lead_id", lead.ID.String(), "error", err.Error())
	}

	return lead, result, nil
}

// Get returns a lead with its latest qualification.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Lead, domain.QualificationResult, error) {
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, domain.QualificationResult{}, apperr.NotFound("lead not found")
		}
		return domain.Lead{}, domain.QualificationResult{}, err
	}
	result, err := s.store.LatestResult(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrResultNotFound) {
		return domain.Lead{}, domain.QualificationResult{}, err
	}
	return lead, result, nil
}

// ListByOrgDomain returns the intake history for an organization.
func (s *Service) ListByOrgDomain(ctx context.Context, orgDomain string, limit int) ([]domain.Lead, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListLeadsByOrgDomain(ctx, normalizeDomain(orgDomain), limit)
}

// History returns every qualification of a lead, newest first.
func (s *Service) History(ctx context.Context, leadID uuid.UUID) ([]domain.QualificationResult, error) {
	if _, err := s.store.GetLead(ctx, leadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, err
	}
	return s.store.ListResults(ctx, leadID)
}

// Requalify re-scores an existing lead against the current policy and
// appends a new result. An upgrade into an engageable tier hands the lead to
// the orchestrator; a downgrade never touches a running campaign.
func (s *Service) Requalify(ctx context.Context, leadID uuid.UUID) (domain.QualificationResult, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.QualificationResult{}, apperr.NotFound("lead not found")
		}
		return domain.QualificationResult{}, err
	}

	previous, err := s.store.LatestResult(ctx, leadID)
	if err != nil && !errors.Is(err, repository.ErrResultNotFound) {
		return domain.QualificationResult{}, err
	}

	result, err := scoring.Score(lead, s.pol.Scoring)
	if err != nil {
		return domain.QualificationResult{}, err
	}
	result.LeadID = lead.ID
	result, err = s.store.CreateResult(ctx, result)
	if err != nil {
		return domain.QualificationResult{}, fmt.Errorf("persist qualification: %w", err)
	}

	wasEngageable := s.pol.Engageable(previous.Tier)
	if !wasEngageable && s.pol.Engageable(result.Tier) {
		if err := s.engager.OnLeadQualified(ctx, campaign.QualifiedLead{
			LeadID:       lead.ID,
			Organization: lead.Organization,
			OrgDomain:    lead.OrgDomain,
			ContactName:  lead.ContactName,
			ContactRole:  lead.ContactRole,
			Email:        lead.Email,
			Phone:        lead.Phone,
			Tier:         result.Tier,
		}); err != nil {
			s.log.Error("campaign hand-off failed",
				"lead_id", lead.ID.String(), "error", err.Error())
		}
	}
	return result, nil
}

func normalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimSuffix(d, "/")
}
