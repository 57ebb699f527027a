// Package domain provides core business types for the leads bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/policy"
)

// Lead is an immutable intake record. Corrections never mutate an existing
// lead; they insert a new row whose ReplacesLeadID points at the old one.
type Lead struct {
	ID           uuid.UUID
	Organization string
	OrgDomain    string
	ContactName  string
	ContactRole  string
	Email        string
	Phone        string

	// Categorical business attributes from the intake form.
	OrgSizeBucket string
	VolumeBucket  string
	FreeText      string
	FormCompleted bool
	MeetingBooked bool

	// Optional enrichment signals.
	IndustrySignal *string
	AnnualRevenue  *int64
	EmployeeCount  *int

	Source         string
	ReplacesLeadID *uuid.UUID
	CreatedAt      time.Time
}

// QualificationResult is the immutable output of one scoring evaluation.
// Re-evaluating a lead appends a new result; the latest one is current.
type QualificationResult struct {
	ID              uuid.UUID
	LeadID          uuid.UUID
	Score           int
	Tier            policy.Tier
	Breakdown       map[string]int
	Rationale       string
	PositiveFactors []string
	Concerns        []string
	ModelVersion    string
	CreatedAt       time.Time
}
