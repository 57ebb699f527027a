// Package repository provides data access for leads and their qualification
// results. Both tables are append-only: corrections insert a replacement
// lead, re-evaluations insert a new result.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/internal/leads/domain"
	"outreach_backend/internal/policy"
)

var (
	ErrNotFound       = errors.New("lead not found")
	ErrResultNotFound = errors.New("qualification result not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, organization, org_domain, contact_name, contact_role, email, phone,
	org_size_bucket, volume_bucket, free_text, form_completed, meeting_booked,
	industry_signal, annual_revenue, employee_count, source, replaces_lead_id, created_at`

// CreateLead inserts an immutable lead record.
func (r *Repository) CreateLead(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	query := `
		INSERT INTO leads (organization, org_domain, contact_name, contact_role, email, phone,
		                   org_size_bucket, volume_bucket, free_text, form_completed,
		                   meeting_booked, industry_signal, annual_revenue, employee_count,
		                   source, replaces_lead_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING ` + leadColumns

	var phone *string
	if lead.Phone != "" {
		phone = &lead.Phone
	}
	var source *string
	if lead.Source != "" {
		source = &lead.Source
	}

	return r.scanLead(r.pool.QueryRow(ctx, query,
		lead.Organization, lead.OrgDomain, lead.ContactName, lead.ContactRole,
		lead.Email, phone, lead.OrgSizeBucket, lead.VolumeBucket, lead.FreeText,
		lead.FormCompleted, lead.MeetingBooked, lead.IndustrySignal,
		lead.AnnualRevenue, lead.EmployeeCount, source, lead.ReplacesLeadID))
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := r.scanLead(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// ListLeadsByOrgDomain returns the intake history for an organization,
// newest first.
func (r *Repository) ListLeadsByOrgDomain(ctx context.Context, orgDomain string, limit int) ([]domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE org_domain = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, orgDomain, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		lead, err := r.scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// CreateResult appends a qualification result for a lead.
func (r *Repository) CreateResult(ctx context.Context, result domain.QualificationResult) (domain.QualificationResult, error) {
	breakdown, err := json.Marshal(result.Breakdown)
	if err != nil {
		return domain.QualificationResult{}, fmt.Errorf("marshal breakdown: %w", err)
	}
	positives, err := json.Marshal(result.PositiveFactors)
	if err != nil {
		return domain.QualificationResult{}, fmt.Errorf("marshal positive factors: %w", err)
	}
	concerns, err := json.Marshal(result.Concerns)
	if err != nil {
		return domain.QualificationResult{}, fmt.Errorf("marshal concerns: %w", err)
	}

	query := `
		INSERT INTO qualification_results (lead_id, score, tier, breakdown, rationale,
		                                   positive_factors, concerns, model_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, lead_id, score, tier, breakdown, rationale, positive_factors,
		          concerns, model_version, created_at`

	return r.scanResult(r.pool.QueryRow(ctx, query,
		result.LeadID, result.Score, result.Tier, breakdown, result.Rationale,
		positives, concerns, result.ModelVersion))
}

// LatestResult returns the current qualification for a lead.
func (r *Repository) LatestResult(ctx context.Context, leadID uuid.UUID) (domain.QualificationResult, error) {
	query := `
		SELECT id, lead_id, score, tier, breakdown, rationale, positive_factors,
		       concerns, model_version, created_at
		FROM qualification_results
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	result, err := r.scanResult(r.pool.QueryRow(ctx, query, leadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QualificationResult{}, ErrResultNotFound
	}
	return result, err
}

// ListResults returns every evaluation of a lead, newest first.
func (r *Repository) ListResults(ctx context.Context, leadID uuid.UUID) ([]domain.QualificationResult, error) {
	query := `
		SELECT id, lead_id, score, tier, breakdown, rationale, positive_factors,
		       concerns, model_version, created_at
		FROM qualification_results
		WHERE lead_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("list qualification results: %w", err)
	}
	defer rows.Close()

	var out []domain.QualificationResult
	for rows.Next() {
		result, err := r.scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

func (r *Repository) scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	var phone, source *string
	err := row.Scan(&lead.ID, &lead.Organization, &lead.OrgDomain, &lead.ContactName,
		&lead.ContactRole, &lead.Email, &phone, &lead.OrgSizeBucket, &lead.VolumeBucket,
		&lead.FreeText, &lead.FormCompleted, &lead.MeetingBooked, &lead.IndustrySignal,
		&lead.AnnualRevenue, &lead.EmployeeCount, &source, &lead.ReplacesLeadID,
		&lead.CreatedAt)
	if err != nil {
		return domain.Lead{}, err
	}
	if phone != nil {
		lead.Phone = *phone
	}
	if source != nil {
		lead.Source = *source
	}
	return lead, nil
}

func (r *Repository) scanResult(row pgx.Row) (domain.QualificationResult, error) {
	var result domain.QualificationResult
	var tier string
	var breakdown, positives, concerns []byte
	err := row.Scan(&result.ID, &result.LeadID, &result.Score, &tier, &breakdown,
		&result.Rationale, &positives, &concerns, &result.ModelVersion, &result.CreatedAt)
	if err != nil {
		return domain.QualificationResult{}, err
	}
	result.Tier = policy.Tier(tier)
	if err := json.Unmarshal(breakdown, &result.Breakdown); err != nil {
		return domain.QualificationResult{}, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal(positives, &result.PositiveFactors); err != nil {
		return domain.QualificationResult{}, fmt.Errorf("unmarshal positive factors: %w", err)
	}
	if err := json.Unmarshal(concerns, &result.Concerns); err != nil {
		return domain.QualificationResult{}, fmt.Errorf("unmarshal concerns: %w", err)
	}
	return result, nil
}
