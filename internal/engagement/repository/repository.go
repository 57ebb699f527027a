// Package repository provides data access for engagement states and touchpoints.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_backend/internal/engagement/domain"
	"outreach_backend/internal/policy"
)

var (
	ErrNotFound        = errors.New("engagement state not found")
	ErrVersionConflict = errors.New("engagement state version conflict")
)

// Touchpoint outcomes. A failed dispatch is still a touchpoint: it consumed
// an attempt slot and counts toward the conflict window.
const (
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeResponded = "responded"
)

// EngagementState is the persisted per-contact state machine row.
type EngagementState struct {
	ID               uuid.UUID
	CampaignID       uuid.UUID
	ContactID        uuid.UUID
	LeadID           uuid.UUID
	State            string
	Tier             policy.Tier
	AttemptCount     int
	CurrentChannel   *policy.Channel
	LastContactedAt  *time.Time
	NextScheduledAt  *time.Time
	ResponseReceived bool
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Touchpoint is one logged interaction with a contact.
type Touchpoint struct {
	ID             uuid.UUID
	CampaignID     uuid.UUID
	EngagementID   uuid.UUID
	ContactID      uuid.UUID
	Channel        policy.Channel
	Outcome        string
	ColleagueRefID *uuid.UUID
	Subject        *string
	Detail         *string
	OccurredAt     time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type CreateParams struct {
	CampaignID uuid.UUID
	ContactID  uuid.UUID
	LeadID     uuid.UUID
	Tier       policy.Tier
}

// Create inserts a fresh engagement in the New state at version 1.
func (r *Repository) Create(ctx context.Context, params CreateParams) (EngagementState, error) {
	query := `
		INSERT INTO engagement_states (campaign_id, contact_id, lead_id, state, tier)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, campaign_id, contact_id, lead_id, state, tier, attempt_count,
		          current_channel, last_contacted_at, next_scheduled_at,
		          response_received, version, created_at, updated_at`

	return r.scanOne(r.pool.QueryRow(ctx, query,
		params.CampaignID, params.ContactID, params.LeadID, domain.StateNew, params.Tier))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (EngagementState, error) {
	query := `
		SELECT id, campaign_id, contact_id, lead_id, state, tier, attempt_count,
		       current_channel, last_contacted_at, next_scheduled_at,
		       response_received, version, created_at, updated_at
		FROM engagement_states
		WHERE id = $1`

	state, err := r.scanOne(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return EngagementState{}, ErrNotFound
	}
	return state, err
}

func (r *Repository) ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]EngagementState, error) {
	query := `
		SELECT id, campaign_id, contact_id, lead_id, state, tier, attempt_count,
		       current_channel, last_contacted_at, next_scheduled_at,
		       response_received, version, created_at, updated_at
		FROM engagement_states
		WHERE campaign_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list engagements by campaign: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// ListDue returns schedulable engagements whose next action time has passed,
// oldest first. The partial index on next_scheduled_at keeps this cheap.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]EngagementState, error) {
	query := `
		SELECT id, campaign_id, contact_id, lead_id, state, tier, attempt_count,
		       current_channel, last_contacted_at, next_scheduled_at,
		       response_received, version, created_at, updated_at
		FROM engagement_states
		WHERE state IN ($1, $2)
		  AND next_scheduled_at IS NOT NULL
		  AND next_scheduled_at <= $3
		ORDER BY next_scheduled_at
		LIMIT $4`

	rows, err := r.pool.Query(ctx, query,
		domain.StateAwaitingResponse, domain.StateFollowingUp, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due engagements: %w", err)
	}
	defer rows.Close()
	return r.scanAll(rows)
}

type UpdateStateParams struct {
	ID               uuid.UUID
	ExpectedVersion  int64
	State            string
	AttemptCount     int
	CurrentChannel   *policy.Channel
	LastContactedAt  *time.Time
	NextScheduledAt  *time.Time
	ResponseReceived bool
}

// UpdateState applies a transition with an optimistic-concurrency check.
// The row is written only when its version still matches ExpectedVersion;
// a concurrent writer surfaces as ErrVersionConflict.
func (r *Repository) UpdateState(ctx context.Context, params UpdateStateParams) (EngagementState, error) {
	query := `
		UPDATE engagement_states
		SET state = $3, attempt_count = $4, current_channel = $5,
		    last_contacted_at = $6, next_scheduled_at = $7,
		    response_received = $8, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING id, campaign_id, contact_id, lead_id, state, tier, attempt_count,
		          current_channel, last_contacted_at, next_scheduled_at,
		          response_received, version, created_at, updated_at`

	state, err := r.scanOne(r.pool.QueryRow(ctx, query,
		params.ID, params.ExpectedVersion, params.State, params.AttemptCount,
		params.CurrentChannel, params.LastContactedAt, params.NextScheduledAt,
		params.ResponseReceived))
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a stale version from a missing row.
		if _, getErr := r.GetByID(ctx, params.ID); errors.Is(getErr, ErrNotFound) {
			return EngagementState{}, ErrNotFound
		}
		return EngagementState{}, ErrVersionConflict
	}
	return state, err
}

type CreateTouchpointParams struct {
	CampaignID     uuid.UUID
	EngagementID   uuid.UUID
	ContactID      uuid.UUID
	Channel        policy.Channel
	Outcome        string
	ColleagueRefID *uuid.UUID
	Subject        *string
	Detail         *string
}

func (r *Repository) AppendTouchpoint(ctx context.Context, params CreateTouchpointParams) (Touchpoint, error) {
	query := `
		INSERT INTO touchpoints (campaign_id, engagement_id, contact_id, channel,
		                         outcome, colleague_ref_id, subject, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, campaign_id, engagement_id, contact_id, channel, outcome,
		          colleague_ref_id, subject, detail, occurred_at`

	var tp Touchpoint
	err := r.pool.QueryRow(ctx, query,
		params.CampaignID, params.EngagementID, params.ContactID, params.Channel,
		params.Outcome, params.ColleagueRefID, params.Subject, params.Detail,
	).Scan(&tp.ID, &tp.CampaignID, &tp.EngagementID, &tp.ContactID, &tp.Channel,
		&tp.Outcome, &tp.ColleagueRefID, &tp.Subject, &tp.Detail, &tp.OccurredAt)
	if err != nil {
		return Touchpoint{}, fmt.Errorf("append touchpoint: %w", err)
	}
	return tp, nil
}

// LastDispatchAt returns the time of the most recent outbound attempt across
// the campaign, or nil when no dispatch has happened yet. Failed dispatches
// count: the contact's mailbox may still have received something. Dispatches
// to excludeContactID are ignored so a contact's own cadence never conflicts
// with itself; pass uuid.Nil to consider every contact.
func (r *Repository) LastDispatchAt(ctx context.Context, campaignID, excludeContactID uuid.UUID) (*time.Time, error) {
	query := `
		SELECT occurred_at
		FROM touchpoints
		WHERE campaign_id = $1 AND contact_id <> $2 AND outcome IN ($3, $4)
		ORDER BY occurred_at DESC
		LIMIT 1`

	var at time.Time
	err := r.pool.QueryRow(ctx, query, campaignID, excludeContactID, OutcomeSent, OutcomeFailed).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last dispatch time: %w", err)
	}
	return &at, nil
}

// ListTouchpointsByCampaign returns the campaign timeline, newest first.
func (r *Repository) ListTouchpointsByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]Touchpoint, error) {
	query := `
		SELECT id, campaign_id, engagement_id, contact_id, channel, outcome,
		       colleague_ref_id, subject, detail, occurred_at
		FROM touchpoints
		WHERE campaign_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list touchpoints: %w", err)
	}
	defer rows.Close()

	var out []Touchpoint
	for rows.Next() {
		var tp Touchpoint
		if err := rows.Scan(&tp.ID, &tp.CampaignID, &tp.EngagementID, &tp.ContactID,
			&tp.Channel, &tp.Outcome, &tp.ColleagueRefID, &tp.Subject, &tp.Detail,
			&tp.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan touchpoint: %w", err)
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

func (r *Repository) scanOne(row pgx.Row) (EngagementState, error) {
	var s EngagementState
	err := row.Scan(&s.ID, &s.CampaignID, &s.ContactID, &s.LeadID, &s.State,
		&s.Tier, &s.AttemptCount, &s.CurrentChannel, &s.LastContactedAt,
		&s.NextScheduledAt, &s.ResponseReceived, &s.Version, &s.CreatedAt,
		&s.UpdatedAt)
	return s, err
}

func (r *Repository) scanAll(rows pgx.Rows) ([]EngagementState, error) {
	var out []EngagementState
	for rows.Next() {
		var s EngagementState
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.ContactID, &s.LeadID, &s.State,
			&s.Tier, &s.AttemptCount, &s.CurrentChannel, &s.LastContactedAt,
			&s.NextScheduledAt, &s.ResponseReceived, &s.Version, &s.CreatedAt,
			&s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan engagement state: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
