// Package repository provides data access for campaigns and contacts.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("campaign not found")
	ErrContactNotFound = errors.New("contact not found")
)

// Campaign statuses.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusWon       = "won"
	StatusLost      = "lost"
	StatusCancelled = "cancelled"
)

// Campaign is one outreach effort per organization domain.
type Campaign struct {
	ID               uuid.UUID
	OrgDomain        string
	Organization     string
	Status           string
	ConflictFlag     bool
	PrimaryContactID *uuid.UUID
	FirstResponderID *uuid.UUID
	CancelRequested  bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Contact is a person at the target organization. Priority is derived from
// role seniority at upsert time; higher means contacted earlier.
type Contact struct {
	ID        uuid.UUID
	OrgDomain string
	Name      string
	Email     *string
	Phone     *string
	Role      string
	Priority  int
	CreatedAt time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const campaignColumns = `id, org_domain, organization, status, conflict_flag,
	primary_contact_id, first_responder_id, cancel_requested, created_at, updated_at`

// CreateIfAbsent inserts a campaign for the org domain, or returns the
// existing one. One campaign per domain is enforced by the unique index.
func (r *Repository) CreateIfAbsent(ctx context.Context, orgDomain, organization string) (Campaign, error) {
	query := `
		INSERT INTO campaigns (org_domain, organization)
		VALUES ($1, $2)
		ON CONFLICT (org_domain) DO UPDATE SET updated_at = now()
		RETURNING ` + campaignColumns

	return r.scanCampaign(r.pool.QueryRow(ctx, query, orgDomain, organization))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	c, err := r.scanCampaign(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

func (r *Repository) GetByOrgDomain(ctx context.Context, orgDomain string) (Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE org_domain = $1`
	c, err := r.scanCampaign(r.pool.QueryRow(ctx, query, orgDomain))
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

// SetStatus updates the status and conflict flag together; the two always
// change as a pair when conflict detection pauses or resumes a campaign.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string, conflictFlag bool) (Campaign, error) {
	query := `
		UPDATE campaigns
		SET status = $2, conflict_flag = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + campaignColumns

	c, err := r.scanCampaign(r.pool.QueryRow(ctx, query, id, status, conflictFlag))
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

func (r *Repository) SetPrimaryContact(ctx context.Context, id, contactID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET primary_contact_id = $2, updated_at = now() WHERE id = $1`,
		id, contactID)
	if err != nil {
		return fmt.Errorf("set primary contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFirstResponder records the responding contact only when none is set yet.
// The first response is authoritative.
func (r *Repository) SetFirstResponder(ctx context.Context, id, contactID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET first_responder_id = $2, updated_at = now()
		 WHERE id = $1 AND first_responder_id IS NULL`,
		id, contactID)
	if err != nil {
		return fmt.Errorf("set first responder: %w", err)
	}
	return nil
}

func (r *Repository) RequestCancel(ctx context.Context, id uuid.UUID) (Campaign, error) {
	query := `
		UPDATE campaigns
		SET cancel_requested = TRUE, updated_at = now()
		WHERE id = $1
		RETURNING ` + campaignColumns

	c, err := r.scanCampaign(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

type UpsertContactParams struct {
	OrgDomain string
	Name      string
	Email     *string
	Phone     *string
	Role      string
	Priority  int
}

// UpsertContact inserts or refreshes a contact keyed by org domain plus the
// best available address, email when present, otherwise phone. A repeat lead
// for the same address updates name, phone, role and priority in place.
func (r *Repository) UpsertContact(ctx context.Context, params UpsertContactParams) (Contact, error) {
	query := `
		INSERT INTO contacts (org_domain, name, email, phone, role, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (org_domain, COALESCE(email, phone)) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone,
		    role = EXCLUDED.role, priority = EXCLUDED.priority
		RETURNING id, org_domain, name, email, phone, role, priority, created_at`

	return r.scanContact(r.pool.QueryRow(ctx, query,
		params.OrgDomain, params.Name, params.Email, params.Phone, params.Role, params.Priority))
}

func (r *Repository) GetContact(ctx context.Context, id uuid.UUID) (Contact, error) {
	query := `
		SELECT id, org_domain, name, email, phone, role, priority, created_at
		FROM contacts WHERE id = $1`

	c, err := r.scanContact(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrContactNotFound
	}
	return c, err
}

// ListContacts returns all contacts for the org domain, highest priority
// first with creation order as the tiebreaker.
func (r *Repository) ListContacts(ctx context.Context, orgDomain string) ([]Contact, error) {
	query := `
		SELECT id, org_domain, name, email, phone, role, priority, created_at
		FROM contacts
		WHERE org_domain = $1
		ORDER BY priority DESC, created_at`

	rows, err := r.pool.Query(ctx, query, orgDomain)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := r.scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) scanCampaign(row pgx.Row) (Campaign, error) {
	var c Campaign
	err := row.Scan(&c.ID, &c.OrgDomain, &c.Organization, &c.Status, &c.ConflictFlag,
		&c.PrimaryContactID, &c.FirstResponderID, &c.CancelRequested,
		&c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *Repository) scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.OrgDomain, &c.Name, &c.Email, &c.Phone, &c.Role,
		&c.Priority, &c.CreatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, fmt.Errorf("scan contact: %w", err)
	}
	return c, err
}
