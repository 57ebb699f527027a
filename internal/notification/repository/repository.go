// Package repository provides data access for operator notifications.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("notification not found")

// Notification kinds.
const (
	KindEscalation   = "engagement_escalated"
	KindCampaignWon  = "campaign_won"
	KindCampaignLost = "campaign_lost"
)

type Notification struct {
	ID         uuid.UUID
	Kind       string
	CampaignID *uuid.UUID
	ContactID  *uuid.UUID
	Title      string
	Body       string
	ReadAt     *time.Time
	CreatedAt  time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type CreateParams struct {
	Kind       string
	CampaignID *uuid.UUID
	ContactID  *uuid.UUID
	Title      string
	Body       string
}

func (r *Repository) Create(ctx context.Context, params CreateParams) (Notification, error) {
	query := `
		INSERT INTO notifications (kind, campaign_id, contact_id, title, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, kind, campaign_id, contact_id, title, body, read_at, created_at`

	var n Notification
	err := r.pool.QueryRow(ctx, query,
		params.Kind, params.CampaignID, params.ContactID, params.Title, params.Body,
	).Scan(&n.ID, &n.Kind, &n.CampaignID, &n.ContactID, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

func (r *Repository) ListUnread(ctx context.Context, limit int) ([]Notification, error) {
	query := `
		SELECT id, kind, campaign_id, contact_id, title, body, read_at, created_at
		FROM notifications
		WHERE read_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.CampaignID, &n.ContactID, &n.Title,
			&n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read_at = now() WHERE id = $1 AND read_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already read or missing; distinguish for the API layer.
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check notification: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}
