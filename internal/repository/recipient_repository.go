package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"storyadmin/internal/models"
)

type recipientRepository struct {
	db *sql.DB
}

// NewRecipientRepository creates a new recipient repository
func NewRecipientRepository(db *sql.DB) RecipientRepository {
	return &recipientRepository{db: db}
}

// InsertQueued inserts recipient rows in the queued state. The unique
// (campaign_id, recipient_id) constraint keeps one row per individual per
// campaign: a conflicting failed or skipped row is re-queued onto the new
// batch (those recipients stay eligible for retry), while sent and queued
// rows conflict without effect, which is what makes retried or concurrent
// batch runs at-most-once per recipient. Only rows actually queued for this
// batch come back; a re-queued row keeps its original id.
func (r *recipientRepository) InsertQueued(ctx context.Context, recipients []*models.CampaignRecipient) ([]*models.CampaignRecipient, error) {
	if len(recipients) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO marketing_campaign_recipients
			(id, batch_id, campaign_id, recipient_type, recipient_id, email, language, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (campaign_id, recipient_id) DO UPDATE
		SET batch_id = EXCLUDED.batch_id,
			status = 'queued',
			last_error = NULL,
			processed_at = NULL
		WHERE marketing_campaign_recipients.status IN ('failed', 'skipped')
		RETURNING id, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := make([]*models.CampaignRecipient, 0, len(recipients))
	for _, recipient := range recipients {
		if recipient.ID == "" {
			recipient.ID = uuid.NewString()
		}
		err := stmt.QueryRowContext(
			ctx,
			recipient.ID,
			recipient.BatchID,
			recipient.CampaignID,
			recipient.RecipientType,
			recipient.RecipientID,
			recipient.Email,
			recipient.Language,
			recipient.Status,
		).Scan(&recipient.ID, &recipient.CreatedAt)

		if err == sql.ErrNoRows {
			// Conflict on a sent or still-queued row: this individual is
			// already handled for the campaign.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert recipient: %w", err)
		}
		inserted = append(inserted, recipient)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// MarkResult records the dispatch outcome for one recipient.
func (r *recipientRepository) MarkResult(ctx context.Context, id string, status models.RecipientStatus, lastError *string) error {
	query := `
		UPDATE marketing_campaign_recipients
		SET status = $1, last_error = $2, processed_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, status, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to update recipient status: %w", err)
	}

	return requireRowAffected(result)
}

// SentRecipientIDs returns the source ids already marked sent for a
// campaign. Failed and skipped recipients are not included: they stay
// eligible for later batches.
func (r *recipientRepository) SentRecipientIDs(ctx context.Context, campaignID string, rt models.RecipientType) ([]string, error) {
	query := `
		SELECT recipient_id
		FROM marketing_campaign_recipients
		WHERE campaign_id = $1 AND recipient_type = $2 AND status = 'sent'
	`

	rows, err := r.db.QueryContext(ctx, query, campaignID, rt)
	if err != nil {
		return nil, fmt.Errorf("failed to query sent recipients: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan recipient id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CountSentSince counts successful sends processed at or after since, used
// to enforce the per-UTC-day send limit.
func (r *recipientRepository) CountSentSince(ctx context.Context, campaignID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM marketing_campaign_recipients
		WHERE campaign_id = $1 AND status = 'sent' AND processed_at >= $2
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, campaignID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sent recipients: %w", err)
	}

	return count, nil
}

// StatsByCampaign aggregates recipient outcomes across all batches.
func (r *recipientRepository) StatsByCampaign(ctx context.Context, campaignID string) (models.SendStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE processed_at IS NOT NULL) as processed,
			COUNT(*) FILTER (WHERE status = 'sent') as sent,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'skipped') as skipped
		FROM marketing_campaign_recipients
		WHERE campaign_id = $1
	`

	stats := models.SendStats{}
	err := r.db.QueryRowContext(ctx, query, campaignID).Scan(
		&stats.Processed,
		&stats.Sent,
		&stats.Failed,
		&stats.Skipped,
	)
	if err != nil && err != sql.ErrNoRows {
		return stats, fmt.Errorf("failed to get recipient stats: %w", err)
	}

	return stats, nil
}
