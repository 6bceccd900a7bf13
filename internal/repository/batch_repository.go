package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"storyadmin/internal/models"
)

type batchRepository struct {
	db *sql.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *sql.DB) BatchRepository {
	return &batchRepository{db: db}
}

// Create creates a new batch in the queued state
func (r *batchRepository) Create(ctx context.Context, batch *models.CampaignBatch) error {
	statsJSON, err := json.Marshal(batch.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode batch stats: %w", err)
	}

	query := `
		INSERT INTO marketing_campaign_batches
			(id, campaign_id, status, requested_by, sample_send, stats)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING requested_at
	`

	err = r.db.QueryRowContext(
		ctx,
		query,
		batch.ID,
		batch.CampaignID,
		batch.Status,
		batch.RequestedBy,
		batch.SampleSend,
		statsJSON,
	).Scan(&batch.RequestedAt)

	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	return nil
}

// GetByID retrieves a batch by ID
func (r *batchRepository) GetByID(ctx context.Context, id string) (*models.CampaignBatch, error) {
	query := batchSelectColumns + ` WHERE id = $1`

	batch, err := scanBatch(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return batch, err
}

// MarkRunning moves a queued batch to running with its start timestamp.
func (r *batchRepository) MarkRunning(ctx context.Context, id string) error {
	query := `
		UPDATE marketing_campaign_batches
		SET status = 'running', started_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'queued'
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark batch running: %w", err)
	}

	return requireRowAffected(result)
}

// Finalize records aggregate stats and the terminal status. The status
// guard makes finalization idempotent: stats are written exactly once.
func (r *batchRepository) Finalize(ctx context.Context, id string, status models.BatchStatus, stats models.SendStats, snapshotHash string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode batch stats: %w", err)
	}

	var hash *string
	if snapshotHash != "" {
		hash = &snapshotHash
	}

	query := `
		UPDATE marketing_campaign_batches
		SET status = $1, stats = $2, asset_snapshot_hash = $3, completed_at = CURRENT_TIMESTAMP
		WHERE id = $4 AND status IN ('queued', 'running')
	`

	result, err := r.db.ExecContext(ctx, query, status, statsJSON, hash, id)
	if err != nil {
		return fmt.Errorf("failed to finalize batch: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("batch already finalized")
	}

	return nil
}

// ListByCampaign retrieves batch history, newest first. Sample sends are
// excluded unless includeSamples is set.
func (r *batchRepository) ListByCampaign(ctx context.Context, campaignID string, includeSamples bool) ([]*models.CampaignBatch, error) {
	query := batchSelectColumns + ` WHERE campaign_id = $1`
	if !includeSamples {
		query += ` AND sample_send = FALSE`
	}
	query += ` ORDER BY requested_at DESC`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	batches := []*models.CampaignBatch{}
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}

	return batches, rows.Err()
}

const batchSelectColumns = `
	SELECT id, campaign_id, status, requested_by, sample_send, asset_snapshot_hash,
		stats, requested_at, started_at, completed_at
	FROM marketing_campaign_batches`

func scanBatch(s rowScanner) (*models.CampaignBatch, error) {
	batch := &models.CampaignBatch{}
	var statsJSON []byte

	err := s.Scan(
		&batch.ID,
		&batch.CampaignID,
		&batch.Status,
		&batch.RequestedBy,
		&batch.SampleSend,
		&batch.AssetSnapshotHash,
		&statsJSON,
		&batch.RequestedAt,
		&batch.StartedAt,
		&batch.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}

	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &batch.Stats); err != nil {
			return nil, fmt.Errorf("failed to decode batch stats: %w", err)
		}
	}

	return batch, nil
}
