package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"storyadmin/internal/models"
)

type assetRepository struct {
	db *sql.DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *sql.DB) AssetRepository {
	return &assetRepository{db: db}
}

// Upsert inserts or replaces the asset for (campaign, channel, language).
// The unique constraint guarantees one row per locale; a second upsert
// updates content in place.
func (r *assetRepository) Upsert(ctx context.Context, asset *models.CampaignAsset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}

	query := `
		INSERT INTO marketing_campaign_assets
			(id, campaign_id, channel, language, subject, html_body, text_body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (campaign_id, channel, language) DO UPDATE
		SET subject = EXCLUDED.subject,
			html_body = EXCLUDED.html_body,
			text_body = EXCLUDED.text_body,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		asset.ID,
		asset.CampaignID,
		asset.Channel,
		asset.Language,
		asset.Subject,
		asset.HTMLBody,
		asset.TextBody,
	).Scan(&asset.ID, &asset.CreatedAt, &asset.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert asset: %w", err)
	}

	return nil
}

// ListByCampaign retrieves all assets for a campaign
func (r *assetRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*models.CampaignAsset, error) {
	query := `
		SELECT id, campaign_id, channel, language, subject, html_body, text_body, created_at, updated_at
		FROM marketing_campaign_assets
		WHERE campaign_id = $1
		ORDER BY language ASC
	`

	rows, err := r.db.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	assets := []*models.CampaignAsset{}
	for rows.Next() {
		asset := &models.CampaignAsset{}
		err := rows.Scan(
			&asset.ID,
			&asset.CampaignID,
			&asset.Channel,
			&asset.Language,
			&asset.Subject,
			&asset.HTMLBody,
			&asset.TextBody,
			&asset.CreatedAt,
			&asset.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}

	return assets, rows.Err()
}

// Delete removes one locale's asset
func (r *assetRepository) Delete(ctx context.Context, campaignID string, channel models.Channel, language string) error {
	query := `
		DELETE FROM marketing_campaign_assets
		WHERE campaign_id = $1 AND channel = $2 AND language = $3
	`

	result, err := r.db.ExecContext(ctx, query, campaignID, channel, language)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	return requireRowAffected(result)
}

// CopyToCampaign clones every asset of src onto dst with fresh ids.
func (r *assetRepository) CopyToCampaign(ctx context.Context, srcCampaignID, dstCampaignID string) error {
	query := `
		INSERT INTO marketing_campaign_assets
			(id, campaign_id, channel, language, subject, html_body, text_body)
		SELECT gen_random_uuid(), $1, channel, language, subject, html_body, text_body
		FROM marketing_campaign_assets
		WHERE campaign_id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, dstCampaignID, srcCampaignID); err != nil {
		return fmt.Errorf("failed to copy assets: %w", err)
	}

	return nil
}
