package repository

import (
	"context"
	"database/sql"
	"time"

	"storyadmin/internal/models"
)

// CampaignRepository defines campaign data access operations
type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	// GetByIDForUpdate locks the campaign row inside the caller's
	// transaction so a status check and the mutation it guards happen
	// atomically.
	GetByIDForUpdate(ctx context.Context, q DB, id string) (*models.Campaign, error)
	List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error)
	Update(ctx context.Context, q DB, campaign *models.Campaign) error
	UpdateStatus(ctx context.Context, q DB, id string, status models.CampaignStatus, updatedBy string) error
	// UpdateStatusFrom writes the status only if the row is currently in
	// from, so the write cannot clobber a concurrent transition. Reports
	// whether a row changed.
	UpdateStatusFrom(ctx context.Context, q DB, id string, from, to models.CampaignStatus, updatedBy string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// CampaignFilters defines filters for listing campaigns
type CampaignFilters struct {
	Page     int
	PageSize int
	Status   *models.CampaignStatus
}

// AssetRepository defines campaign asset data access operations
type AssetRepository interface {
	Upsert(ctx context.Context, asset *models.CampaignAsset) error
	ListByCampaign(ctx context.Context, campaignID string) ([]*models.CampaignAsset, error)
	Delete(ctx context.Context, campaignID string, channel models.Channel, language string) error
	// CopyToCampaign clones every asset of src onto dst (campaign
	// duplication copies assets but never batches or recipients).
	CopyToCampaign(ctx context.Context, srcCampaignID, dstCampaignID string) error
}

// BatchRepository defines campaign batch data access operations
type BatchRepository interface {
	Create(ctx context.Context, batch *models.CampaignBatch) error
	GetByID(ctx context.Context, id string) (*models.CampaignBatch, error)
	MarkRunning(ctx context.Context, id string) error
	// Finalize records the aggregate stats and terminal status exactly
	// once; a second call for the same batch is a no-op error.
	Finalize(ctx context.Context, id string, status models.BatchStatus, stats models.SendStats, snapshotHash string) error
	ListByCampaign(ctx context.Context, campaignID string, includeSamples bool) ([]*models.CampaignBatch, error)
}

// RecipientRepository defines campaign recipient data access operations
type RecipientRepository interface {
	// InsertQueued inserts recipient rows in the queued state, relying on
	// the unique (campaign_id, recipient_id) constraint to keep one row
	// per individual. Existing failed or skipped rows are re-queued onto
	// the new batch; sent and queued rows are left alone. Only the rows
	// queued for this batch are returned.
	InsertQueued(ctx context.Context, recipients []*models.CampaignRecipient) ([]*models.CampaignRecipient, error)
	MarkResult(ctx context.Context, id string, status models.RecipientStatus, lastError *string) error
	SentRecipientIDs(ctx context.Context, campaignID string, rt models.RecipientType) ([]string, error)
	CountSentSince(ctx context.Context, campaignID string, since time.Time) (int, error)
	StatsByCampaign(ctx context.Context, campaignID string) (models.SendStats, error)
}

// DB is the subset of *sql.DB and *sql.Tx the repositories need, so guarded
// mutations can run inside a caller-owned transaction.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
