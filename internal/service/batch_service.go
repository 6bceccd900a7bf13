package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"storyadmin/internal/audience"
	"storyadmin/internal/models"
	"storyadmin/internal/repository"
)

// statusCheckInterval is how many recipients are processed between
// re-reads of the campaign status. A cancel lands within one chunk.
const statusCheckInterval = 25

// RecipientResolver selects eligible, deduplicated recipients for a batch.
// Implemented by audience.Estimator.
type RecipientResolver interface {
	ResolveRecipients(ctx context.Context, campaign *models.Campaign, limit int) ([]*audience.Candidate, error)
}

// BatchService runs queued batches: it resolves recipients, dispatches one
// email per recipient, and finalizes aggregate stats exactly once. It is
// the only code path that moves a campaign to completed.
type BatchService struct {
	db              *sql.DB
	campaignRepo    repository.CampaignRepository
	assetRepo       repository.AssetRepository
	batchRepo       repository.BatchRepository
	recipientRepo   repository.RecipientRepository
	resolver        RecipientResolver
	dispatcher      Dispatcher
	batchSize       int
	dispatchTimeout time.Duration
	sampleAddresses []string
}

// NewBatchService creates a new batch service
func NewBatchService(
	db *sql.DB,
	campaignRepo repository.CampaignRepository,
	assetRepo repository.AssetRepository,
	batchRepo repository.BatchRepository,
	recipientRepo repository.RecipientRepository,
	resolver RecipientResolver,
	dispatcher Dispatcher,
	batchSize int,
	dispatchTimeout time.Duration,
	sampleAddresses []string,
) *BatchService {
	if batchSize <= 0 {
		batchSize = 500
	}
	if dispatchTimeout <= 0 {
		dispatchTimeout = 10 * time.Second
	}

	return &BatchService{
		db:              db,
		campaignRepo:    campaignRepo,
		assetRepo:       assetRepo,
		batchRepo:       batchRepo,
		recipientRepo:   recipientRepo,
		resolver:        resolver,
		dispatcher:      dispatcher,
		batchSize:       batchSize,
		dispatchTimeout: dispatchTimeout,
		sampleAddresses: sampleAddresses,
	}
}

// Run executes one batch end to end. It is safe against redelivery: a batch
// that is no longer queued is skipped, and finalization writes stats only
// once. Errors returned here are for logging; the batch row already records
// the terminal outcome wherever one was reached.
func (s *BatchService) Run(ctx context.Context, batchID string) error {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("Batch %s no longer exists, dropping job", batchID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}

	if batch.Status != models.BatchStatusQueued {
		log.Printf("Batch %s is already %s, skipping", batchID, batch.Status)
		return nil
	}

	campaign, err := s.campaignRepo.GetByID(ctx, batch.CampaignID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.failBatch(ctx, batch, models.SendStats{}, "",
			&BatchSetupError{Message: fmt.Sprintf("campaign %s no longer exists", batch.CampaignID)})
	}
	if err != nil {
		return fmt.Errorf("failed to load campaign %s: %w", batch.CampaignID, err)
	}

	// A batch queued before the cancel must not send anything after it.
	if campaign.Status == models.CampaignStatusCancelled {
		return s.failBatch(ctx, batch, models.SendStats{}, "",
			&BatchSetupError{Message: fmt.Sprintf("campaign %s is cancelled", campaign.ID)})
	}

	if err := s.batchRepo.MarkRunning(ctx, batch.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Another worker claimed the batch between the read and here.
			log.Printf("Batch %s claimed elsewhere, skipping", batchID)
			return nil
		}
		return fmt.Errorf("failed to mark batch %s running: %w", batchID, err)
	}

	assets, err := s.assetRepo.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return s.failBatch(ctx, batch, models.SendStats{}, "",
			&BatchSetupError{Message: fmt.Sprintf("failed to load assets: %v", err)})
	}
	if len(assets) == 0 {
		return s.failBatch(ctx, batch, models.SendStats{}, "",
			&BatchSetupError{Message: "campaign has no assets"})
	}

	snapshotHash := assetSnapshotHash(assets)
	byLanguage := make(map[string]*models.CampaignAsset, len(assets))
	for _, asset := range assets {
		byLanguage[asset.Language] = asset
	}

	if batch.SampleSend {
		return s.runSample(ctx, batch, campaign, assets, snapshotHash)
	}
	return s.runSend(ctx, batch, campaign, byLanguage, snapshotHash)
}

// runSample dispatches every locale's asset to each configured test address.
// No recipient rows are written: samples never count toward dedup or the
// daily limit.
func (s *BatchService) runSample(ctx context.Context, batch *models.CampaignBatch, campaign *models.Campaign, assets []*models.CampaignAsset, snapshotHash string) error {
	if len(s.sampleAddresses) == 0 {
		return s.failBatch(ctx, batch, models.SendStats{}, snapshotHash,
			&BatchSetupError{Message: "no sample addresses configured"})
	}

	stats := models.SendStats{}
	for _, address := range s.sampleAddresses {
		for _, asset := range assets {
			dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
			err := s.dispatcher.Dispatch(dctx, &DispatchRequest{
				Email:      address,
				Subject:    asset.Subject,
				HTMLBody:   asset.HTMLBody,
				TextBody:   asset.TextBody,
				Language:   asset.Language,
				CampaignID: campaign.ID,
				SampleSend: true,
			})
			cancel()

			stats.Processed++
			if err != nil {
				log.Printf("Sample dispatch to %s failed: %v", address, err)
				stats.Failed++
			} else {
				stats.Sent++
			}
		}
	}

	return s.finalize(ctx, batch, models.BatchStatusCompleted, stats, snapshotHash)
}

func (s *BatchService) runSend(ctx context.Context, batch *models.CampaignBatch, campaign *models.Campaign, byLanguage map[string]*models.CampaignAsset, snapshotHash string) error {
	limit, err := s.sendBudget(ctx, campaign)
	if err != nil {
		return s.failBatch(ctx, batch, models.SendStats{}, snapshotHash,
			&BatchSetupError{Message: fmt.Sprintf("failed to compute send budget: %v", err)})
	}
	if limit <= 0 {
		// Daily limit already reached. The batch completes empty; tomorrow's
		// batch picks up where this one left off.
		log.Printf("Batch %s: daily send limit reached for campaign %s", batch.ID, campaign.ID)
		return s.finalize(ctx, batch, models.BatchStatusCompleted, models.SendStats{}, snapshotHash)
	}

	candidates, err := s.resolver.ResolveRecipients(ctx, campaign, limit)
	if err != nil {
		return s.failBatch(ctx, batch, models.SendStats{}, snapshotHash,
			&BatchSetupError{Message: fmt.Sprintf("failed to resolve recipients: %v", err)})
	}

	if len(candidates) == 0 {
		// Audience exhausted: everyone eligible has been sent to. The
		// campaign has done its work.
		if err := s.finalize(ctx, batch, models.BatchStatusCompleted, models.SendStats{}, snapshotHash); err != nil {
			return err
		}
		s.completeCampaign(ctx, campaign)
		return nil
	}

	queued := make([]*models.CampaignRecipient, 0, len(candidates))
	for _, c := range candidates {
		queued = append(queued, &models.CampaignRecipient{
			BatchID:       batch.ID,
			CampaignID:    campaign.ID,
			RecipientType: c.Type,
			RecipientID:   c.ID,
			Email:         c.Email,
			Language:      c.Language,
			Status:        models.RecipientStatusQueued,
		})
	}

	inserted, err := s.recipientRepo.InsertQueued(ctx, queued)
	if err != nil {
		return s.failBatch(ctx, batch, models.SendStats{}, snapshotHash,
			&BatchSetupError{Message: fmt.Sprintf("failed to queue recipients: %v", err)})
	}

	stats := s.processRecipients(ctx, campaign, byLanguage, inserted)
	return s.finalize(ctx, batch, models.BatchStatusCompleted, stats, snapshotHash)
}

// processRecipients dispatches to each queued recipient and records the
// outcome row by row. A failed dispatch never aborts the batch; a campaign
// cancelled mid-batch skips the remainder.
func (s *BatchService) processRecipients(ctx context.Context, campaign *models.Campaign, byLanguage map[string]*models.CampaignAsset, recipients []*models.CampaignRecipient) models.SendStats {
	stats := models.SendStats{}

	for i, recipient := range recipients {
		// Checked before the first dispatch too, so a cancel landing
		// between the batch setup and here stops the whole batch.
		if i%statusCheckInterval == 0 && s.campaignCancelled(ctx, campaign.ID) {
			log.Printf("Campaign %s cancelled mid-batch, skipping %d remaining recipients", campaign.ID, len(recipients)-i)
			for _, rest := range recipients[i:] {
				s.markResult(ctx, rest.ID, models.RecipientStatusSkipped, strPtr("campaign cancelled"))
				stats.Processed++
				stats.Skipped++
			}
			break
		}

		asset, ok := byLanguage[recipient.Language]
		if !ok {
			s.markResult(ctx, recipient.ID, models.RecipientStatusSkipped,
				strPtr(fmt.Sprintf("no asset for language %q", recipient.Language)))
			stats.Processed++
			stats.Skipped++
			continue
		}

		dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
		err := s.dispatcher.Dispatch(dctx, &DispatchRequest{
			Email:      recipient.Email,
			Subject:    asset.Subject,
			HTMLBody:   asset.HTMLBody,
			TextBody:   asset.TextBody,
			Language:   recipient.Language,
			CampaignID: campaign.ID,
		})
		cancel()

		stats.Processed++
		if err != nil {
			s.markResult(ctx, recipient.ID, models.RecipientStatusFailed, strPtr(err.Error()))
			stats.Failed++
		} else {
			s.markResult(ctx, recipient.ID, models.RecipientStatusSent, nil)
			stats.Sent++
		}
	}

	return stats
}

// sendBudget caps this batch at min(batchSize, dailyLimit - sentToday),
// counting sends from the start of the current UTC day.
func (s *BatchService) sendBudget(ctx context.Context, campaign *models.Campaign) (int, error) {
	limit := s.batchSize
	if campaign.DailySendLimit == nil {
		return limit, nil
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	sentToday, err := s.recipientRepo.CountSentSince(ctx, campaign.ID, dayStart)
	if err != nil {
		return 0, err
	}

	remaining := *campaign.DailySendLimit - sentToday
	if remaining < limit {
		limit = remaining
	}
	return limit, nil
}

// completeCampaign is the system-only transition to completed. Only an
// active campaign completes; a paused one keeps its state. The write is
// guarded on the current status so an operator cancelling the campaign
// between the batch's read and this write wins.
func (s *BatchService) completeCampaign(ctx context.Context, campaign *models.Campaign) {
	if campaign.Status != models.CampaignStatusActive {
		return
	}
	completed, err := s.campaignRepo.UpdateStatusFrom(ctx, s.db, campaign.ID,
		models.CampaignStatusActive, models.CampaignStatusCompleted, "system")
	if err != nil {
		log.Printf("Warning: failed to complete campaign %s: %v", campaign.ID, err)
		return
	}
	if !completed {
		log.Printf("Campaign %s no longer active, leaving status unchanged", campaign.ID)
		return
	}
	log.Printf("Campaign %s completed: audience exhausted", campaign.ID)
}

func (s *BatchService) campaignCancelled(ctx context.Context, campaignID string) bool {
	current, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		// Keep sending on a transient read error; the next chunk rechecks.
		log.Printf("Warning: failed to re-check campaign %s status: %v", campaignID, err)
		return false
	}
	return current.Status == models.CampaignStatusCancelled
}

func (s *BatchService) markResult(ctx context.Context, recipientID string, status models.RecipientStatus, lastError *string) {
	if err := s.recipientRepo.MarkResult(ctx, recipientID, status, lastError); err != nil {
		log.Printf("Warning: failed to record result for recipient %s: %v", recipientID, err)
	}
}

func (s *BatchService) failBatch(ctx context.Context, batch *models.CampaignBatch, stats models.SendStats, snapshotHash string, cause error) error {
	if err := s.finalize(ctx, batch, models.BatchStatusFailed, stats, snapshotHash); err != nil {
		log.Printf("Warning: failed to finalize failed batch %s: %v", batch.ID, err)
	}
	return cause
}

func (s *BatchService) finalize(ctx context.Context, batch *models.CampaignBatch, status models.BatchStatus, stats models.SendStats, snapshotHash string) error {
	if err := s.batchRepo.Finalize(ctx, batch.ID, status, stats, snapshotHash); err != nil {
		return fmt.Errorf("failed to finalize batch %s: %w", batch.ID, err)
	}
	log.Printf("Batch %s finalized as %s: %d processed, %d sent, %d failed, %d skipped",
		batch.ID, status, stats.Processed, stats.Sent, stats.Failed, stats.Skipped)
	return nil
}

// assetSnapshotHash fingerprints the asset content in effect for a batch,
// so history can show whether two batches sent the same creative.
func assetSnapshotHash(assets []*models.CampaignAsset) string {
	type snapshot struct {
		Channel  models.Channel `json:"channel"`
		Language string         `json:"language"`
		Subject  string         `json:"subject"`
		HTMLBody string         `json:"html_body"`
		TextBody string         `json:"text_body"`
	}

	snapshots := make([]snapshot, 0, len(assets))
	for _, a := range assets {
		snapshots = append(snapshots, snapshot{
			Channel:  a.Channel,
			Language: a.Language,
			Subject:  a.Subject,
			HTMLBody: a.HTMLBody,
			TextBody: a.TextBody,
		})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Language != snapshots[j].Language {
			return snapshots[i].Language < snapshots[j].Language
		}
		return snapshots[i].Channel < snapshots[j].Channel
	})

	encoded, err := json.Marshal(snapshots)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func strPtr(s string) *string {
	return &s
}
