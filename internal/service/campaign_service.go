package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"storyadmin/internal/assetgen"
	"storyadmin/internal/audience"
	"storyadmin/internal/models"
	"storyadmin/internal/repository"
)

// AudienceEstimator answers audience-count queries. Implemented by
// audience.Estimator; an interface here keeps the service testable without
// the two recipient databases.
type AudienceEstimator interface {
	Estimate(ctx context.Context, campaignID string, source models.AudienceSource, tree *models.FilterNode, prefs []string) (*audience.Estimate, error)
}

// BatchEnqueuer hands a created batch to the worker. Implemented by
// queue.Publisher.
type BatchEnqueuer interface {
	PublishBatch(batchID, campaignID string) error
}

// AssetGenerator is the contract with the external AI asset-generation
// worker: submit a job, poll its status. The generation itself happens
// elsewhere.
type AssetGenerator interface {
	Submit(ctx context.Context, campaignID string, req *assetgen.SubmitRequest) (string, error)
	PollStatus(ctx context.Context, campaignID, jobID string) (*assetgen.JobState, error)
}

// CampaignService handles campaign business logic
type CampaignService struct {
	db            *sql.DB
	campaignRepo  repository.CampaignRepository
	assetRepo     repository.AssetRepository
	batchRepo     repository.BatchRepository
	recipientRepo repository.RecipientRepository
	estimator     AudienceEstimator
	publisher     BatchEnqueuer
	assetGen      AssetGenerator
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	db *sql.DB,
	campaignRepo repository.CampaignRepository,
	assetRepo repository.AssetRepository,
	batchRepo repository.BatchRepository,
	recipientRepo repository.RecipientRepository,
	estimator AudienceEstimator,
	publisher BatchEnqueuer,
	assetGen AssetGenerator,
) *CampaignService {
	return &CampaignService{
		db:            db,
		campaignRepo:  campaignRepo,
		assetRepo:     assetRepo,
		batchRepo:     batchRepo,
		recipientRepo: recipientRepo,
		estimator:     estimator,
		publisher:     publisher,
		assetGen:      assetGen,
	}
}

// CreateCampaign creates a new campaign in draft status
func (s *CampaignService) CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*models.Campaign, error) {
	source, err := models.ParseAudienceSource(req.AudienceSource)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	campaign := &models.Campaign{
		ID:              uuid.NewString(),
		Title:           req.Title,
		Description:     req.Description,
		Status:          models.CampaignStatusDraft,
		AudienceSource:  source,
		UserPreferences: req.UserPreferences,
		FilterTree:      req.FilterTree,
		DailySendLimit:  req.DailySendLimit,
		ScheduleStart:   req.ScheduleStart,
		ScheduleEnd:     req.ScheduleEnd,
		CreatedBy:       req.Actor,
		UpdatedBy:       req.Actor,
	}

	if err := campaign.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if err := s.validateFilterTree(campaign.FilterTree, source); err != nil {
		return nil, err
	}

	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	return campaign, nil
}

// GetCampaign retrieves a campaign by ID
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}

// GetCampaignDetail retrieves a campaign with its assets, aggregate send
// progress, and batch history (sample sends excluded unless requested).
func (s *CampaignService) GetCampaignDetail(ctx context.Context, id string, includeSamples bool) (*CampaignDetail, error) {
	campaign, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	assets, err := s.assetRepo.ListByCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	progress, err := s.recipientRepo.StatsByCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign progress: %w", err)
	}

	batches, err := s.batchRepo.ListByCampaign(ctx, id, includeSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	return &CampaignDetail{
		Campaign: campaign,
		Assets:   assets,
		Progress: progress,
		Batches:  batches,
	}, nil
}

// ListCampaigns lists campaigns with filters
func (s *CampaignService) ListCampaigns(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, *PaginationInfo, error) {
	campaigns, total, err := s.campaignRepo.List(ctx, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &PaginationInfo{
		Page:       filters.Page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}

	return campaigns, pagination, nil
}

// UpdateCampaign applies metadata/filter changes. The draft check and the
// write happen in one transaction against a locked row so a concurrent
// transition cannot race the edit.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, req *UpdateCampaignRequest) (*models.Campaign, error) {
	var updated *models.Campaign

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		campaign, err := s.lockCampaign(ctx, tx, id)
		if err != nil {
			return err
		}
		if !campaign.CanEdit() {
			return &InvalidStateError{Operation: "update", Status: campaign.Status}
		}

		if req.Title != nil {
			campaign.Title = *req.Title
		}
		if req.Description != nil {
			campaign.Description = req.Description
		}
		if req.AudienceSource != nil {
			source, err := models.ParseAudienceSource(*req.AudienceSource)
			if err != nil {
				return &ValidationError{Message: err.Error()}
			}
			campaign.AudienceSource = source
		}
		if req.UserPreferences != nil {
			campaign.UserPreferences = *req.UserPreferences
		}
		if req.ClearFilterTree {
			campaign.FilterTree = nil
		} else if req.FilterTree != nil {
			campaign.FilterTree = req.FilterTree
		}
		if req.DailySendLimit != nil {
			campaign.DailySendLimit = req.DailySendLimit
		}
		if req.ScheduleStart != nil {
			campaign.ScheduleStart = req.ScheduleStart
		}
		if req.ScheduleEnd != nil {
			campaign.ScheduleEnd = req.ScheduleEnd
		}
		campaign.UpdatedBy = req.Actor

		if err := campaign.Validate(); err != nil {
			return &ValidationError{Message: err.Error()}
		}
		if err := s.validateFilterTree(campaign.FilterTree, campaign.AudienceSource); err != nil {
			return err
		}

		if err := s.campaignRepo.Update(ctx, tx, campaign); err != nil {
			return fmt.Errorf("failed to update campaign: %w", err)
		}

		updated = campaign
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Transition moves the campaign to targetStatus if the lifecycle table
// permits it. The status is read and written under a row lock in one
// transaction, so two concurrent requests cannot both succeed from a state
// that only permits one of them. "completed" is never reachable here: only
// the batch runner may complete a campaign.
func (s *CampaignService) Transition(ctx context.Context, id string, targetStatus models.CampaignStatus, actor string) (*models.Campaign, error) {
	var updated *models.Campaign

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		campaign, err := s.lockCampaign(ctx, tx, id)
		if err != nil {
			return err
		}

		if !campaign.Status.CanTransitionTo(targetStatus) {
			return &InvalidTransitionError{From: campaign.Status, To: targetStatus}
		}

		if err := s.campaignRepo.UpdateStatus(ctx, tx, id, targetStatus, actor); err != nil {
			return fmt.Errorf("failed to update campaign status: %w", err)
		}

		campaign.Status = targetStatus
		campaign.UpdatedBy = actor
		campaign.UpdatedAt = time.Now().UTC()
		updated = campaign
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DuplicateCampaign clones a campaign as a new draft. Assets are copied;
// batches and recipients are not. The title gets a " - copy" suffix,
// truncated to the column limit.
func (s *CampaignService) DuplicateCampaign(ctx context.Context, id string, actor string) (*models.Campaign, error) {
	src, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}

	clone := &models.Campaign{
		ID:              uuid.NewString(),
		Title:           models.CopyTitle(src.Title),
		Description:     src.Description,
		Status:          models.CampaignStatusDraft,
		AudienceSource:  src.AudienceSource,
		UserPreferences: src.UserPreferences,
		FilterTree:      src.FilterTree,
		DailySendLimit:  src.DailySendLimit,
		ScheduleStart:   src.ScheduleStart,
		ScheduleEnd:     src.ScheduleEnd,
		CreatedBy:       actor,
		UpdatedBy:       actor,
	}

	if err := s.campaignRepo.Create(ctx, clone); err != nil {
		return nil, fmt.Errorf("failed to create duplicate campaign: %w", err)
	}

	if err := s.assetRepo.CopyToCampaign(ctx, src.ID, clone.ID); err != nil {
		return nil, fmt.Errorf("failed to copy assets: %w", err)
	}

	return clone, nil
}

// DeleteCampaign deletes a campaign in draft or cancelled status.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		campaign, err := s.lockCampaign(ctx, tx, id)
		if err != nil {
			return err
		}
		if !campaign.CanDelete() {
			return &InvalidStateError{Operation: "delete", Status: campaign.Status}
		}
		if err := s.campaignRepo.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete campaign: %w", err)
		}
		return nil
	})
}

// UpsertAsset creates or replaces one locale's asset. Permitted while the
// campaign is draft or active.
func (s *CampaignService) UpsertAsset(ctx context.Context, campaignID string, req *UpsertAssetRequest) (*models.CampaignAsset, error) {
	var asset *models.CampaignAsset

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		campaign, err := s.lockCampaign(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if !campaign.CanUpsertAsset() {
			return &InvalidStateError{Operation: "update assets of", Status: campaign.Status}
		}

		asset = &models.CampaignAsset{
			CampaignID: campaignID,
			Channel:    models.ChannelEmail,
			Language:   req.Language,
			Subject:    req.Subject,
			HTMLBody:   req.HTMLBody,
			TextBody:   req.TextBody,
		}
		if req.Channel != "" {
			channel, err := models.ParseChannel(req.Channel)
			if err != nil {
				return &ValidationError{Message: err.Error()}
			}
			asset.Channel = channel
		}
		if err := asset.Validate(); err != nil {
			return &ValidationError{Message: err.Error()}
		}

		if err := s.assetRepo.Upsert(ctx, asset); err != nil {
			return fmt.Errorf("failed to upsert asset: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return asset, nil
}

// DeleteAsset removes one locale's asset. Draft-only.
func (s *CampaignService) DeleteAsset(ctx context.Context, campaignID, language string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		campaign, err := s.lockCampaign(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if !campaign.CanDeleteAsset() {
			return &InvalidStateError{Operation: "delete assets of", Status: campaign.Status}
		}

		err = s.assetRepo.Delete(ctx, campaignID, models.ChannelEmail, language)
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Resource: "asset", ID: language}
		}
		if err != nil {
			return fmt.Errorf("failed to delete asset: %w", err)
		}
		return nil
	})
}

// EstimateAudience counts the campaign's eligible recipients per source.
// Read-only: safe to call repeatedly, including during an active send.
func (s *CampaignService) EstimateAudience(ctx context.Context, campaignID string) (*audience.Estimate, error) {
	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	estimate, err := s.estimator.Estimate(ctx, campaign.ID, campaign.AudienceSource, campaign.FilterTree, campaign.UserPreferences)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate audience: %w", err)
	}
	return estimate, nil
}

// RequestBatch creates a queued batch and hands it to the worker. A normal
// batch requires an active campaign; a sample send is allowed from any
// non-terminal status.
func (s *CampaignService) RequestBatch(ctx context.Context, campaignID, actor string, sampleSend bool) (*models.CampaignBatch, error) {
	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if sampleSend {
		if campaign.Status.IsTerminal() {
			return nil, &InvalidStateError{Operation: "sample-send", Status: campaign.Status}
		}
	} else if campaign.Status != models.CampaignStatusActive {
		return nil, &InvalidStateError{Operation: "send", Status: campaign.Status}
	}

	batch := &models.CampaignBatch{
		ID:          uuid.NewString(),
		CampaignID:  campaignID,
		Status:      models.BatchStatusQueued,
		RequestedBy: actor,
		SampleSend:  sampleSend,
	}

	if err := s.batchRepo.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	if err := s.publisher.PublishBatch(batch.ID, campaignID); err != nil {
		// The batch row stays queued; a requeue sweep or manual retry
		// picks it up.
		log.Printf("Warning: failed to publish batch %s to queue: %v", batch.ID, err)
	}

	return batch, nil
}

// GenerateAssets submits an AI asset-generation job for the campaign and
// returns the job handle for polling.
func (s *CampaignService) GenerateAssets(ctx context.Context, campaignID string, req *assetgen.SubmitRequest) (string, error) {
	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if !campaign.CanUpsertAsset() {
		return "", &InvalidStateError{Operation: "generate assets for", Status: campaign.Status}
	}

	if err := validateSubmitRequest(req); err != nil {
		return "", err
	}

	jobID, err := s.assetGen.Submit(ctx, campaignID, req)
	if err != nil {
		return "", fmt.Errorf("failed to submit asset generation job: %w", err)
	}
	return jobID, nil
}

// GetAssetJob polls the status of an asset-generation job.
func (s *CampaignService) GetAssetJob(ctx context.Context, campaignID, jobID string) (*assetgen.JobState, error) {
	if _, err := s.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}

	state, err := s.assetGen.PollStatus(ctx, campaignID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to poll asset generation job: %w", err)
	}
	return state, nil
}

func validateSubmitRequest(req *assetgen.SubmitRequest) error {
	if req == nil {
		return &ValidationError{Message: "request body is required"}
	}
	if !models.ValidLanguage(req.SourceLocale) {
		return &ValidationError{Message: fmt.Sprintf("invalid source locale: %q", req.SourceLocale)}
	}
	if req.Subject == "" {
		return &ValidationError{Message: "subject is required"}
	}
	if req.BodyDescription == "" {
		return &ValidationError{Message: "body description is required"}
	}
	if req.TemplateName == "" {
		return &ValidationError{Message: "template name is required"}
	}
	for _, locale := range req.TargetLocales {
		if !models.ValidLanguage(locale) {
			return &ValidationError{Message: fmt.Sprintf("invalid target locale: %q", locale)}
		}
	}
	return nil
}

// validateFilterTree enforces structure and the per-source field allowlist
// at the boundary. Saved filters from older field sets still compile (the
// builder drops unmapped fields), but new ones must name known fields.
func (s *CampaignService) validateFilterTree(tree *models.FilterNode, source models.AudienceSource) error {
	if tree == nil {
		return nil
	}
	err := tree.Validate(func(field string) bool {
		return audience.KnownField(source, field)
	})
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

// lockCampaign loads the campaign under FOR UPDATE within tx, translating a
// missing row into NotFoundError.
func (s *CampaignService) lockCampaign(ctx context.Context, tx *sql.Tx, id string) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByIDForUpdate(ctx, tx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Resource: "campaign", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock campaign: %w", err)
	}
	return campaign, nil
}

func (s *CampaignService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Request/Response types

// CreateCampaignRequest represents a request to create a campaign
type CreateCampaignRequest struct {
	Title           string             `json:"title"`
	Description     *string            `json:"description,omitempty"`
	AudienceSource  string             `json:"audience_source"`
	UserPreferences []string           `json:"user_preferences,omitempty"`
	FilterTree      *models.FilterNode `json:"filter_tree,omitempty"`
	DailySendLimit  *int               `json:"daily_send_limit,omitempty"`
	ScheduleStart   *time.Time         `json:"schedule_start,omitempty"`
	ScheduleEnd     *time.Time         `json:"schedule_end,omitempty"`
	Actor           string             `json:"-"`
}

// UpdateCampaignRequest represents a partial campaign update. Omitted
// fields are left unchanged.
type UpdateCampaignRequest struct {
	Title           *string            `json:"title,omitempty"`
	Description     *string            `json:"description,omitempty"`
	AudienceSource  *string            `json:"audience_source,omitempty"`
	UserPreferences *[]string          `json:"user_preferences,omitempty"`
	FilterTree      *models.FilterNode `json:"filter_tree,omitempty"`
	ClearFilterTree bool               `json:"clear_filter_tree,omitempty"`
	DailySendLimit  *int               `json:"daily_send_limit,omitempty"`
	ScheduleStart   *time.Time         `json:"schedule_start,omitempty"`
	ScheduleEnd     *time.Time         `json:"schedule_end,omitempty"`
	Actor           string             `json:"-"`
}

// UpsertAssetRequest represents a request to create or replace an asset
type UpsertAssetRequest struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`
}

// CampaignDetail is a campaign with its assets, aggregate send progress and
// batch history.
type CampaignDetail struct {
	Campaign *models.Campaign        `json:"campaign"`
	Assets   []*models.CampaignAsset `json:"assets"`
	Progress models.SendStats        `json:"progress"`
	Batches  []*models.CampaignBatch `json:"batches"`
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
