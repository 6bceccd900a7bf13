package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"storyadmin/internal/assetgen"
	"storyadmin/internal/audience"
	"storyadmin/internal/models"
	"storyadmin/internal/repository"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	return db, mock
}

// MockCampaignRepository mocks repository.CampaignRepository
type MockCampaignRepository struct {
	CreateFunc           func(ctx context.Context, campaign *models.Campaign) error
	GetByIDFunc          func(ctx context.Context, id string) (*models.Campaign, error)
	GetByIDForUpdateFunc func(ctx context.Context, q repository.DB, id string) (*models.Campaign, error)
	ListFunc             func(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, int, error)
	UpdateFunc           func(ctx context.Context, q repository.DB, campaign *models.Campaign) error
	UpdateStatusFunc     func(ctx context.Context, q repository.DB, id string, status models.CampaignStatus, updatedBy string) error
	UpdateStatusFromFunc func(ctx context.Context, q repository.DB, id string, from, to models.CampaignStatus, updatedBy string) (bool, error)
	DeleteFunc           func(ctx context.Context, id string) error

	Calls map[string]int
}

func NewMockCampaignRepository() *MockCampaignRepository {
	return &MockCampaignRepository{Calls: make(map[string]int)}
}

func (m *MockCampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	m.Calls["Create"]++
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, campaign)
	}
	campaign.CreatedAt = time.Now()
	campaign.UpdatedAt = campaign.CreatedAt
	return nil
}

func (m *MockCampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	m.Calls["GetByID"]++
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return NewTestCampaign(id, models.CampaignStatusDraft), nil
}

func (m *MockCampaignRepository) GetByIDForUpdate(ctx context.Context, q repository.DB, id string) (*models.Campaign, error) {
	m.Calls["GetByIDForUpdate"]++
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, q, id)
	}
	return NewTestCampaign(id, models.CampaignStatusDraft), nil
}

func (m *MockCampaignRepository) List(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, int, error) {
	m.Calls["List"]++
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filters)
	}
	return []*models.Campaign{}, 0, nil
}

func (m *MockCampaignRepository) Update(ctx context.Context, q repository.DB, campaign *models.Campaign) error {
	m.Calls["Update"]++
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, q, campaign)
	}
	return nil
}

func (m *MockCampaignRepository) UpdateStatus(ctx context.Context, q repository.DB, id string, status models.CampaignStatus, updatedBy string) error {
	m.Calls["UpdateStatus"]++
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, q, id, status, updatedBy)
	}
	return nil
}

func (m *MockCampaignRepository) UpdateStatusFrom(ctx context.Context, q repository.DB, id string, from, to models.CampaignStatus, updatedBy string) (bool, error) {
	m.Calls["UpdateStatusFrom"]++
	if m.UpdateStatusFromFunc != nil {
		return m.UpdateStatusFromFunc(ctx, q, id, from, to, updatedBy)
	}
	return true, nil
}

func (m *MockCampaignRepository) Delete(ctx context.Context, id string) error {
	m.Calls["Delete"]++
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockAssetRepository mocks repository.AssetRepository
type MockAssetRepository struct {
	UpsertFunc         func(ctx context.Context, asset *models.CampaignAsset) error
	ListByCampaignFunc func(ctx context.Context, campaignID string) ([]*models.CampaignAsset, error)
	DeleteFunc         func(ctx context.Context, campaignID string, channel models.Channel, language string) error
	CopyToCampaignFunc func(ctx context.Context, srcCampaignID, dstCampaignID string) error

	Calls map[string]int
}

func NewMockAssetRepository() *MockAssetRepository {
	return &MockAssetRepository{Calls: make(map[string]int)}
}

func (m *MockAssetRepository) Upsert(ctx context.Context, asset *models.CampaignAsset) error {
	m.Calls["Upsert"]++
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, asset)
	}
	return nil
}

func (m *MockAssetRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*models.CampaignAsset, error) {
	m.Calls["ListByCampaign"]++
	if m.ListByCampaignFunc != nil {
		return m.ListByCampaignFunc(ctx, campaignID)
	}
	return []*models.CampaignAsset{NewTestAsset(campaignID, "en-US")}, nil
}

func (m *MockAssetRepository) Delete(ctx context.Context, campaignID string, channel models.Channel, language string) error {
	m.Calls["Delete"]++
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, campaignID, channel, language)
	}
	return nil
}

func (m *MockAssetRepository) CopyToCampaign(ctx context.Context, srcCampaignID, dstCampaignID string) error {
	m.Calls["CopyToCampaign"]++
	if m.CopyToCampaignFunc != nil {
		return m.CopyToCampaignFunc(ctx, srcCampaignID, dstCampaignID)
	}
	return nil
}

// MockBatchRepository mocks repository.BatchRepository
type MockBatchRepository struct {
	CreateFunc         func(ctx context.Context, batch *models.CampaignBatch) error
	GetByIDFunc        func(ctx context.Context, id string) (*models.CampaignBatch, error)
	MarkRunningFunc    func(ctx context.Context, id string) error
	FinalizeFunc       func(ctx context.Context, id string, status models.BatchStatus, stats models.SendStats, snapshotHash string) error
	ListByCampaignFunc func(ctx context.Context, campaignID string, includeSamples bool) ([]*models.CampaignBatch, error)

	Calls map[string]int

	FinalizedStatus models.BatchStatus
	FinalizedStats  models.SendStats
	FinalizedHash   string
}

func NewMockBatchRepository() *MockBatchRepository {
	return &MockBatchRepository{Calls: make(map[string]int)}
}

func (m *MockBatchRepository) Create(ctx context.Context, batch *models.CampaignBatch) error {
	m.Calls["Create"]++
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, batch)
	}
	batch.RequestedAt = time.Now()
	return nil
}

func (m *MockBatchRepository) GetByID(ctx context.Context, id string) (*models.CampaignBatch, error) {
	m.Calls["GetByID"]++
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.CampaignBatch{ID: id, CampaignID: "camp-1", Status: models.BatchStatusQueued}, nil
}

func (m *MockBatchRepository) MarkRunning(ctx context.Context, id string) error {
	m.Calls["MarkRunning"]++
	if m.MarkRunningFunc != nil {
		return m.MarkRunningFunc(ctx, id)
	}
	return nil
}

func (m *MockBatchRepository) Finalize(ctx context.Context, id string, status models.BatchStatus, stats models.SendStats, snapshotHash string) error {
	m.Calls["Finalize"]++
	m.FinalizedStatus = status
	m.FinalizedStats = stats
	m.FinalizedHash = snapshotHash
	if m.FinalizeFunc != nil {
		return m.FinalizeFunc(ctx, id, status, stats, snapshotHash)
	}
	return nil
}

func (m *MockBatchRepository) ListByCampaign(ctx context.Context, campaignID string, includeSamples bool) ([]*models.CampaignBatch, error) {
	m.Calls["ListByCampaign"]++
	if m.ListByCampaignFunc != nil {
		return m.ListByCampaignFunc(ctx, campaignID, includeSamples)
	}
	return []*models.CampaignBatch{}, nil
}

// MockRecipientRepository mocks repository.RecipientRepository
type MockRecipientRepository struct {
	InsertQueuedFunc     func(ctx context.Context, recipients []*models.CampaignRecipient) ([]*models.CampaignRecipient, error)
	MarkResultFunc       func(ctx context.Context, id string, status models.RecipientStatus, lastError *string) error
	SentRecipientIDsFunc func(ctx context.Context, campaignID string, rt models.RecipientType) ([]string, error)
	CountSentSinceFunc   func(ctx context.Context, campaignID string, since time.Time) (int, error)
	StatsByCampaignFunc  func(ctx context.Context, campaignID string) (models.SendStats, error)

	Calls   map[string]int
	Results map[string]models.RecipientStatus
}

func NewMockRecipientRepository() *MockRecipientRepository {
	return &MockRecipientRepository{
		Calls:   make(map[string]int),
		Results: make(map[string]models.RecipientStatus),
	}
}

func (m *MockRecipientRepository) InsertQueued(ctx context.Context, recipients []*models.CampaignRecipient) ([]*models.CampaignRecipient, error) {
	m.Calls["InsertQueued"]++
	if m.InsertQueuedFunc != nil {
		return m.InsertQueuedFunc(ctx, recipients)
	}
	for _, r := range recipients {
		if r.ID == "" {
			r.ID = "rec-" + r.RecipientID
		}
	}
	return recipients, nil
}

func (m *MockRecipientRepository) MarkResult(ctx context.Context, id string, status models.RecipientStatus, lastError *string) error {
	m.Calls["MarkResult"]++
	m.Results[id] = status
	if m.MarkResultFunc != nil {
		return m.MarkResultFunc(ctx, id, status, lastError)
	}
	return nil
}

func (m *MockRecipientRepository) SentRecipientIDs(ctx context.Context, campaignID string, rt models.RecipientType) ([]string, error) {
	m.Calls["SentRecipientIDs"]++
	if m.SentRecipientIDsFunc != nil {
		return m.SentRecipientIDsFunc(ctx, campaignID, rt)
	}
	return nil, nil
}

func (m *MockRecipientRepository) CountSentSince(ctx context.Context, campaignID string, since time.Time) (int, error) {
	m.Calls["CountSentSince"]++
	if m.CountSentSinceFunc != nil {
		return m.CountSentSinceFunc(ctx, campaignID, since)
	}
	return 0, nil
}

func (m *MockRecipientRepository) StatsByCampaign(ctx context.Context, campaignID string) (models.SendStats, error) {
	m.Calls["StatsByCampaign"]++
	if m.StatsByCampaignFunc != nil {
		return m.StatsByCampaignFunc(ctx, campaignID)
	}
	return models.SendStats{}, nil
}

// MockEnqueuer mocks the batch publisher
type MockEnqueuer struct {
	PublishBatchFunc func(batchID, campaignID string) error
	Published        []string
}

func (m *MockEnqueuer) PublishBatch(batchID, campaignID string) error {
	m.Published = append(m.Published, batchID)
	if m.PublishBatchFunc != nil {
		return m.PublishBatchFunc(batchID, campaignID)
	}
	return nil
}

// MockEstimator mocks the audience estimator
type MockEstimator struct {
	EstimateFunc func(ctx context.Context, campaignID string, source models.AudienceSource, tree *models.FilterNode, prefs []string) (*audience.Estimate, error)
}

func (m *MockEstimator) Estimate(ctx context.Context, campaignID string, source models.AudienceSource, tree *models.FilterNode, prefs []string) (*audience.Estimate, error) {
	if m.EstimateFunc != nil {
		return m.EstimateFunc(ctx, campaignID, source, tree, prefs)
	}
	return &audience.Estimate{Users: 5, Leads: 2, Total: 7}, nil
}

// MockResolver mocks the batch recipient resolver
type MockResolver struct {
	ResolveFunc func(ctx context.Context, campaign *models.Campaign, limit int) ([]*audience.Candidate, error)
	LastLimit   int
}

func (m *MockResolver) ResolveRecipients(ctx context.Context, campaign *models.Campaign, limit int) ([]*audience.Candidate, error) {
	m.LastLimit = limit
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, campaign, limit)
	}
	return nil, nil
}

// MockDispatcher mocks the email dispatcher
type MockDispatcher struct {
	DispatchFunc func(ctx context.Context, req *DispatchRequest) error
	Dispatched   []*DispatchRequest
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req *DispatchRequest) error {
	m.Dispatched = append(m.Dispatched, req)
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, req)
	}
	return nil
}

// MockAssetGenerator mocks the asset generation client
type MockAssetGenerator struct {
	SubmitFunc     func(ctx context.Context, campaignID string, req *assetgen.SubmitRequest) (string, error)
	PollStatusFunc func(ctx context.Context, campaignID, jobID string) (*assetgen.JobState, error)
}

func (m *MockAssetGenerator) Submit(ctx context.Context, campaignID string, req *assetgen.SubmitRequest) (string, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, campaignID, req)
	}
	return "job-1", nil
}

func (m *MockAssetGenerator) PollStatus(ctx context.Context, campaignID, jobID string) (*assetgen.JobState, error) {
	if m.PollStatusFunc != nil {
		return m.PollStatusFunc(ctx, campaignID, jobID)
	}
	return &assetgen.JobState{JobID: jobID, Status: assetgen.JobStatusRunning, Progress: 50}, nil
}

// Test fixtures

func NewTestCampaign(id string, status models.CampaignStatus) *models.Campaign {
	return &models.Campaign{
		ID:             id,
		Title:          "Test campaign",
		Status:         status,
		AudienceSource: models.AudienceUsers,
		CreatedBy:      "alex@storyteam.dev",
		UpdatedBy:      "alex@storyteam.dev",
		CreatedAt:      time.Now().Add(-time.Hour),
		UpdatedAt:      time.Now().Add(-time.Hour),
	}
}

func NewTestAsset(campaignID, language string) *models.CampaignAsset {
	return &models.CampaignAsset{
		ID:         "asset-" + language,
		CampaignID: campaignID,
		Channel:    models.ChannelEmail,
		Language:   language,
		Subject:    "Your weekly story digest",
		HTMLBody:   "<p>Hello!</p>",
		TextBody:   "Hello!",
	}
}
