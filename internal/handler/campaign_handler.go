package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"storyadmin/internal/assetgen"
	"storyadmin/internal/models"
	"storyadmin/internal/repository"
	"storyadmin/internal/service"
)

// AdminUserHeader carries the acting admin's identity, stamped by the portal
// gateway after authentication.
const AdminUserHeader = "X-Admin-User"

// CampaignHandler handles HTTP requests for campaign operations
type CampaignHandler struct {
	campaignService *service.CampaignService
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
	}
}

// Create handles POST /campaigns - creates a new campaign in draft
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req service.CreateCampaignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Actor = actor

	campaign, err := h.campaignService.CreateCampaign(r.Context(), &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, campaign)
}

// List handles GET /campaigns - lists campaigns with filters
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 1
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	limit := 20
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 100 {
		limit = 100
	}

	filters := repository.CampaignFilters{
		Page:     page,
		PageSize: limit,
	}

	if statusStr := query.Get("status"); statusStr != "" {
		status, err := models.ParseCampaignStatus(statusStr)
		if err != nil {
			WriteValidationError(w, err.Error())
			return
		}
		filters.Status = &status
	}

	campaigns, pagination, err := h.campaignService.ListCampaigns(r.Context(), filters)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, ListCampaignsResponse{
		Campaigns:  campaigns,
		Pagination: pagination,
	})
}

// GetByID handles GET /campaigns/{id} - campaign detail with assets,
// progress, and batch history. ?include_samples=true includes sample sends.
func (h *CampaignHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	includeSamples := r.URL.Query().Get("include_samples") == "true"

	detail, err := h.campaignService.GetCampaignDetail(r.Context(), id, includeSamples)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, detail)
}

// Update handles PATCH /campaigns/{id} - metadata/filter changes, draft only
func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req service.UpdateCampaignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Actor = actor

	campaign, err := h.campaignService.UpdateCampaign(r.Context(), id, &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, campaign)
}

// Activate handles POST /campaigns/{id}/activate
func (h *CampaignHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.CampaignStatusActive)
}

// Pause handles POST /campaigns/{id}/pause
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.CampaignStatusPaused)
}

// Cancel handles POST /campaigns/{id}/cancel
func (h *CampaignHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.CampaignStatusCancelled)
}

func (h *CampaignHandler) transition(w http.ResponseWriter, r *http.Request, target models.CampaignStatus) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	campaign, err := h.campaignService.Transition(r.Context(), id, target, actor)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, campaign)
}

// Duplicate handles POST /campaigns/{id}/duplicate
func (h *CampaignHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	clone, err := h.campaignService.DuplicateCampaign(r.Context(), id, actor)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, clone)
}

// Delete handles DELETE /campaigns/{id} - draft and cancelled only
func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	if err := h.campaignService.DeleteCampaign(r.Context(), id); err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteNoContent(w)
}

// SendBatch handles POST /campaigns/{id}/send-batch. The body is optional;
// {"sample_send": true} requests a sample run to the configured test
// addresses instead of a live batch.
func (h *CampaignHandler) SendBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req SendBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	batch, err := h.campaignService.RequestBatch(r.Context(), id, actor, req.SampleSend)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteAccepted(w, batch)
}

// AudienceCount handles GET /campaigns/{id}/audience-count
func (h *CampaignHandler) AudienceCount(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	estimate, err := h.campaignService.EstimateAudience(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, estimate)
}

// UpsertAsset handles PUT /campaigns/{id}/assets
func (h *CampaignHandler) UpsertAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var req service.UpsertAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	asset, err := h.campaignService.UpsertAsset(r.Context(), id, &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, asset)
}

// DeleteAsset handles DELETE /campaigns/{id}/assets/{language}
func (h *CampaignHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	language := mux.Vars(r)["language"]
	if !models.ValidLanguage(language) {
		WriteValidationError(w, "invalid language tag")
		return
	}

	if err := h.campaignService.DeleteAsset(r.Context(), id, language); err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteNoContent(w)
}

// GenerateAssets handles POST /campaigns/{id}/generate-assets - submits an
// AI generation job and returns its id for polling.
func (h *CampaignHandler) GenerateAssets(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var req assetgen.SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	jobID, err := h.campaignService.GenerateAssets(r.Context(), id, &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteAccepted(w, GenerateAssetsResponse{JobID: jobID})
}

// GetAssetJob handles GET /campaigns/{id}/generate-assets/{jobID}
func (h *CampaignHandler) GetAssetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	jobID := mux.Vars(r)["jobID"]
	if jobID == "" {
		WriteValidationError(w, "job ID is required")
		return
	}

	state, err := h.campaignService.GetAssetJob(r.Context(), id, jobID)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, state)
}

// campaignID extracts and validates the campaign id path variable.
func campaignID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		WriteValidationError(w, "campaign ID is required")
		return "", false
	}
	return id, true
}

// requireActor reads the acting admin from the gateway header.
func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(AdminUserHeader))
	if actor == "" {
		WriteValidationError(w, AdminUserHeader+" header is required")
		return "", false
	}
	return actor, true
}

// decodeBody parses a required JSON body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err == io.EOF {
			WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is empty")
			return false
		}
		WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return false
	}
	return true
}

// Request/Response types

// ListCampaignsResponse represents the response for listing campaigns
type ListCampaignsResponse struct {
	Campaigns  []*models.Campaign      `json:"campaigns"`
	Pagination *service.PaginationInfo `json:"pagination"`
}

// SendBatchRequest represents the optional body of a send-batch request
type SendBatchRequest struct {
	SampleSend bool `json:"sample_send"`
}

// GenerateAssetsResponse carries the id of a submitted generation job
type GenerateAssetsResponse struct {
	JobID string `json:"job_id"`
}
