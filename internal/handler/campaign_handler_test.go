package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"storyadmin/internal/models"
	"storyadmin/internal/service"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "not found",
			err:        &service.NotFoundError{Resource: "campaign", ID: "camp-1"},
			wantStatus: http.StatusNotFound,
			wantCode:   "RESOURCE_NOT_FOUND",
		},
		{
			name:       "validation",
			err:        &service.ValidationError{Message: "title is required"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "invalid state",
			err:        &service.InvalidStateError{Operation: "update", Status: models.CampaignStatusActive},
			wantStatus: http.StatusConflict,
			wantCode:   "INVALID_STATE",
		},
		{
			name:       "invalid transition",
			err:        &service.InvalidTransitionError{From: models.CampaignStatusDraft, To: models.CampaignStatusPaused},
			wantStatus: http.StatusConflict,
			wantCode:   "INVALID_TRANSITION",
		},
		{
			name:       "batch setup",
			err:        &service.BatchSetupError{Message: "campaign has no assets"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BATCH_SETUP_ERROR",
		},
		{
			name:       "conflict",
			err:        &service.ConflictError{Resource: "campaign", Message: "duplicate"},
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
		},
		{
			name:       "unknown errors stay internal",
			err:        errors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleServiceError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decodeError(t, rec)
			if resp.Error.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
			// Internal errors must not leak details to the client.
			if tt.wantCode == "INTERNAL_ERROR" && strings.Contains(resp.Error.Message, "pq:") {
				t.Error("Internal error detail leaked to the client")
			}
		})
	}
}

func TestCreateRequiresActorHeader(t *testing.T) {
	h := NewCampaignHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(`{"title":"x"}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", resp.Error.Code)
	}
	if !strings.Contains(resp.Error.Message, AdminUserHeader) {
		t.Errorf("Expected message to name the missing header, got %q", resp.Error.Message)
	}
}

func TestCreateRejectsMalformedJSON(t *testing.T) {
	h := NewCampaignHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(`{"title":`))
	req.Header.Set(AdminUserHeader, "alex@storyteam.dev")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "INVALID_JSON" {
		t.Errorf("Code = %q", resp.Error.Code)
	}
}

func TestCreateRejectsEmptyBody(t *testing.T) {
	h := NewCampaignHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/campaigns", strings.NewReader(""))
	req.Header.Set(AdminUserHeader, "alex@storyteam.dev")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error.Code != "INVALID_JSON" || !strings.Contains(resp.Error.Message, "empty") {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}
}

func TestUpdateRequiresCampaignID(t *testing.T) {
	h := NewCampaignHandler(nil)

	// No mux vars set: the id is missing.
	req := httptest.NewRequest(http.MethodPatch, "/campaigns/", strings.NewReader(`{}`))
	req.Header.Set(AdminUserHeader, "alex@storyteam.dev")
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", resp.Error.Code)
	}
}

func TestDeleteAssetRejectsInvalidLanguage(t *testing.T) {
	h := NewCampaignHandler(nil)

	req := httptest.NewRequest(http.MethodDelete, "/campaigns/camp-1/assets/english", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "camp-1", "language": "english"})
	rec := httptest.NewRecorder()
	h.DeleteAsset(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", resp.Error.Code)
	}
}

func TestListRejectsInvalidStatusFilter(t *testing.T) {
	h := NewCampaignHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/campaigns?status=archived", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", resp.Error.Code)
	}
}

func TestGetAssetJobRequiresJobID(t *testing.T) {
	h := NewCampaignHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/campaigns/camp-1/generate-assets/", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "camp-1"})
	rec := httptest.NewRecorder()
	h.GetAssetJob(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
}
