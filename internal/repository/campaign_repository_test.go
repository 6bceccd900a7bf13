package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"storyadmin/internal/models"
)

func TestUpdateStatusFromGuardsOnCurrentStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer db.Close()

	// The status predicate must be part of the write itself, so a
	// concurrent transition between read and write is never overwritten.
	pattern := regexp.QuoteMeta("WHERE id = $3 AND status = $4")

	mock.ExpectExec(pattern).
		WithArgs(models.CampaignStatusCompleted, "system", "camp-1", models.CampaignStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(pattern).
		WithArgs(models.CampaignStatusCompleted, "system", "camp-1", models.CampaignStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewCampaignRepository(db)

	changed, err := repo.UpdateStatusFrom(context.Background(), db, "camp-1",
		models.CampaignStatusActive, models.CampaignStatusCompleted, "system")
	if err != nil {
		t.Fatalf("UpdateStatusFrom failed: %v", err)
	}
	if !changed {
		t.Error("Expected the guarded write to report a change")
	}

	// The campaign left active in the meantime: zero rows, no error.
	changed, err = repo.UpdateStatusFrom(context.Background(), db, "camp-1",
		models.CampaignStatusActive, models.CampaignStatusCompleted, "system")
	if err != nil {
		t.Fatalf("UpdateStatusFrom failed: %v", err)
	}
	if changed {
		t.Error("Expected no change when the status no longer matches")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("DB expectations: %v", err)
	}
}
