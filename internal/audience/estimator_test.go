package audience

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"storyadmin/internal/models"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	return db, mock
}

type stubSentLister struct {
	users []string
	leads []string
}

func (s *stubSentLister) SentRecipientIDs(ctx context.Context, campaignID string, rt models.RecipientType) ([]string, error) {
	if rt == models.RecipientLead {
		return s.leads, nil
	}
	return s.users, nil
}

func TestEstimateBothSumsSources(t *testing.T) {
	coreDB, coreMock := newMockDB(t)
	defer coreDB.Close()
	workflowDB, workflowMock := newMockDB(t)
	defer workflowDB.Close()

	coreMock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM authors a")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	workflowMock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM leads l")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	estimator := NewEstimator(coreDB, workflowDB, &stubSentLister{})

	estimate, err := estimator.Estimate(context.Background(), "camp-1", models.AudienceBoth, nil, nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if estimate.Users != 7 || estimate.Leads != 3 || estimate.Total != 10 {
		t.Errorf("Estimate = %+v, want users=7 leads=3 total=10", estimate)
	}

	if err := coreMock.ExpectationsWereMet(); err != nil {
		t.Errorf("Core DB expectations: %v", err)
	}
	if err := workflowMock.ExpectationsWereMet(); err != nil {
		t.Errorf("Workflow DB expectations: %v", err)
	}
}

func TestEstimateExplicitEmptyPreferencesExcludesAllUsers(t *testing.T) {
	coreDB, coreMock := newMockDB(t)
	defer coreDB.Close()
	workflowDB, _ := newMockDB(t)
	defer workflowDB.Close()

	estimator := NewEstimator(coreDB, workflowDB, &stubSentLister{})

	// An explicit empty preference set means zero users; no query runs.
	estimate, err := estimator.Estimate(context.Background(), "camp-1", models.AudienceUsers, nil, []string{})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if estimate.Users != 0 || estimate.Total != 0 {
		t.Errorf("Estimate = %+v, want all zero", estimate)
	}
	if err := coreMock.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected no core DB queries: %v", err)
	}
}

func TestEstimateLeadsOnlySkipsCoreDB(t *testing.T) {
	coreDB, coreMock := newMockDB(t)
	defer coreDB.Close()
	workflowDB, workflowMock := newMockDB(t)
	defer workflowDB.Close()

	workflowMock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM leads l")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	estimator := NewEstimator(coreDB, workflowDB, &stubSentLister{})

	estimate, err := estimator.Estimate(context.Background(), "camp-1", models.AudienceLeads, nil, nil)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if estimate.Users != 0 || estimate.Leads != 12 {
		t.Errorf("Estimate = %+v, want users=0 leads=12", estimate)
	}
	if err := coreMock.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected no core DB queries: %v", err)
	}
	if err := workflowMock.ExpectationsWereMet(); err != nil {
		t.Errorf("Workflow DB expectations: %v", err)
	}
}

func TestResolveRecipientsUsersFirstThenLeads(t *testing.T) {
	coreDB, coreMock := newMockDB(t)
	defer coreDB.Close()
	workflowDB, workflowMock := newMockDB(t)
	defer workflowDB.Close()

	coreMock.ExpectQuery(regexp.QuoteMeta("SELECT a.id, a.email, a.preferred_locale FROM authors a")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "preferred_locale"}).
			AddRow("u1", "u1@example.com", "de-DE").
			AddRow("u2", "u2@example.com", nil))
	workflowMock.ExpectQuery(regexp.QuoteMeta("SELECT l.id, l.email, l.language FROM leads l")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "language"}).
			AddRow("l1", "l1@example.com", "fr-FR"))

	estimator := NewEstimator(coreDB, workflowDB, &stubSentLister{})

	campaign := &models.Campaign{
		ID:             "camp-1",
		AudienceSource: models.AudienceBoth,
	}

	candidates, err := estimator.ResolveRecipients(context.Background(), campaign, 3)
	if err != nil {
		t.Fatalf("ResolveRecipients failed: %v", err)
	}

	if len(candidates) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(candidates))
	}
	if candidates[0].Type != models.RecipientUser || candidates[2].Type != models.RecipientLead {
		t.Error("Expected users resolved before leads")
	}
	// Missing locale falls back to the default.
	if candidates[1].Language != "en-US" {
		t.Errorf("Expected en-US fallback, got %q", candidates[1].Language)
	}
	if candidates[0].Language != "de-DE" {
		t.Errorf("Expected source locale preserved, got %q", candidates[0].Language)
	}
}

func TestResolveRecipientsZeroLimit(t *testing.T) {
	coreDB, _ := newMockDB(t)
	defer coreDB.Close()
	workflowDB, _ := newMockDB(t)
	defer workflowDB.Close()

	estimator := NewEstimator(coreDB, workflowDB, &stubSentLister{})

	candidates, err := estimator.ResolveRecipients(context.Background(), &models.Campaign{AudienceSource: models.AudienceBoth}, 0)
	if err != nil {
		t.Fatalf("ResolveRecipients failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("Expected no candidates for zero limit, got %d", len(candidates))
	}
}

func TestResolveRecipientsExplicitEmptyPreferences(t *testing.T) {
	coreDB, coreMock := newMockDB(t)
	defer coreDB.Close()
	workflowDB, workflowMock := newMockDB(t)
	defer workflowDB.Close()

	workflowMock.ExpectQuery(regexp.QuoteMeta("SELECT l.id, l.email, l.language FROM leads l")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "language"}).
			AddRow("l1", "l1@example.com", "en-US"))

	estimator := NewEstimator(coreDB, workflowDB, &stubSentLister{})

	campaign := &models.Campaign{
		ID:              "camp-1",
		AudienceSource:  models.AudienceBoth,
		UserPreferences: []string{},
	}

	candidates, err := estimator.ResolveRecipients(context.Background(), campaign, 5)
	if err != nil {
		t.Fatalf("ResolveRecipients failed: %v", err)
	}

	// Empty preference set means no users; leads still resolve.
	if len(candidates) != 1 || candidates[0].Type != models.RecipientLead {
		t.Errorf("Expected a single lead candidate, got %+v", candidates)
	}
	if err := coreMock.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected no core DB queries: %v", err)
	}
}
