package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"storyadmin/internal/models"
)

const campaignColumns = `id, title, description, status, audience_source, user_preferences,
		filter_tree, daily_send_limit, schedule_start, schedule_end,
		created_by, updated_by, created_at, updated_at`

type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

// Create creates a new campaign
func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	filterJSON, err := marshalFilterTree(campaign.FilterTree)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO marketing_campaigns
			(id, title, description, status, audience_source, user_preferences,
			 filter_tree, daily_send_limit, schedule_start, schedule_end, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRowContext(
		ctx,
		query,
		campaign.ID,
		campaign.Title,
		campaign.Description,
		campaign.Status,
		campaign.AudienceSource,
		preferencesArray(campaign.UserPreferences),
		filterJSON,
		campaign.DailySendLimit,
		campaign.ScheduleStart,
		campaign.ScheduleEnd,
		campaign.CreatedBy,
		campaign.UpdatedBy,
	).Scan(&campaign.CreatedAt, &campaign.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM marketing_campaigns WHERE id = $1`
	return scanCampaign(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate retrieves a campaign with a row lock inside q.
func (r *campaignRepository) GetByIDForUpdate(ctx context.Context, q DB, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM marketing_campaigns WHERE id = $1 FOR UPDATE`
	return scanCampaign(q.QueryRowContext(ctx, query, id))
}

// List retrieves campaigns with filters and pagination
func (r *campaignRepository) List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error) {
	queryBuilder := strings.Builder{}
	queryBuilder.WriteString(`SELECT ` + campaignColumns + ` FROM marketing_campaigns WHERE 1=1`)

	args := []interface{}{}
	argPos := 1

	if filters.Status != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	}

	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")

	limit := filters.PageSize
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := (filters.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}

	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1))
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaignRows(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate campaigns: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM marketing_campaigns WHERE 1=1"
	countArgs := []interface{}{}
	if filters.Status != nil {
		countQuery += " AND status = $1"
		countArgs = append(countArgs, *filters.Status)
	}

	var totalCount int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	return campaigns, totalCount, nil
}

// Update persists metadata/filter changes. Status is never touched here;
// transitions go through UpdateStatus.
func (r *campaignRepository) Update(ctx context.Context, q DB, campaign *models.Campaign) error {
	filterJSON, err := marshalFilterTree(campaign.FilterTree)
	if err != nil {
		return err
	}

	query := `
		UPDATE marketing_campaigns
		SET title = $1, description = $2, audience_source = $3, user_preferences = $4,
			filter_tree = $5, daily_send_limit = $6, schedule_start = $7, schedule_end = $8,
			updated_by = $9, updated_at = CURRENT_TIMESTAMP
		WHERE id = $10
	`

	result, err := q.ExecContext(
		ctx,
		query,
		campaign.Title,
		campaign.Description,
		campaign.AudienceSource,
		preferencesArray(campaign.UserPreferences),
		filterJSON,
		campaign.DailySendLimit,
		campaign.ScheduleStart,
		campaign.ScheduleEnd,
		campaign.UpdatedBy,
		campaign.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}

	return requireRowAffected(result)
}

// UpdateStatus moves the campaign to status, stamping the actor.
func (r *campaignRepository) UpdateStatus(ctx context.Context, q DB, id string, status models.CampaignStatus, updatedBy string) error {
	query := `
		UPDATE marketing_campaigns
		SET status = $1, updated_by = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`

	result, err := q.ExecContext(ctx, query, status, updatedBy, id)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}

	return requireRowAffected(result)
}

// UpdateStatusFrom moves the campaign from one status to another in a single
// guarded write. Zero rows affected means the campaign left the expected
// status in the meantime; the caller decides whether that matters.
func (r *campaignRepository) UpdateStatusFrom(ctx context.Context, q DB, id string, from, to models.CampaignStatus, updatedBy string) (bool, error) {
	query := `
		UPDATE marketing_campaigns
		SET status = $1, updated_by = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3 AND status = $4
	`

	result, err := q.ExecContext(ctx, query, to, updatedBy, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return rows > 0, nil
}

// Delete deletes a campaign; assets, batches and recipients cascade.
func (r *campaignRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM marketing_campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	return requireRowAffected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row *sql.Row) (*models.Campaign, error) {
	campaign, err := scanCampaignInto(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return campaign, err
}

func scanCampaignRows(rows *sql.Rows) (*models.Campaign, error) {
	return scanCampaignInto(rows)
}

func scanCampaignInto(s rowScanner) (*models.Campaign, error) {
	campaign := &models.Campaign{}
	var prefs pq.StringArray
	var filterJSON []byte

	err := s.Scan(
		&campaign.ID,
		&campaign.Title,
		&campaign.Description,
		&campaign.Status,
		&campaign.AudienceSource,
		&prefs,
		&filterJSON,
		&campaign.DailySendLimit,
		&campaign.ScheduleStart,
		&campaign.ScheduleEnd,
		&campaign.CreatedBy,
		&campaign.UpdatedBy,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan campaign: %w", err)
	}

	if prefs != nil {
		campaign.UserPreferences = []string(prefs)
	}
	if len(filterJSON) > 0 {
		tree := &models.FilterNode{}
		if err := json.Unmarshal(filterJSON, tree); err != nil {
			return nil, fmt.Errorf("failed to decode filter tree: %w", err)
		}
		campaign.FilterTree = tree
	}

	return campaign, nil
}

func marshalFilterTree(tree *models.FilterNode) (interface{}, error) {
	if tree == nil {
		return nil, nil
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter tree: %w", err)
	}
	return data, nil
}

func preferencesArray(prefs []string) interface{} {
	if prefs == nil {
		return nil
	}
	return pq.Array(prefs)
}

func requireRowAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
