package audience

import (
	"context"
	"database/sql"
	"fmt"

	"storyadmin/internal/models"
)

// Estimate is the audience size per recipient source.
type Estimate struct {
	Users int `json:"users"`
	Leads int `json:"leads"`
	Total int `json:"total"`
}

// Candidate is one eligible recipient resolved for a batch.
type Candidate struct {
	Type     models.RecipientType
	ID       string
	Email    string
	Language string
}

// SentIDLister reports which recipients have already been sent to for a
// campaign. Satisfied by the recipient repository; the sent ids are fetched
// from the admin DB and pushed into the source queries as exclusion arrays
// because the recipient sources live in different databases.
type SentIDLister interface {
	SentRecipientIDs(ctx context.Context, campaignID string, rt models.RecipientType) ([]string, error)
}

// Estimator answers audience-count and recipient-resolution queries. The two
// recipient sources live in separate databases (authors in the core product
// DB, leads in the workflow DB) and are never joined; "both" queries each
// independently and sums. All operations are read-only and safe to run
// concurrently with an active send.
type Estimator struct {
	coreDB     *sql.DB
	workflowDB *sql.DB
	recipients SentIDLister
}

// NewEstimator creates a new audience estimator.
func NewEstimator(coreDB, workflowDB *sql.DB, recipients SentIDLister) *Estimator {
	return &Estimator{
		coreDB:     coreDB,
		workflowDB: workflowDB,
		recipients: recipients,
	}
}

// Estimate counts eligible recipients per source after default suppression,
// the compiled filter, and exclusion of recipients already sent for
// campaignID (empty campaignID skips dedup, e.g. for an unsaved draft).
// prefs follows the campaign's user preference semantics: nil applies the
// default set, an explicit empty set yields zero users.
func (e *Estimator) Estimate(ctx context.Context, campaignID string, source models.AudienceSource, tree *models.FilterNode, prefs []string) (*Estimate, error) {
	estimate := &Estimate{}

	if source == models.AudienceUsers || source == models.AudienceBoth {
		if prefs != nil && len(prefs) == 0 {
			// Explicit empty preference set excludes every user.
			estimate.Users = 0
		} else {
			count, err := e.countSource(ctx, models.RecipientUser, campaignID, tree, prefs)
			if err != nil {
				return nil, fmt.Errorf("failed to count users: %w", err)
			}
			estimate.Users = count
		}
	}

	if source == models.AudienceLeads || source == models.AudienceBoth {
		count, err := e.countSource(ctx, models.RecipientLead, campaignID, tree, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to count leads: %w", err)
		}
		estimate.Leads = count
	}

	estimate.Total = estimate.Users + estimate.Leads
	return estimate, nil
}

// ResolveRecipients returns up to limit deduplicated candidates for a batch,
// users first, then leads with whatever budget remains.
func (e *Estimator) ResolveRecipients(ctx context.Context, campaign *models.Campaign, limit int) ([]*Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	candidates := make([]*Candidate, 0, limit)

	if campaign.IncludesUsers() {
		prefs := campaign.UserPreferences
		if prefs == nil || len(prefs) > 0 {
			users, err := e.selectSource(ctx, models.RecipientUser, campaign.ID, campaign.FilterTree, prefs, limit)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve users: %w", err)
			}
			candidates = append(candidates, users...)
		}
	}

	if campaign.IncludesLeads() && len(candidates) < limit {
		leads, err := e.selectSource(ctx, models.RecipientLead, campaign.ID, campaign.FilterTree, nil, limit-len(candidates))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve leads: %w", err)
		}
		candidates = append(candidates, leads...)
	}

	return candidates, nil
}

func (e *Estimator) sourceDB(rt models.RecipientType) *sql.DB {
	if rt == models.RecipientLead {
		return e.workflowDB
	}
	return e.coreDB
}

func (e *Estimator) excludeIDs(ctx context.Context, campaignID string, rt models.RecipientType) ([]string, error) {
	if campaignID == "" || e.recipients == nil {
		return nil, nil
	}
	return e.recipients.SentRecipientIDs(ctx, campaignID, rt)
}

func (e *Estimator) countSource(ctx context.Context, rt models.RecipientType, campaignID string, tree *models.FilterNode, prefs []string) (int, error) {
	exclude, err := e.excludeIDs(ctx, campaignID, rt)
	if err != nil {
		return 0, fmt.Errorf("failed to list sent recipients: %w", err)
	}

	query, args, err := NewQueryBuilder(rt).BuildCountQuery(tree, QueryOptions{
		Preferences: prefs,
		ExcludeIDs:  exclude,
	})
	if err != nil {
		return 0, err
	}

	var count int
	if err := e.sourceDB(rt).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to run count query: %w", err)
	}
	return count, nil
}

func (e *Estimator) selectSource(ctx context.Context, rt models.RecipientType, campaignID string, tree *models.FilterNode, prefs []string, limit int) ([]*Candidate, error) {
	exclude, err := e.excludeIDs(ctx, campaignID, rt)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent recipients: %w", err)
	}

	query, args, err := NewQueryBuilder(rt).BuildSelectQuery(tree, QueryOptions{
		Preferences: prefs,
		ExcludeIDs:  exclude,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}

	rows, err := e.sourceDB(rt).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run select query: %w", err)
	}
	defer rows.Close()

	candidates := []*Candidate{}
	for rows.Next() {
		c := &Candidate{Type: rt}
		var language sql.NullString
		if err := rows.Scan(&c.ID, &c.Email, &language); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Language = language.String
		if c.Language == "" {
			c.Language = "en-US"
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
