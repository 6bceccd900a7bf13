package models

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// CampaignStatus represents valid campaign statuses
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// AudienceSource represents which recipient population a campaign targets
type AudienceSource string

const (
	AudienceUsers AudienceSource = "users"
	AudienceLeads AudienceSource = "leads"
	AudienceBoth  AudienceSource = "both"
)

// MaxTitleLength is the campaign title column limit.
const MaxTitleLength = 255

// ValidPreferences is the set of user notification preferences a campaign
// may target. Users outside the selected preferences are suppressed.
var ValidPreferences = map[string]bool{
	"news":        true,
	"inspiration": true,
	"product":     true,
	"account":     true,
}

// allowedTransitions is the campaign lifecycle table. Terminal states have
// no outgoing transitions. CampaignStatusCompleted never appears as a target
// here: it is reached only by the batch runner when the audience is
// exhausted, never through the transition API.
var allowedTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:     {CampaignStatusActive, CampaignStatusCancelled},
	CampaignStatusActive:    {CampaignStatusPaused, CampaignStatusCancelled},
	CampaignStatusPaused:    {CampaignStatusActive, CampaignStatusCancelled},
	CampaignStatusCompleted: {},
	CampaignStatusCancelled: {},
}

// Campaign represents a marketing send definition
type Campaign struct {
	ID              string         `json:"id" db:"id"`
	Title           string         `json:"title" db:"title"`
	Description     *string        `json:"description,omitempty" db:"description"`
	Status          CampaignStatus `json:"status" db:"status"`
	AudienceSource  AudienceSource `json:"audience_source" db:"audience_source"`
	UserPreferences []string       `json:"user_preferences,omitempty" db:"user_preferences"`
	FilterTree      *FilterNode    `json:"filter_tree,omitempty" db:"filter_tree"`
	DailySendLimit  *int           `json:"daily_send_limit,omitempty" db:"daily_send_limit"`
	ScheduleStart   *time.Time     `json:"schedule_start,omitempty" db:"schedule_start"`
	ScheduleEnd     *time.Time     `json:"schedule_end,omitempty" db:"schedule_end"`
	CreatedBy       string         `json:"created_by" db:"created_by"`
	UpdatedBy       string         `json:"updated_by" db:"updated_by"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// ParseCampaignStatus validates a raw status value. Unknown values are
// rejected, never coerced.
func ParseCampaignStatus(s string) (CampaignStatus, error) {
	switch CampaignStatus(s) {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusPaused,
		CampaignStatusCompleted, CampaignStatusCancelled:
		return CampaignStatus(s), nil
	}
	return "", fmt.Errorf("invalid campaign status: %q", s)
}

// ParseAudienceSource validates a raw audience source value.
func ParseAudienceSource(s string) (AudienceSource, error) {
	switch AudienceSource(s) {
	case AudienceUsers, AudienceLeads, AudienceBoth:
		return AudienceSource(s), nil
	}
	return "", fmt.Errorf("invalid audience source: %q", s)
}

// CanTransitionTo reports whether the lifecycle table permits moving from s
// to target.
func (s CampaignStatus) CanTransitionTo(target CampaignStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal next statuses from s.
func (s CampaignStatus) AllowedTransitions() []CampaignStatus {
	return allowedTransitions[s]
}

// IsTerminal reports whether s has no outgoing transitions.
func (s CampaignStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// IncludesUsers reports whether the campaign targets the users source.
func (c *Campaign) IncludesUsers() bool {
	return c.AudienceSource == AudienceUsers || c.AudienceSource == AudienceBoth
}

// IncludesLeads reports whether the campaign targets the leads source.
func (c *Campaign) IncludesLeads() bool {
	return c.AudienceSource == AudienceLeads || c.AudienceSource == AudienceBoth
}

// CanEdit reports whether metadata and filter edits are permitted.
func (c *Campaign) CanEdit() bool {
	return c.Status == CampaignStatusDraft
}

// CanUpsertAsset reports whether asset creation/update is permitted. Asset
// edits are additionally allowed while active; deletion is draft-only.
func (c *Campaign) CanUpsertAsset() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusActive
}

// CanDeleteAsset reports whether asset deletion is permitted.
func (c *Campaign) CanDeleteAsset() bool {
	return c.Status == CampaignStatusDraft
}

// CanDelete reports whether the campaign itself may be deleted.
func (c *Campaign) CanDelete() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusCancelled
}

// Validate checks if the campaign fields are valid
func (c *Campaign) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("campaign title is required")
	}
	if len(c.Title) > MaxTitleLength {
		return fmt.Errorf("campaign title exceeds %d characters", MaxTitleLength)
	}
	if _, err := ParseAudienceSource(string(c.AudienceSource)); err != nil {
		return err
	}
	for _, pref := range c.UserPreferences {
		if !ValidPreferences[pref] {
			return fmt.Errorf("invalid notification preference: %q", pref)
		}
	}
	if c.DailySendLimit != nil && *c.DailySendLimit <= 0 {
		return fmt.Errorf("daily send limit must be greater than 0")
	}
	if c.ScheduleStart != nil && c.ScheduleEnd != nil && c.ScheduleEnd.Before(*c.ScheduleStart) {
		return fmt.Errorf("schedule end must not be before schedule start")
	}
	return nil
}

// CopyTitle derives the title for a duplicated campaign: the original plus
// " - copy", truncated so the result fits the column limit. Truncation backs
// off to a rune boundary so a multi-byte title never ends up invalid UTF-8.
func CopyTitle(title string) string {
	const suffix = " - copy"
	if len(title)+len(suffix) > MaxTitleLength {
		cut := MaxTitleLength - len(suffix)
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title + suffix
}
