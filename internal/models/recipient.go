package models

import (
	"fmt"
	"time"
)

// RecipientType distinguishes the two recipient sources
type RecipientType string

const (
	RecipientUser RecipientType = "user"
	RecipientLead RecipientType = "lead"
)

// RecipientStatus represents valid recipient statuses
type RecipientStatus string

const (
	RecipientStatusQueued  RecipientStatus = "queued"
	RecipientStatusSent    RecipientStatus = "sent"
	RecipientStatusFailed  RecipientStatus = "failed"
	RecipientStatusSkipped RecipientStatus = "skipped"
)

// CampaignRecipient is one individual targeted within a batch. The
// (campaign_id, recipient_id) pair is unique at the database, which is the
// dedup mechanism: an individual is never counted as sent twice within one
// campaign, and a failed recipient remains eligible for a later batch.
type CampaignRecipient struct {
	ID            string          `json:"id" db:"id"`
	BatchID       string          `json:"batch_id" db:"batch_id"`
	CampaignID    string          `json:"campaign_id" db:"campaign_id"`
	RecipientType RecipientType   `json:"recipient_type" db:"recipient_type"`
	RecipientID   string          `json:"recipient_id" db:"recipient_id"`
	Email         string          `json:"email" db:"email"`
	Language      string          `json:"language" db:"language"`
	Status        RecipientStatus `json:"status" db:"status"`
	LastError     *string         `json:"last_error,omitempty" db:"last_error"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// ParseRecipientType validates a raw recipient type value.
func ParseRecipientType(s string) (RecipientType, error) {
	switch RecipientType(s) {
	case RecipientUser, RecipientLead:
		return RecipientType(s), nil
	}
	return "", fmt.Errorf("invalid recipient type: %q", s)
}

// ParseRecipientStatus validates a raw recipient status value.
func ParseRecipientStatus(s string) (RecipientStatus, error) {
	switch RecipientStatus(s) {
	case RecipientStatusQueued, RecipientStatusSent, RecipientStatusFailed, RecipientStatusSkipped:
		return RecipientStatus(s), nil
	}
	return "", fmt.Errorf("invalid recipient status: %q", s)
}
