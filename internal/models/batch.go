package models

import (
	"fmt"
	"time"
)

// BatchStatus represents valid batch statuses
type BatchStatus string

const (
	BatchStatusQueued    BatchStatus = "queued"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// SendStats aggregates per-recipient outcomes for a batch or a whole
// campaign.
type SendStats struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// CampaignBatch is one execution attempt of a campaign send: a scheduled
// cycle, a forced "send now", or a sample send to the fixed test address
// list. Sample batches are excluded from history queries by default.
type CampaignBatch struct {
	ID                string      `json:"id" db:"id"`
	CampaignID        string      `json:"campaign_id" db:"campaign_id"`
	Status            BatchStatus `json:"status" db:"status"`
	RequestedBy       string      `json:"requested_by" db:"requested_by"`
	SampleSend        bool        `json:"sample_send" db:"sample_send"`
	AssetSnapshotHash *string     `json:"asset_snapshot_hash,omitempty" db:"asset_snapshot_hash"`
	Stats             SendStats   `json:"stats" db:"stats"`
	RequestedAt       time.Time   `json:"requested_at" db:"requested_at"`
	StartedAt         *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// ParseBatchStatus validates a raw batch status value.
func ParseBatchStatus(s string) (BatchStatus, error) {
	switch BatchStatus(s) {
	case BatchStatusQueued, BatchStatusRunning, BatchStatusCompleted, BatchStatusFailed:
		return BatchStatus(s), nil
	}
	return "", fmt.Errorf("invalid batch status: %q", s)
}
