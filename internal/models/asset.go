package models

import (
	"fmt"
	"regexp"
	"time"
)

// Channel represents valid delivery channels for campaign assets
type Channel string

const (
	ChannelEmail Channel = "email"
)

var languagePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// CampaignAsset is one rendered email template per (campaign, channel,
// locale). Upserts replace content in place: the (campaign_id, channel,
// language) triple is unique.
type CampaignAsset struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	Channel    Channel   `json:"channel" db:"channel"`
	Language   string    `json:"language" db:"language"`
	Subject    string    `json:"subject" db:"subject"`
	HTMLBody   string    `json:"html_body" db:"html_body"`
	TextBody   string    `json:"text_body" db:"text_body"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// ParseChannel validates a raw channel value.
func ParseChannel(s string) (Channel, error) {
	if Channel(s) == ChannelEmail {
		return ChannelEmail, nil
	}
	return "", fmt.Errorf("invalid channel: %q", s)
}

// ValidLanguage reports whether code looks like a BCP 47 language tag of the
// form "en" or "en-US".
func ValidLanguage(code string) bool {
	return languagePattern.MatchString(code)
}

// Validate checks if the asset fields are valid
func (a *CampaignAsset) Validate() error {
	if _, err := ParseChannel(string(a.Channel)); err != nil {
		return err
	}
	if !ValidLanguage(a.Language) {
		return fmt.Errorf("invalid language code: %q", a.Language)
	}
	if a.Subject == "" {
		return fmt.Errorf("asset subject is required")
	}
	if a.HTMLBody == "" {
		return fmt.Errorf("asset html body is required")
	}
	return nil
}
