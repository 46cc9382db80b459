package models

import (
	"time"
)

// Play is one streamed track as reported by the provider's recently-played
// feed. The (IdentityID, TrackID, PlayedAt) triple is the provider's own
// notion of a play event and the sole de-duplication key.
type Play struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	TrackID    string    `json:"track_id"`
	ArtistID   string    `json:"artist_id,omitempty"`
	TrackName  string    `json:"track_name,omitempty"`
	ArtistName string    `json:"artist_name,omitempty"`
	PlayedAt   time.Time `json:"played_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Attribution is the durable decision that one play was caused by one click.
// At most one attribution ever exists per play; rows are never mutated and
// never superseded.
type Attribution struct {
	ID            string    `json:"id"`
	PlayID        string    `json:"play_id"`
	ClickID       string    `json:"click_id"`
	CampaignID    string    `json:"campaign_id"`
	Confidence    float64   `json:"confidence"`
	TimeDiffHours float64   `json:"time_diff_hours"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}
