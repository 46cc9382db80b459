package models

import (
	"errors"
	"time"
)

// Campaign is the marketing campaign a tracked link belongs to. The
// attribution core reads campaigns only to learn whether a playlist gates
// attribution for their clicks; campaign management lives elsewhere.
type Campaign struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// ArtistID identifies the promoted artist on the streaming provider.
	ArtistID string `json:"artist_id,omitempty"`

	// PlaylistID, when set, restricts attributable plays to tracks that are
	// currently members of this playlist.
	PlaylistID string `json:"playlist_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required campaign fields.
func (c *Campaign) Validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// CampaignStats aggregates attribution outcomes for a single campaign.
// StreamsPerListener is TotalAttributions / UniqueListeners, or 0 when the
// campaign has no attributed listeners yet.
type CampaignStats struct {
	CampaignID         string              `json:"campaign_id"`
	TotalAttributions  int64               `json:"total_attributions"`
	UniqueListeners    int64               `json:"unique_listeners"`
	StreamsPerListener float64             `json:"streams_per_listener"`
	Confidence         ConfidenceBreakdown `json:"confidence_breakdown"`
}

// ConfidenceBreakdown counts attributions at each of the three decay levels.
type ConfidenceBreakdown struct {
	High   int64 `json:"high"`   // confidence 1.0
	Medium int64 `json:"medium"` // confidence 0.6
	Low    int64 `json:"low"`    // confidence 0.3
}
