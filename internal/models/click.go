package models

import (
	"errors"
	"time"
)

// Click records a single visit to a campaign's tracked link. Clicks are
// written by the redirect layer and are immutable afterwards; the retention
// sweep is the only thing that ever removes them.
type Click struct {
	ID                 string    `json:"id"`
	CampaignID         string    `json:"campaign_id"`
	VisitorFingerprint string    `json:"visitor_fingerprint,omitempty"`
	ClickedAt          time.Time `json:"clicked_at"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// Validate checks required click fields.
func (c *Click) Validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	if c.CampaignID == "" {
		return errors.New("campaign_id is required")
	}
	if c.ClickedAt.IsZero() {
		return errors.New("clicked_at is required")
	}
	return nil
}

// Session ties a click to the identity that authenticated with the streaming
// provider after following it. The (ClickID, IdentityID) pair is unique; an
// identity accumulates one session per click it is ever linked to.
type Session struct {
	ClickID    string    `json:"click_id"`
	IdentityID string    `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Validate checks required session fields.
func (s *Session) Validate() error {
	if s.ClickID == "" {
		return errors.New("click_id is required")
	}
	if s.IdentityID == "" {
		return errors.New("identity_id is required")
	}
	return nil
}
