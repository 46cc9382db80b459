package storage

import (
	"context"
	"time"

	"github.com/playlift/playlift/internal/models"
)

// =============================================
// CLICK STORE
// =============================================

// ClickStore defines operations for tracked-link click storage.
type ClickStore interface {
	SaveClick(ctx context.Context, click *models.Click) error
	GetClick(ctx context.Context, id string) (*models.Click, error)

	// GetClicksByIdentity returns the non-expired clicks linked to an
	// identity through its sessions, with clicked_at at or after since.
	GetClicksByIdentity(ctx context.Context, identityID string, since time.Time) ([]*models.Click, error)
}

// =============================================
// SESSION STORE
// =============================================

// SessionStore defines operations for click-to-identity session links.
type SessionStore interface {
	// SaveSession inserts the (click_id, identity_id) pair if absent and
	// reports whether a new row was created.
	SaveSession(ctx context.Context, session *models.Session) (bool, error)
	GetSession(ctx context.Context, clickID, identityID string) (*models.Session, error)

	// GetRecentIdentityIDs returns the distinct identity IDs with a
	// non-expired session created at or after since.
	GetRecentIdentityIDs(ctx context.Context, since time.Time) ([]string, error)
}

// =============================================
// PLAY STORE
// =============================================

// PlayStore defines operations for listening-history storage.
type PlayStore interface {
	// SavePlay inserts the play if no row exists for its
	// (identity_id, track_id, played_at) triple and reports whether a new
	// row was created.
	SavePlay(ctx context.Context, play *models.Play) (bool, error)
	GetPlay(ctx context.Context, id string) (*models.Play, error)
	GetPlaysByIdentity(ctx context.Context, identityID string, since time.Time) ([]*models.Play, error)
}

// =============================================
// ATTRIBUTION STORE
// =============================================

// AttributionStore defines operations for attribution records.
type AttributionStore interface {
	// SaveAttribution inserts the attribution if its play has none yet and
	// reports whether a new row was created. A play never carries more than
	// one attribution.
	SaveAttribution(ctx context.Context, attr *models.Attribution) (bool, error)
	GetAttributionByPlay(ctx context.Context, playID string) (*models.Attribution, error)
	GetAttributionsByCampaign(ctx context.Context, campaignID string) ([]*models.Attribution, error)
	GetAttributionsByClick(ctx context.Context, clickID string) ([]*models.Attribution, error)

	// Aggregations
	GetCampaignStats(ctx context.Context, campaignID string) (*models.CampaignStats, error)
}

// =============================================
// IDENTITY STORE
// =============================================

// IdentityStore defines operations for authenticated listener identities.
// Rows are written by the listener-facing auth flow; this service reads
// them and maintains poll bookkeeping.
type IdentityStore interface {
	SaveIdentity(ctx context.Context, identity *models.Identity) error
	GetIdentity(ctx context.Context, id string) (*models.Identity, error)

	// ListPollable returns identities holding a refresh credential, least
	// recently polled first.
	ListPollable(ctx context.Context) ([]*models.Identity, error)
	MarkPolled(ctx context.Context, id string, at time.Time) error
}

// =============================================
// CAMPAIGN STORE
// =============================================

// CampaignStore defines operations for campaign configuration.
type CampaignStore interface {
	SaveCampaign(ctx context.Context, campaign *models.Campaign) error
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
}

// =============================================
// PLAYLIST CACHE STORE
// =============================================

// PlaylistCacheStore holds playlist track sets with a TTL. Entries past
// their TTL are treated as absent.
type PlaylistCacheStore interface {
	// GetTracks returns the cached track set for a playlist and whether a
	// live entry was found.
	GetTracks(ctx context.Context, playlistID string) (map[string]struct{}, bool, error)
	PutTracks(ctx context.Context, playlistID string, trackIDs []string, ttl time.Duration) error
}
