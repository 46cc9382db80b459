package playlist

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/playlift/playlift/internal/metrics"
	"github.com/playlift/playlift/internal/storage"
)

// TrackLister fetches the current track set of a provider playlist.
type TrackLister interface {
	PlaylistTracks(ctx context.Context, accessToken string, playlistID string) ([]string, error)
}

// TokenSource supplies an access token for provider reads.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// MembershipCache answers playlist membership questions, serving from the
// cache store and refreshing from the provider on a miss.
type MembershipCache struct {
	store   storage.PlaylistCacheStore
	client  TrackLister
	tokens  TokenSource
	logger  *zap.Logger
	metrics *metrics.Metrics
	ttl     time.Duration
}

// NewMembershipCache creates a membership cache with the given TTL per
// playlist entry.
func NewMembershipCache(store storage.PlaylistCacheStore, client TrackLister, tokens TokenSource, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *MembershipCache {
	return &MembershipCache{
		store:   store,
		client:  client,
		tokens:  tokens,
		logger:  logger,
		metrics: m,
		ttl:     ttl,
	}
}

// Tracks returns the track IDs of a playlist as a set. Cached entries are
// served as-is; on a miss the playlist is fetched from the provider and the
// result cached for the configured TTL. A cached empty set is a valid answer
// for playlists with no tracks.
func (c *MembershipCache) Tracks(ctx context.Context, playlistID string) (map[string]struct{}, error) {
	if playlistID == "" {
		return nil, fmt.Errorf("playlist ID is required")
	}

	tracks, found, err := c.store.GetTracks(ctx, playlistID)
	if err != nil {
		// Fall through to the provider; a broken cache should not
		// block attribution.
		c.logger.Warn("playlist cache read failed",
			zap.String("playlist_id", playlistID),
			zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.RecordPlaylistCacheLookup(found)
	}
	if found {
		return tracks, nil
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire provider token: %w", err)
	}

	ids, err := c.client.PlaylistTracks(ctx, token, playlistID)
	if c.metrics != nil {
		c.metrics.RecordPlaylistFetch(err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist %s: %w", playlistID, err)
	}

	if err := c.store.PutTracks(ctx, playlistID, ids, c.ttl); err != nil {
		c.logger.Warn("failed to cache playlist tracks",
			zap.String("playlist_id", playlistID),
			zap.Error(err))
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	c.logger.Debug("refreshed playlist membership",
		zap.String("playlist_id", playlistID),
		zap.Int("tracks", len(set)))

	return set, nil
}

// IsMember reports whether the track is currently on the playlist.
func (c *MembershipCache) IsMember(ctx context.Context, playlistID, trackID string) (bool, error) {
	tracks, err := c.Tracks(ctx, playlistID)
	if err != nil {
		return false, err
	}

	_, ok := tracks[trackID]
	return ok, nil
}
