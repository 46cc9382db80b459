package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/playlift/playlift/internal/config"
	"github.com/playlift/playlift/internal/metrics"
)

const defaultAPIBaseURL = "https://api.spotify.com/v1"

// Client calls the streaming provider's Web API with a caller-supplied
// access token. It never refreshes tokens itself.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics

	recentLimit int
	pageSize    int
	trackCap    int
}

// NewClient creates a provider API client.
func NewClient(cfg config.ProviderConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	base := cfg.APIBaseURL
	if base == "" {
		base = defaultAPIBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(base, "/"),
		http:        &http.Client{Timeout: timeout},
		logger:      logger,
		metrics:     m,
		recentLimit: cfg.RecentPlaysLimit,
		pageSize:    cfg.PlaylistPageSize,
		trackCap:    cfg.PlaylistTrackCap,
	}
}

// RecentPlay is one entry of the provider's recently-played feed.
type RecentPlay struct {
	TrackID    string
	TrackName  string
	ArtistID   string
	ArtistName string
	PlayedAt   time.Time
}

// RecentlyPlayed fetches the listener's most recent plays, newest first.
// The provider serves at most 50 entries regardless of limit.
func (c *Client) RecentlyPlayed(ctx context.Context, accessToken string) ([]RecentPlay, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.recentLimit))

	var payload recentlyPlayedResponse
	reqURL := fmt.Sprintf("%s/me/player/recently-played?%s", c.baseURL, params.Encode())
	if err := c.getJSON(ctx, "recently_played", reqURL, accessToken, &payload); err != nil {
		return nil, err
	}

	plays := make([]RecentPlay, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.Track.ID == "" {
			continue
		}

		play := RecentPlay{
			TrackID:   item.Track.ID,
			TrackName: item.Track.Name,
			PlayedAt:  item.PlayedAt,
		}
		if len(item.Track.Artists) > 0 {
			play.ArtistID = item.Track.Artists[0].ID
			play.ArtistName = item.Track.Artists[0].Name
		}
		plays = append(plays, play)
	}

	return plays, nil
}

// PlaylistTracks fetches every track ID in a playlist, paging until the
// provider reports no further page or the track cap is reached.
func (c *Client) PlaylistTracks(ctx context.Context, accessToken, playlistID string) ([]string, error) {
	var tracks []string

	offset := 0
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("fields", "items(track(id)),next")

		var payload playlistTracksResponse
		reqURL := fmt.Sprintf("%s/playlists/%s/tracks?%s", c.baseURL, url.PathEscape(playlistID), params.Encode())
		if err := c.getJSON(ctx, "playlist_tracks", reqURL, accessToken, &payload); err != nil {
			return nil, err
		}

		for _, item := range payload.Items {
			// Local files and removed tracks arrive as null entries.
			if item.Track != nil && item.Track.ID != "" {
				tracks = append(tracks, item.Track.ID)
			}
		}

		if len(tracks) >= c.trackCap {
			c.logger.Warn("playlist truncated at track cap",
				zap.String("playlist_id", playlistID),
				zap.Int("cap", c.trackCap),
			)
			return tracks[:c.trackCap], nil
		}
		if payload.Next == nil || len(payload.Items) == 0 {
			return tracks, nil
		}
		offset += c.pageSize
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint, reqURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordProviderRequest(endpoint, 0, time.Since(start))
		}
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordProviderRequest(endpoint, resp.StatusCode, time.Since(start))
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

type trackObject struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artists"`
}

type recentlyPlayedResponse struct {
	Items []struct {
		PlayedAt time.Time   `json:"played_at"`
		Track    trackObject `json:"track"`
	} `json:"items"`
}

type playlistTracksResponse struct {
	Items []struct {
		Track *trackObject `json:"track"`
	} `json:"items"`
	Next *string `json:"next"`
}
