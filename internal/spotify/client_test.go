package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/playlift/playlift/internal/config"
	"github.com/playlift/playlift/internal/metrics"
)

func testClient(t *testing.T, handler http.Handler, trackCap int) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.ProviderConfig{
		APIBaseURL:       srv.URL,
		Timeout:          5 * time.Second,
		RecentPlaysLimit: 50,
		PlaylistPageSize: 2,
		PlaylistTrackCap: trackCap,
	}, zap.NewNop(), nil)
}

func TestRecentlyPlayed(t *testing.T) {
	var gotAuth, gotLimit string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/player/recently-played", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotLimit = r.URL.Query().Get("limit")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"items": [
				{
					"played_at": "2025-06-01T12:00:00.000Z",
					"track": {
						"id": "track-1",
						"name": "Song One",
						"artists": [{"id": "artist-1", "name": "Artist One"}]
					}
				},
				{
					"played_at": "2025-06-01T11:00:00.000Z",
					"track": {"id": "", "name": "local file", "artists": []}
				},
				{
					"played_at": "2025-06-01T10:00:00.000Z",
					"track": {"id": "track-2", "name": "Song Two", "artists": []}
				}
			]
		}`)
	})

	client := testClient(t, handler, 1000)

	plays, err := client.RecentlyPlayed(context.Background(), "token-abc")
	require.NoError(t, err)

	assert.Equal(t, "Bearer token-abc", gotAuth)
	assert.Equal(t, "50", gotLimit)

	// The entry without a track ID is dropped.
	require.Len(t, plays, 2)
	assert.Equal(t, "track-1", plays[0].TrackID)
	assert.Equal(t, "Song One", plays[0].TrackName)
	assert.Equal(t, "artist-1", plays[0].ArtistID)
	assert.Equal(t, "Artist One", plays[0].ArtistName)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), plays[0].PlayedAt.UTC())

	assert.Equal(t, "track-2", plays[1].TrackID)
	assert.Empty(t, plays[1].ArtistID)
}

func TestPlaylistTracksPaginates(t *testing.T) {
	pages := map[string]string{
		"0": `{"items": [{"track": {"id": "t1"}}, {"track": {"id": "t2"}}], "next": "page2"}`,
		"2": `{"items": [{"track": null}, {"track": {"id": "t3"}}], "next": null}`,
	}

	var requests int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.Equal(t, "/playlists/pl-1/tracks", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("limit"))

		body, ok := pages[r.URL.Query().Get("offset")]
		require.True(t, ok, "unexpected offset %s", r.URL.Query().Get("offset"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	client := testClient(t, handler, 1000)

	tracks, err := client.PlaylistTracks(context.Background(), "token-abc", "pl-1")
	require.NoError(t, err)

	assert.Equal(t, 2, requests)
	// The null track entry on page two is skipped.
	assert.Equal(t, []string{"t1", "t2", "t3"}, tracks)
}

func TestPlaylistTracksStopsAtCap(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"items": [{"track": {"id": "t%d"}}, {"track": {"id": "t%d"}}], "next": "more"}`,
			offset+1, offset+2)
	})

	client := testClient(t, handler, 3)

	tracks, err := client.PlaylistTracks(context.Background(), "token-abc", "pl-endless")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, tracks)
}

func TestClientSurfacesErrorStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"status": 401, "message": "The access token expired"}}`, http.StatusUnauthorized)
	})

	client := testClient(t, handler, 1000)

	_, err := client.RecentlyPlayed(context.Background(), "stale-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")

	_, err = client.PlaylistTracks(context.Background(), "stale-token", "pl-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestClientRecordsProviderMetrics(t *testing.T) {
	m := metrics.NewMetrics("spotify_test")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items": []}`)
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(config.ProviderConfig{
		APIBaseURL:       srv.URL,
		RecentPlaysLimit: 50,
		PlaylistPageSize: 100,
		PlaylistTrackCap: 1000,
	}, zap.NewNop(), m)

	_, err := client.RecentlyPlayed(context.Background(), "token-abc")
	require.NoError(t, err)

	count := testutil.ToFloat64(m.ProviderRequests.WithLabelValues("recently_played", "200"))
	assert.Equal(t, float64(1), count)
}
