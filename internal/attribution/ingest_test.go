package attribution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/playlift/playlift/internal/models"
	"github.com/playlift/playlift/internal/spotify"
	"github.com/playlift/playlift/internal/storage"
)

type fakeRefresher struct {
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "access-token", TokenType: "Bearer"}, nil
}

type fakeFeed struct {
	plays []spotify.RecentPlay
	err   error
	calls int
}

func (f *fakeFeed) RecentlyPlayed(ctx context.Context, accessToken string) ([]spotify.RecentPlay, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.plays, nil
}

type ingestFixture struct {
	events     *storage.InMemoryEventStore
	identities *storage.InMemoryIdentityStore
	cipher     *spotify.TokenCipher
	refresher  *fakeRefresher
	feed       *fakeFeed
	ingestor   *Ingestor
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	cipher, err := spotify.NewTokenCipher("test-credential-secret")
	require.NoError(t, err)

	f := &ingestFixture{
		events:     storage.NewInMemoryEventStore(),
		identities: storage.NewInMemoryIdentityStore(),
		cipher:     cipher,
		refresher:  &fakeRefresher{},
		feed:       &fakeFeed{},
	}
	f.ingestor = NewIngestor(f.events, f.identities, cipher, f.refresher, f.feed, 90*24*time.Hour, zap.NewNop(), nil)
	return f
}

func (f *ingestFixture) seedIdentity(t *testing.T, id, refreshToken string) *models.Identity {
	t.Helper()

	enc := ""
	if refreshToken != "" {
		var err error
		enc, err = f.cipher.Encrypt(refreshToken)
		require.NoError(t, err)
	}

	identity := &models.Identity{
		ID:              id,
		DisplayName:     "listener " + id,
		RefreshTokenEnc: enc,
		CreatedAt:       time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.identities.SaveIdentity(context.Background(), identity))
	return identity
}

func TestIngestIdentityStoresNewPlays(t *testing.T) {
	f := newIngestFixture(t)
	identity := f.seedIdentity(t, "identity-1", "refresh-1")

	playedAt := time.Now().Add(-30 * time.Minute).UTC().Truncate(time.Second)
	f.feed.plays = []spotify.RecentPlay{
		{TrackID: "t1", TrackName: "Track One", ArtistID: "a1", ArtistName: "Artist", PlayedAt: playedAt},
		{TrackID: "t2", TrackName: "Track Two", ArtistID: "a1", ArtistName: "Artist", PlayedAt: playedAt.Add(4 * time.Minute)},
	}

	count, err := f.ingestor.IngestIdentity(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	plays, err := f.events.GetPlaysByIdentity(context.Background(), "identity-1", playedAt.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, plays, 2)
	assert.Equal(t, "t2", plays[0].TrackID, "plays should come back newest first")
	assert.Equal(t, "identity-1", plays[0].IdentityID)

	stored, err := f.identities.GetIdentity(context.Background(), "identity-1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastPolledAt)
}

func TestIngestIdentitySkipsStoredPlays(t *testing.T) {
	f := newIngestFixture(t)
	identity := f.seedIdentity(t, "identity-1", "refresh-1")

	playedAt := time.Now().Add(-30 * time.Minute).UTC().Truncate(time.Second)
	f.feed.plays = []spotify.RecentPlay{
		{TrackID: "t1", PlayedAt: playedAt},
		{TrackID: "t1", PlayedAt: playedAt.Add(10 * time.Minute)},
	}

	count, err := f.ingestor.IngestIdentity(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "same track at different times is two plays")

	// The provider returns a sliding window, so the next poll repeats
	// most of the previous one.
	count, err = f.ingestor.IngestIdentity(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	plays, err := f.events.GetPlaysByIdentity(context.Background(), "identity-1", playedAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, plays, 2)
}

func TestIngestIdentityAdvancesPollTimeWhenFeedIsQuiet(t *testing.T) {
	f := newIngestFixture(t)
	identity := f.seedIdentity(t, "identity-1", "refresh-1")

	count, err := f.ingestor.IngestIdentity(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	stored, err := f.identities.GetIdentity(context.Background(), "identity-1")
	require.NoError(t, err)
	assert.NotNil(t, stored.LastPolledAt, "empty feed still counts as a completed poll")
}

func TestIngestIdentitySkipsMissingCredential(t *testing.T) {
	f := newIngestFixture(t)
	identity := f.seedIdentity(t, "identity-1", "")

	count, err := f.ingestor.IngestIdentity(context.Background(), identity)
	require.NoError(t, err, "missing credential is a skip, not a failure")
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, f.refresher.calls)

	stored, err := f.identities.GetIdentity(context.Background(), "identity-1")
	require.NoError(t, err)
	assert.Nil(t, stored.LastPolledAt, "a skipped identity was not polled")
}

func TestIngestIdentitySkipsUndecryptableCredential(t *testing.T) {
	f := newIngestFixture(t)

	identity := &models.Identity{ID: "identity-1", RefreshTokenEnc: "not-a-ciphertext"}
	require.NoError(t, f.identities.SaveIdentity(context.Background(), identity))

	count, err := f.ingestor.IngestIdentity(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, f.refresher.calls)
}

func TestIngestIdentitySkipsRevokedCredential(t *testing.T) {
	f := newIngestFixture(t)
	identity := f.seedIdentity(t, "identity-1", "refresh-1")
	f.refresher.err = errors.New("invalid_grant")

	count, err := f.ingestor.IngestIdentity(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, f.feed.calls)
}

func TestIngestIdentityPropagatesProviderFailure(t *testing.T) {
	f := newIngestFixture(t)
	identity := f.seedIdentity(t, "identity-1", "refresh-1")
	f.feed.err = errors.New("upstream 503")

	_, err := f.ingestor.IngestIdentity(context.Background(), identity)
	assert.ErrorContains(t, err, "failed to fetch recent plays")

	stored, err := f.identities.GetIdentity(context.Background(), "identity-1")
	require.NoError(t, err)
	assert.Nil(t, stored.LastPolledAt, "failed polls must not advance the bookmark")
}
