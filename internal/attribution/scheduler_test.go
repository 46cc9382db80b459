package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/playlift/playlift/internal/models"
	"github.com/playlift/playlift/internal/spotify"
	"github.com/playlift/playlift/internal/storage"
)

type schedulerFixture struct {
	events     *storage.InMemoryEventStore
	identities *storage.InMemoryIdentityStore
	campaigns  *storage.InMemoryCampaignStore
	cipher     *spotify.TokenCipher
	feed       *fakeFeed
	scheduler  *Scheduler
}

func newSchedulerFixture(t *testing.T, interval time.Duration) *schedulerFixture {
	t.Helper()

	cipher, err := spotify.NewTokenCipher("test-credential-secret")
	require.NoError(t, err)

	f := &schedulerFixture{
		events:     storage.NewInMemoryEventStore(),
		identities: storage.NewInMemoryIdentityStore(),
		campaigns:  storage.NewInMemoryCampaignStore(),
		cipher:     cipher,
		feed:       &fakeFeed{},
	}

	ingestor := NewIngestor(f.events, f.identities, cipher, &fakeRefresher{}, f.feed, testRetention, zap.NewNop(), nil)
	engine := NewEngine(EngineDeps{
		Sessions:     f.events,
		Clicks:       f.events,
		Plays:        f.events,
		Attributions: f.events,
		Campaigns:    f.campaigns,
		Playlists:    &fakeMembership{members: map[string]map[string]struct{}{}},
	}, 48*time.Hour, testRetention, zap.NewNop(), nil)

	f.scheduler = NewScheduler(f.identities, ingestor, engine, interval, 0, zap.NewNop())
	return f
}

func (f *schedulerFixture) seedLinkedClick(t *testing.T, clickID, campaignID, identityID string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	expiry := time.Now().Add(testRetention)

	require.NoError(t, f.campaigns.SaveCampaign(ctx, &models.Campaign{ID: campaignID, Name: campaignID}))
	require.NoError(t, f.events.SaveClick(ctx, &models.Click{
		ID:         clickID,
		CampaignID: campaignID,
		ClickedAt:  at,
		ExpiresAt:  expiry,
	}))
	created, err := f.events.SaveSession(ctx, &models.Session{
		ClickID:    clickID,
		IdentityID: identityID,
		CreatedAt:  at,
		ExpiresAt:  expiry,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestSchedulerIngestsAndAttributesOnStart(t *testing.T) {
	f := newSchedulerFixture(t, time.Hour)

	enc, err := f.cipher.Encrypt("refresh-1")
	require.NoError(t, err)
	require.NoError(t, f.identities.SaveIdentity(context.Background(), &models.Identity{
		ID:              "identity-1",
		RefreshTokenEnc: enc,
		CreatedAt:       time.Now().Add(-time.Hour),
	}))

	f.seedLinkedClick(t, "click-1", "camp-a", "identity-1", time.Now().Add(-2*time.Hour))
	f.feed.plays = []spotify.RecentPlay{
		{TrackID: "t1", PlayedAt: time.Now().Add(-time.Hour)},
	}

	stop := f.scheduler.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool {
		attrs, err := f.events.GetAttributionsByCampaign(context.Background(), "camp-a")
		return err == nil && len(attrs) == 1
	}, 3*time.Second, 10*time.Millisecond, "the startup cycle should ingest and attribute")

	attrs, err := f.events.GetAttributionsByCampaign(context.Background(), "camp-a")
	require.NoError(t, err)
	assert.Equal(t, "click-1", attrs[0].ClickID)
}

func TestSchedulerTriggerPassRunsOutOfBand(t *testing.T) {
	f := newSchedulerFixture(t, time.Hour)

	stop := f.scheduler.Start(context.Background())
	defer stop()

	// Seed after startup so only a triggered pass can pick this up before
	// the hour-long ticker fires.
	f.seedLinkedClick(t, "click-1", "camp-a", "identity-1", time.Now().Add(-2*time.Hour))
	created, err := f.events.SavePlay(context.Background(), &models.Play{
		ID:         "play-1",
		IdentityID: "identity-1",
		TrackID:    "t1",
		PlayedAt:   time.Now().Add(-time.Hour),
		ExpiresAt:  time.Now().Add(testRetention),
	})
	require.NoError(t, err)
	require.True(t, created)

	f.scheduler.TriggerPass(TriggerLink)

	require.Eventually(t, func() bool {
		attr, err := f.events.GetAttributionByPlay(context.Background(), "play-1")
		return err == nil && attr != nil
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSchedulerStopWaitsForLoopExit(t *testing.T) {
	f := newSchedulerFixture(t, 20*time.Millisecond)

	stop := f.scheduler.Start(context.Background())

	finished := make(chan struct{})
	go func() {
		stop()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}

	// Triggering after stop must not block or panic.
	f.scheduler.TriggerPass(TriggerManual)
}
