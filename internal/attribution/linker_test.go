package attribution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/playlift/playlift/internal/storage"
)

func TestLinkCreatesSession(t *testing.T) {
	store := storage.NewInMemoryEventStore()
	linker := NewLinker(store, 90*24*time.Hour, zap.NewNop(), nil)

	now := time.Now().Truncate(time.Second)
	linker.now = func() time.Time { return now }

	session, err := linker.Link(context.Background(), "click-1", "identity-1")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, "click-1", session.ClickID)
	assert.Equal(t, "identity-1", session.IdentityID)
	assert.Equal(t, now, session.CreatedAt)
	assert.Equal(t, now.Add(90*24*time.Hour), session.ExpiresAt)

	stored, err := store.GetSession(context.Background(), "click-1", "identity-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestLinkIsIdempotent(t *testing.T) {
	store := storage.NewInMemoryEventStore()
	linker := NewLinker(store, 90*24*time.Hour, zap.NewNop(), nil)

	first := time.Now().Truncate(time.Second)
	linker.now = func() time.Time { return first }

	created, err := linker.Link(context.Background(), "click-1", "identity-1")
	require.NoError(t, err)

	// Relink hours later; the stored session must come back unchanged.
	linker.now = func() time.Time { return first.Add(6 * time.Hour) }

	again, err := linker.Link(context.Background(), "click-1", "identity-1")
	require.NoError(t, err)
	require.NotNil(t, again)

	assert.Equal(t, created.CreatedAt, again.CreatedAt)
	assert.Equal(t, created.ExpiresAt, again.ExpiresAt)
}

func TestLinkAllowsManyClicksPerIdentity(t *testing.T) {
	store := storage.NewInMemoryEventStore()
	linker := NewLinker(store, 90*24*time.Hour, zap.NewNop(), nil)
	ctx := context.Background()

	_, err := linker.Link(ctx, "click-1", "identity-1")
	require.NoError(t, err)
	_, err = linker.Link(ctx, "click-2", "identity-1")
	require.NoError(t, err)
	_, err = linker.Link(ctx, "click-1", "identity-2")
	require.NoError(t, err)

	ids, err := store.GetRecentIdentityIDs(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"identity-1", "identity-2"}, ids)
}

func TestLinkValidatesInput(t *testing.T) {
	linker := NewLinker(storage.NewInMemoryEventStore(), time.Hour, zap.NewNop(), nil)
	ctx := context.Background()

	_, err := linker.Link(ctx, "", "identity-1")
	assert.ErrorContains(t, err, "click ID is required")

	_, err = linker.Link(ctx, "click-1", "")
	assert.ErrorContains(t, err, "identity ID is required")
}
