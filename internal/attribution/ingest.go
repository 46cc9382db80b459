package attribution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/playlift/playlift/internal/metrics"
	"github.com/playlift/playlift/internal/models"
	"github.com/playlift/playlift/internal/spotify"
	"github.com/playlift/playlift/internal/storage"
)

// TokenRefresher exchanges a stored refresh credential for an access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// RecentPlaysFetcher reads a listener's recently-played feed.
type RecentPlaysFetcher interface {
	RecentlyPlayed(ctx context.Context, accessToken string) ([]spotify.RecentPlay, error)
}

// Ingestor pulls recent plays for authenticated identities and persists the
// ones not seen before.
type Ingestor struct {
	plays      storage.PlayStore
	identities storage.IdentityStore
	cipher     *spotify.TokenCipher
	auth       TokenRefresher
	client     RecentPlaysFetcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
	retention  time.Duration
	now        func() time.Time
}

// NewIngestor creates a play ingestor. Ingested plays expire after the given
// retention period.
func NewIngestor(plays storage.PlayStore, identities storage.IdentityStore, cipher *spotify.TokenCipher, auth TokenRefresher, client RecentPlaysFetcher, retention time.Duration, logger *zap.Logger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		plays:      plays,
		identities: identities,
		cipher:     cipher,
		auth:       auth,
		client:     client,
		logger:     logger,
		metrics:    m,
		retention:  retention,
		now:        time.Now,
	}
}

// IngestIdentity polls one identity's recent plays and stores the new ones,
// returning how many were new. An identity without a usable credential is
// skipped without error; the skip is logged and counted. Re-ingesting already
// stored plays is a no-op.
func (i *Ingestor) IngestIdentity(ctx context.Context, identity *models.Identity) (int, error) {
	if identity == nil || identity.ID == "" {
		return 0, fmt.Errorf("identity is required")
	}

	refreshToken, err := i.cipher.Decrypt(identity.RefreshTokenEnc)
	if err != nil {
		i.logger.Warn("skipping identity without usable credential",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
		if i.metrics != nil {
			i.metrics.RecordIdentityPolled("skipped")
		}
		return 0, nil
	}

	token, err := i.auth.Refresh(ctx, refreshToken)
	if err != nil {
		// A failed refresh usually means the grant was revoked. Treat
		// it like a missing credential and move on.
		i.logger.Warn("skipping identity with failing credential",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
		if i.metrics != nil {
			i.metrics.RecordIdentityPolled("skipped")
		}
		return 0, nil
	}

	recent, err := i.client.RecentlyPlayed(ctx, token.AccessToken)
	if err != nil {
		if i.metrics != nil {
			i.metrics.RecordIdentityPolled("error")
		}
		return 0, fmt.Errorf("failed to fetch recent plays for identity %s: %w", identity.ID, err)
	}

	now := i.now()
	ingested := 0
	for _, rp := range recent {
		play := &models.Play{
			ID:         uuid.New().String(),
			IdentityID: identity.ID,
			TrackID:    rp.TrackID,
			TrackName:  rp.TrackName,
			ArtistID:   rp.ArtistID,
			ArtistName: rp.ArtistName,
			PlayedAt:   rp.PlayedAt,
			ExpiresAt:  now.Add(i.retention),
		}
		created, err := i.plays.SavePlay(ctx, play)
		if err != nil {
			return ingested, fmt.Errorf("failed to save play for identity %s: %w", identity.ID, err)
		}
		if created {
			ingested++
		}
	}

	// Poll bookkeeping advances even when nothing new was found.
	if err := i.identities.MarkPolled(ctx, identity.ID, now); err != nil {
		i.logger.Warn("failed to mark identity polled",
			zap.String("identity_id", identity.ID),
			zap.Error(err))
	}

	if i.metrics != nil {
		i.metrics.RecordIdentityPolled("ok")
		i.metrics.RecordPlaysIngested(ingested)
	}

	i.logger.Debug("identity polled",
		zap.String("identity_id", identity.ID),
		zap.Int("recent_plays", len(recent)),
		zap.Int("new_plays", ingested))

	return ingested, nil
}
