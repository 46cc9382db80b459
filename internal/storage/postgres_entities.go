package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playlift/playlift/internal/models"
)

// PostgresIdentityStore implements IdentityStore using PostgreSQL.
type PostgresIdentityStore struct {
	pool *pgxpool.Pool
}

// NewPostgresIdentityStore creates a new PostgreSQL-backed identity store.
func NewPostgresIdentityStore(pool *pgxpool.Pool) *PostgresIdentityStore {
	return &PostgresIdentityStore{pool: pool}
}

// SaveIdentity upserts everything except last_polled_at, so a credential
// refresh from the auth flow never resets poll bookkeeping.
func (s *PostgresIdentityStore) SaveIdentity(ctx context.Context, identity *models.Identity) error {
	if identity == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO identities (id, display_name, refresh_token_enc, last_polled_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			refresh_token_enc = EXCLUDED.refresh_token_enc
	`, identity.ID, nullString(identity.DisplayName), identity.RefreshTokenEnc,
		identity.LastPolledAt, identity.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

func (s *PostgresIdentityStore) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	var identity models.Identity
	var displayName *string

	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, refresh_token_enc, last_polled_at, created_at
		FROM identities WHERE id = $1
	`, id).Scan(&identity.ID, &displayName, &identity.RefreshTokenEnc,
		&identity.LastPolledAt, &identity.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	if displayName != nil {
		identity.DisplayName = *displayName
	}

	return &identity, nil
}

func (s *PostgresIdentityStore) ListPollable(ctx context.Context) ([]*models.Identity, error) {
	// NULLS FIRST puts never-polled identities at the head of the queue.
	rows, err := s.pool.Query(ctx, `
		SELECT id, display_name, refresh_token_enc, last_polled_at, created_at
		FROM identities
		WHERE refresh_token_enc <> ''
		ORDER BY last_polled_at ASC NULLS FIRST, created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pollable identities: %w", err)
	}
	defer rows.Close()

	var identities []*models.Identity
	for rows.Next() {
		var identity models.Identity
		var displayName *string

		if err := rows.Scan(&identity.ID, &displayName, &identity.RefreshTokenEnc,
			&identity.LastPolledAt, &identity.CreatedAt); err != nil {
			return nil, err
		}

		if displayName != nil {
			identity.DisplayName = *displayName
		}

		identities = append(identities, &identity)
	}

	return identities, nil
}

func (s *PostgresIdentityStore) MarkPolled(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE identities SET last_polled_at = $2 WHERE id = $1
	`, id, at)

	if err != nil {
		return fmt.Errorf("failed to mark identity polled: %w", err)
	}
	return nil
}

// PostgresCampaignStore implements CampaignStore using PostgreSQL.
type PostgresCampaignStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCampaignStore creates a new PostgreSQL-backed campaign store.
func NewPostgresCampaignStore(pool *pgxpool.Pool) *PostgresCampaignStore {
	return &PostgresCampaignStore{pool: pool}
}

func (s *PostgresCampaignStore) SaveCampaign(ctx context.Context, campaign *models.Campaign) error {
	if campaign == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO campaigns (id, name, artist_id, playlist_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			artist_id = EXCLUDED.artist_id,
			playlist_id = EXCLUDED.playlist_id,
			updated_at = EXCLUDED.updated_at
	`, campaign.ID, campaign.Name, nullString(campaign.ArtistID),
		nullString(campaign.PlaylistID), campaign.CreatedAt, campaign.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}
	return nil
}

func (s *PostgresCampaignStore) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	var artistID, playlistID *string

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, artist_id, playlist_id, created_at, updated_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&campaign.ID, &campaign.Name, &artistID, &playlistID,
		&campaign.CreatedAt, &campaign.UpdatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	if artistID != nil {
		campaign.ArtistID = *artistID
	}
	if playlistID != nil {
		campaign.PlaylistID = *playlistID
	}

	return &campaign, nil
}
