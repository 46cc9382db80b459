package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playlift/playlift/internal/models"
)

// PostgresAttributionStore implements AttributionStore using PostgreSQL.
type PostgresAttributionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAttributionStore creates a new PostgreSQL-backed attribution store.
func NewPostgresAttributionStore(pool *pgxpool.Pool) *PostgresAttributionStore {
	return &PostgresAttributionStore{pool: pool}
}

// SaveAttribution relies on the unique index on play_id: a second attribution
// for the same play is silently dropped and reported as not created.
func (s *PostgresAttributionStore) SaveAttribution(ctx context.Context, attr *models.Attribution) (bool, error) {
	if attr == nil {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO attributions (id, play_id, click_id, campaign_id, confidence, time_diff_hours, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (play_id) DO NOTHING
	`, attr.ID, attr.PlayID, attr.ClickID, attr.CampaignID, attr.Confidence, attr.TimeDiffHours, attr.CreatedAt, attr.ExpiresAt)

	if err != nil {
		return false, fmt.Errorf("failed to save attribution: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresAttributionStore) GetAttributionByPlay(ctx context.Context, playID string) (*models.Attribution, error) {
	var attr models.Attribution

	err := s.pool.QueryRow(ctx, `
		SELECT id, play_id, click_id, campaign_id, confidence, time_diff_hours, created_at, expires_at
		FROM attributions WHERE play_id = $1 AND expires_at > now()
	`, playID).Scan(&attr.ID, &attr.PlayID, &attr.ClickID, &attr.CampaignID,
		&attr.Confidence, &attr.TimeDiffHours, &attr.CreatedAt, &attr.ExpiresAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attribution by play: %w", err)
	}

	return &attr, nil
}

func (s *PostgresAttributionStore) GetAttributionsByCampaign(ctx context.Context, campaignID string) ([]*models.Attribution, error) {
	return s.listAttributions(ctx, `
		SELECT id, play_id, click_id, campaign_id, confidence, time_diff_hours, created_at, expires_at
		FROM attributions WHERE campaign_id = $1 AND expires_at > now()
		ORDER BY created_at DESC
	`, campaignID)
}

func (s *PostgresAttributionStore) GetAttributionsByClick(ctx context.Context, clickID string) ([]*models.Attribution, error) {
	return s.listAttributions(ctx, `
		SELECT id, play_id, click_id, campaign_id, confidence, time_diff_hours, created_at, expires_at
		FROM attributions WHERE click_id = $1 AND expires_at > now()
		ORDER BY created_at DESC
	`, clickID)
}

func (s *PostgresAttributionStore) listAttributions(ctx context.Context, query string, arg any) ([]*models.Attribution, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributions: %w", err)
	}
	defer rows.Close()

	var attrs []*models.Attribution
	for rows.Next() {
		var attr models.Attribution
		if err := rows.Scan(&attr.ID, &attr.PlayID, &attr.ClickID, &attr.CampaignID,
			&attr.Confidence, &attr.TimeDiffHours, &attr.CreatedAt, &attr.ExpiresAt); err != nil {
			return nil, err
		}
		attrs = append(attrs, &attr)
	}

	return attrs, nil
}

// GetCampaignStats aggregates over non-expired attributions joined to their
// plays. Tier thresholds sit between the decay levels (1.0, 0.6, 0.3).
// StreamsPerListener is derived by the stats service, not here.
func (s *PostgresAttributionStore) GetCampaignStats(ctx context.Context, campaignID string) (*models.CampaignStats, error) {
	stats := &models.CampaignStats{CampaignID: campaignID}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT p.identity_id),
		       COUNT(*) FILTER (WHERE a.confidence > 0.8),
		       COUNT(*) FILTER (WHERE a.confidence > 0.45 AND a.confidence <= 0.8),
		       COUNT(*) FILTER (WHERE a.confidence <= 0.45)
		FROM attributions a
		JOIN plays p ON p.id = a.play_id
		WHERE a.campaign_id = $1 AND a.expires_at > now() AND p.expires_at > now()
	`, campaignID).Scan(&stats.TotalAttributions, &stats.UniqueListeners,
		&stats.Confidence.High, &stats.Confidence.Medium, &stats.Confidence.Low)

	if err != nil {
		return nil, fmt.Errorf("failed to get campaign stats: %w", err)
	}

	return stats, nil
}
