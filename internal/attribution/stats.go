package attribution

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/playlift/playlift/internal/models"
	"github.com/playlift/playlift/internal/storage"
)

// StatsService answers reporting queries over attribution records.
type StatsService struct {
	attributions storage.AttributionStore
	logger       *zap.Logger
}

// NewStatsService creates a stats service.
func NewStatsService(attributions storage.AttributionStore, logger *zap.Logger) *StatsService {
	return &StatsService{
		attributions: attributions,
		logger:       logger,
	}
}

// CampaignStats aggregates a campaign's attributions into totals, unique
// listeners, streams per listener, and a confidence breakdown. A campaign
// with no attributions yields all zeroes, not an error.
func (s *StatsService) CampaignStats(ctx context.Context, campaignID string) (*models.CampaignStats, error) {
	if campaignID == "" {
		return nil, fmt.Errorf("campaign ID is required")
	}

	stats, err := s.attributions.GetCampaignStats(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate campaign stats: %w", err)
	}

	if stats.UniqueListeners > 0 {
		stats.StreamsPerListener = float64(stats.TotalAttributions) / float64(stats.UniqueListeners)
	}

	return stats, nil
}

// AttributionsForCampaign lists a campaign's attribution records.
func (s *StatsService) AttributionsForCampaign(ctx context.Context, campaignID string) ([]*models.Attribution, error) {
	if campaignID == "" {
		return nil, fmt.Errorf("campaign ID is required")
	}

	attrs, err := s.attributions.GetAttributionsByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign attributions: %w", err)
	}

	return attrs, nil
}

// AttributionsForClick lists the attributions a single click earned.
func (s *StatsService) AttributionsForClick(ctx context.Context, clickID string) ([]*models.Attribution, error) {
	if clickID == "" {
		return nil, fmt.Errorf("click ID is required")
	}

	attrs, err := s.attributions.GetAttributionsByClick(ctx, clickID)
	if err != nil {
		return nil, fmt.Errorf("failed to list click attributions: %w", err)
	}

	return attrs, nil
}
