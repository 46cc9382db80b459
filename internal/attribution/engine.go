package attribution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/playlift/playlift/internal/metrics"
	"github.com/playlift/playlift/internal/models"
	"github.com/playlift/playlift/internal/storage"
)

// Labels recorded with each attribution pass, naming what started it.
const (
	TriggerScheduled = "scheduled"
	TriggerLink      = "link"
	TriggerManual    = "manual"
)

// MembershipChecker gates click/play pairings on current playlist membership.
type MembershipChecker interface {
	IsMember(ctx context.Context, playlistID, trackID string) (bool, error)
}

// Result summarizes one attribution pass.
type Result struct {
	AttributionsCreated int `json:"attributions_created"`
	PlaysProcessed      int `json:"plays_processed"`
}

// EngineDeps bundles the stores and services an Engine reads from.
type EngineDeps struct {
	Sessions     storage.SessionStore
	Clicks       storage.ClickStore
	Plays        storage.PlayStore
	Attributions storage.AttributionStore
	Campaigns    storage.CampaignStore
	Playlists    MembershipChecker
}

// Engine matches stored plays to the clicks that plausibly caused them.
// Each play receives at most one attribution, to the highest-confidence
// candidate click. Passes are serialized; concurrent Run calls queue.
type Engine struct {
	sessions     storage.SessionStore
	clicks       storage.ClickStore
	plays        storage.PlayStore
	attributions storage.AttributionStore
	campaigns    storage.CampaignStore
	playlists    MembershipChecker
	logger       *zap.Logger
	metrics      *metrics.Metrics

	lookback  time.Duration
	retention time.Duration
	decay     DecayFunc
	now       func() time.Time

	mu sync.Mutex
}

// NewEngine creates an attribution engine using the default decay schedule.
func NewEngine(deps EngineDeps, lookback, retention time.Duration, logger *zap.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		sessions:     deps.Sessions,
		clicks:       deps.Clicks,
		plays:        deps.Plays,
		attributions: deps.Attributions,
		campaigns:    deps.Campaigns,
		playlists:    deps.Playlists,
		logger:       logger,
		metrics:      m,
		lookback:     lookback,
		retention:    retention,
		decay:        StepDecay,
		now:          time.Now,
	}
}

// SetDecayFunc replaces the confidence schedule. Call before Start-ing any
// scheduler that drives this engine.
func (e *Engine) SetDecayFunc(fn DecayFunc) {
	if fn != nil {
		e.decay = fn
	}
}

// Run executes one attribution pass over every identity linked within the
// lookback window. Identity-level failures are logged and skipped so one
// broken identity cannot stall the rest.
func (e *Engine) Run(ctx context.Context, trigger string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	now := e.now()
	since := now.Add(-e.lookback)

	identityIDs, err := e.sessions.GetRecentIdentityIDs(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recently linked identities: %w", err)
	}

	result := &Result{}
	campaignCache := make(map[string]*models.Campaign)

	for _, identityID := range identityIDs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := e.processIdentity(ctx, identityID, since, now, campaignCache, result); err != nil {
			e.logger.Warn("failed to process identity",
				zap.String("identity_id", identityID),
				zap.Error(err))
		}
	}

	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordAttributionPass(trigger, duration, result.AttributionsCreated, result.PlaysProcessed)
	}

	e.logger.Info("attribution pass complete",
		zap.String("trigger", trigger),
		zap.Int("identities", len(identityIDs)),
		zap.Int("plays_processed", result.PlaysProcessed),
		zap.Int("attributions_created", result.AttributionsCreated),
		zap.Duration("duration", duration))

	return result, nil
}

func (e *Engine) processIdentity(ctx context.Context, identityID string, since, now time.Time, campaigns map[string]*models.Campaign, result *Result) error {
	clicks, err := e.clicks.GetClicksByIdentity(ctx, identityID, since)
	if err != nil {
		return fmt.Errorf("failed to load clicks: %w", err)
	}
	if len(clicks) == 0 {
		return nil
	}

	plays, err := e.plays.GetPlaysByIdentity(ctx, identityID, since)
	if err != nil {
		return fmt.Errorf("failed to load plays: %w", err)
	}

	for _, play := range plays {
		result.PlaysProcessed++

		existing, err := e.attributions.GetAttributionByPlay(ctx, play.ID)
		if err != nil {
			e.logger.Warn("failed to check existing attribution",
				zap.String("play_id", play.ID),
				zap.Error(err))
			continue
		}
		if existing != nil {
			continue
		}

		if err := e.attributePlay(ctx, play, clicks, campaigns, now, result); err != nil {
			e.logger.Warn("failed to attribute play",
				zap.String("play_id", play.ID),
				zap.Error(err))
		}
	}

	return nil
}

type candidate struct {
	click      *models.Click
	confidence float64
	hours      float64
}

func (e *Engine) attributePlay(ctx context.Context, play *models.Play, clicks []*models.Click, campaigns map[string]*models.Campaign, now time.Time, result *Result) error {
	var best *candidate

	for _, click := range clicks {
		// A play can only follow the click that caused it.
		if !play.PlayedAt.After(click.ClickedAt) {
			continue
		}

		campaign, err := e.campaignFor(ctx, click.CampaignID, campaigns)
		if err != nil {
			return err
		}
		if campaign == nil {
			e.logger.Warn("click references unknown campaign",
				zap.String("click_id", click.ID),
				zap.String("campaign_id", click.CampaignID))
			continue
		}

		if campaign.PlaylistID != "" {
			member, err := e.playlists.IsMember(ctx, campaign.PlaylistID, play.TrackID)
			if err != nil {
				// Abandon the play until the next pass; a fallback
				// match here would be permanent.
				return fmt.Errorf("failed to check playlist membership: %w", err)
			}
			if !member {
				continue
			}
		}

		hours := play.PlayedAt.Sub(click.ClickedAt).Hours()
		confidence := e.decay(hours)
		if confidence <= 0 {
			continue
		}

		if best == nil || confidence > best.confidence ||
			(confidence == best.confidence && hours < best.hours) {
			best = &candidate{click: click, confidence: confidence, hours: hours}
		}
	}

	if best == nil {
		return nil
	}

	attr := &models.Attribution{
		ID:            uuid.New().String(),
		PlayID:        play.ID,
		ClickID:       best.click.ID,
		CampaignID:    best.click.CampaignID,
		Confidence:    best.confidence,
		TimeDiffHours: best.hours,
		CreatedAt:     now,
		ExpiresAt:     now.Add(e.retention),
	}

	created, err := e.attributions.SaveAttribution(ctx, attr)
	if err != nil {
		return fmt.Errorf("failed to save attribution: %w", err)
	}
	if created {
		result.AttributionsCreated++
		e.logger.Info("play attributed",
			zap.String("play_id", play.ID),
			zap.String("click_id", best.click.ID),
			zap.String("campaign_id", best.click.CampaignID),
			zap.Float64("confidence", best.confidence),
			zap.Float64("time_diff_hours", best.hours))
	}

	return nil
}

// campaignFor loads a campaign through the per-pass cache. Misses are cached
// too so a dangling campaign reference costs one query per pass.
func (e *Engine) campaignFor(ctx context.Context, id string, cache map[string]*models.Campaign) (*models.Campaign, error) {
	if campaign, ok := cache[id]; ok {
		return campaign, nil
	}

	campaign, err := e.campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign %s: %w", id, err)
	}
	cache[id] = campaign

	return campaign, nil
}
