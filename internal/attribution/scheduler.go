package attribution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/playlift/playlift/internal/models"
	"github.com/playlift/playlift/internal/storage"
)

// Scheduler drives the pipeline: on every tick it polls each pollable
// identity for recent plays, then runs one attribution pass. Out-of-band
// passes can be requested with TriggerPass.
type Scheduler struct {
	identities storage.IdentityStore
	ingestor   *Ingestor
	engine     *Engine
	logger     *zap.Logger

	interval      time.Duration
	identityDelay time.Duration

	trigger chan string
}

// NewScheduler creates a scheduler polling at the given interval, pausing
// identityDelay between provider polls. A nil ingestor disables provider
// polling; attribution passes still run over whatever is already stored.
func NewScheduler(identities storage.IdentityStore, ingestor *Ingestor, engine *Engine, interval, identityDelay time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Scheduler{
		identities:    identities,
		ingestor:      ingestor,
		engine:        engine,
		logger:        logger,
		interval:      interval,
		identityDelay: identityDelay,
		trigger:       make(chan string, 1),
	}
}

// Start launches the scheduler loop in a background goroutine and returns a
// stop function that cancels the loop and waits for it to exit.
func (s *Scheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runCycle(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runCycle(ctx)
			case trigger := <-s.trigger:
				s.runPass(ctx, trigger)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// TriggerPass requests an out-of-band attribution pass. Requests made while
// one is already pending coalesce into it.
func (s *Scheduler) TriggerPass(trigger string) {
	select {
	case s.trigger <- trigger:
	default:
	}
}

// runCycle polls every pollable identity, then runs an attribution pass over
// whatever landed. A failing identity is logged and skipped.
func (s *Scheduler) runCycle(ctx context.Context) {
	if s.ingestor != nil {
		identities, err := s.identities.ListPollable(ctx)
		if err != nil {
			s.logger.Error("failed to list pollable identities", zap.Error(err))
		} else {
			s.pollIdentities(ctx, identities)
		}
	}

	if ctx.Err() != nil {
		return
	}
	s.runPass(ctx, TriggerScheduled)
}

func (s *Scheduler) pollIdentities(ctx context.Context, identities []*models.Identity) {
	for n, identity := range identities {
		if n > 0 && s.identityDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.identityDelay):
			}
		}
		if ctx.Err() != nil {
			return
		}

		if _, err := s.ingestor.IngestIdentity(ctx, identity); err != nil {
			s.logger.Warn("play ingestion failed",
				zap.String("identity_id", identity.ID),
				zap.Error(err))
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context, trigger string) {
	if _, err := s.engine.Run(ctx, trigger); err != nil {
		s.logger.Error("attribution pass failed",
			zap.String("trigger", trigger),
			zap.Error(err))
	}
}
