package attribution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/playlift/playlift/internal/metrics"
	"github.com/playlift/playlift/internal/models"
	"github.com/playlift/playlift/internal/storage"
)

// Linker records which listener identity a tracked click belongs to. It is
// invoked when a visitor completes the provider login that a campaign link
// redirected them into.
type Linker struct {
	sessions  storage.SessionStore
	logger    *zap.Logger
	metrics   *metrics.Metrics
	retention time.Duration
	now       func() time.Time
}

// NewLinker creates a session linker. Sessions it creates expire after the
// given retention period.
func NewLinker(sessions storage.SessionStore, retention time.Duration, logger *zap.Logger, m *metrics.Metrics) *Linker {
	return &Linker{
		sessions:  sessions,
		logger:    logger,
		metrics:   m,
		retention: retention,
		now:       time.Now,
	}
}

// Link associates a click with an identity. Linking the same pair again
// returns the stored session unchanged. There is no temporal constraint:
// a login hours after the click still links.
func (l *Linker) Link(ctx context.Context, clickID, identityID string) (*models.Session, error) {
	if clickID == "" {
		return nil, fmt.Errorf("click ID is required")
	}
	if identityID == "" {
		return nil, fmt.Errorf("identity ID is required")
	}

	now := l.now()
	session := &models.Session{
		ClickID:    clickID,
		IdentityID: identityID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(l.retention),
	}

	created, err := l.sessions.SaveSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	if !created {
		existing, err := l.sessions.GetSession(ctx, clickID, identityID)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing session: %w", err)
		}
		if existing != nil {
			session = existing
		}
	}

	if l.metrics != nil {
		l.metrics.RecordSessionLink(created)
	}

	l.logger.Info("session linked",
		zap.String("click_id", clickID),
		zap.String("identity_id", identityID),
		zap.Bool("created", created))

	return session, nil
}
