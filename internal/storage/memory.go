package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/playlift/playlift/internal/models"
)

// InMemoryEventStore provides in-memory storage for clicks, sessions, plays
// and attributions. The service falls back to it when PostgreSQL is not
// configured; tests use it directly. Expired rows stay in the maps (the
// retention sweep is external) but every read filters them out.
type InMemoryEventStore struct {
	mu           sync.RWMutex
	clicks       map[string]*models.Click
	sessions     map[string]*models.Session
	plays        map[string]*models.Play
	attributions map[string]*models.Attribution

	// Indexes for faster lookups
	clicksByIdentity   map[string][]string // identity_id -> []click_id (via sessions)
	playsByIdentity    map[string][]string // identity_id -> []play_id
	playsByDedupKey    map[string]string   // identity|track|played_at -> play_id
	attributionByPlay  map[string]string   // play_id -> attribution_id
	attributionsByCamp map[string][]string // campaign_id -> []attribution_id
}

// NewInMemoryEventStore creates a new in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		clicks:             make(map[string]*models.Click),
		sessions:           make(map[string]*models.Session),
		plays:              make(map[string]*models.Play),
		attributions:       make(map[string]*models.Attribution),
		clicksByIdentity:   make(map[string][]string),
		playsByIdentity:    make(map[string][]string),
		playsByDedupKey:    make(map[string]string),
		attributionByPlay:  make(map[string]string),
		attributionsByCamp: make(map[string][]string),
	}
}

func sessionKey(clickID, identityID string) string {
	return clickID + "|" + identityID
}

func playDedupKey(identityID, trackID string, playedAt time.Time) string {
	return identityID + "|" + trackID + "|" + playedAt.UTC().Format(time.RFC3339Nano)
}

func live(expiresAt time.Time) bool {
	return expiresAt.After(time.Now())
}

// =============================================
// Clicks
// =============================================

func (s *InMemoryEventStore) SaveClick(ctx context.Context, click *models.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clicks[click.ID]; ok {
		return nil
	}
	s.clicks[click.ID] = click

	return nil
}

func (s *InMemoryEventStore) GetClick(ctx context.Context, id string) (*models.Click, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	click, ok := s.clicks[id]
	if !ok || !live(click.ExpiresAt) {
		return nil, nil
	}
	return click, nil
}

func (s *InMemoryEventStore) GetClicksByIdentity(ctx context.Context, identityID string, since time.Time) ([]*models.Click, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clickIDs, ok := s.clicksByIdentity[identityID]
	if !ok {
		return nil, nil
	}

	result := make([]*models.Click, 0)
	for _, id := range clickIDs {
		session := s.sessions[sessionKey(id, identityID)]
		if session == nil || !live(session.ExpiresAt) {
			continue
		}

		click := s.clicks[id]
		if click != nil && live(click.ExpiresAt) && !click.ClickedAt.Before(since) {
			result = append(result, click)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ClickedAt.After(result[j].ClickedAt)
	})

	return result, nil
}

// =============================================
// Sessions
// =============================================

func (s *InMemoryEventStore) SaveSession(ctx context.Context, session *models.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(session.ClickID, session.IdentityID)
	if _, ok := s.sessions[key]; ok {
		return false, nil
	}

	s.sessions[key] = session
	s.clicksByIdentity[session.IdentityID] = append(s.clicksByIdentity[session.IdentityID], session.ClickID)

	return true, nil
}

func (s *InMemoryEventStore) GetSession(ctx context.Context, clickID, identityID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionKey(clickID, identityID)]
	if !ok || !live(session.ExpiresAt) {
		return nil, nil
	}
	return session, nil
}

func (s *InMemoryEventStore) GetRecentIdentityIDs(ctx context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, session := range s.sessions {
		if session.CreatedAt.Before(since) || !live(session.ExpiresAt) {
			continue
		}
		if _, ok := seen[session.IdentityID]; ok {
			continue
		}
		seen[session.IdentityID] = struct{}{}
		ids = append(ids, session.IdentityID)
	}

	sort.Strings(ids)
	return ids, nil
}

// =============================================
// Plays
// =============================================

func (s *InMemoryEventStore) SavePlay(ctx context.Context, play *models.Play) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := playDedupKey(play.IdentityID, play.TrackID, play.PlayedAt)
	if _, ok := s.playsByDedupKey[key]; ok {
		return false, nil
	}

	s.plays[play.ID] = play
	s.playsByDedupKey[key] = play.ID
	s.playsByIdentity[play.IdentityID] = append(s.playsByIdentity[play.IdentityID], play.ID)

	return true, nil
}

func (s *InMemoryEventStore) GetPlay(ctx context.Context, id string) (*models.Play, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	play, ok := s.plays[id]
	if !ok || !live(play.ExpiresAt) {
		return nil, nil
	}
	return play, nil
}

func (s *InMemoryEventStore) GetPlaysByIdentity(ctx context.Context, identityID string, since time.Time) ([]*models.Play, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	playIDs, ok := s.playsByIdentity[identityID]
	if !ok {
		return nil, nil
	}

	result := make([]*models.Play, 0)
	for _, id := range playIDs {
		play := s.plays[id]
		if play != nil && live(play.ExpiresAt) && !play.PlayedAt.Before(since) {
			result = append(result, play)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PlayedAt.After(result[j].PlayedAt)
	})

	return result, nil
}

// =============================================
// Attributions
// =============================================

func (s *InMemoryEventStore) SaveAttribution(ctx context.Context, attr *models.Attribution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The play keeps its first attribution even past expiry; only the
	// retention sweep frees the slot, same as the unique index in Postgres.
	if _, ok := s.attributionByPlay[attr.PlayID]; ok {
		return false, nil
	}

	s.attributions[attr.ID] = attr
	s.attributionByPlay[attr.PlayID] = attr.ID
	s.attributionsByCamp[attr.CampaignID] = append(s.attributionsByCamp[attr.CampaignID], attr.ID)

	return true, nil
}

func (s *InMemoryEventStore) GetAttributionByPlay(ctx context.Context, playID string) (*models.Attribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.attributionByPlay[playID]
	if !ok {
		return nil, nil
	}

	attr := s.attributions[id]
	if attr == nil || !live(attr.ExpiresAt) {
		return nil, nil
	}
	return attr, nil
}

func (s *InMemoryEventStore) GetAttributionsByCampaign(ctx context.Context, campaignID string) ([]*models.Attribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attrIDs, ok := s.attributionsByCamp[campaignID]
	if !ok {
		return nil, nil
	}

	result := make([]*models.Attribution, 0, len(attrIDs))
	for _, id := range attrIDs {
		if attr, ok := s.attributions[id]; ok && live(attr.ExpiresAt) {
			result = append(result, attr)
		}
	}

	sortAttributions(result)
	return result, nil
}

func (s *InMemoryEventStore) GetAttributionsByClick(ctx context.Context, clickID string) ([]*models.Attribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Attribution, 0)
	for _, attr := range s.attributions {
		if attr.ClickID == clickID && live(attr.ExpiresAt) {
			result = append(result, attr)
		}
	}

	sortAttributions(result)
	return result, nil
}

func sortAttributions(attrs []*models.Attribution) {
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].CreatedAt.Equal(attrs[j].CreatedAt) {
			return attrs[i].ID < attrs[j].ID
		}
		return attrs[i].CreatedAt.After(attrs[j].CreatedAt)
	})
}

// =============================================
// Aggregations
// =============================================

func (s *InMemoryEventStore) GetCampaignStats(ctx context.Context, campaignID string) (*models.CampaignStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.CampaignStats{CampaignID: campaignID}
	listeners := make(map[string]struct{})

	for _, id := range s.attributionsByCamp[campaignID] {
		attr, ok := s.attributions[id]
		if !ok || !live(attr.ExpiresAt) {
			continue
		}
		play := s.plays[attr.PlayID]
		if play == nil || !live(play.ExpiresAt) {
			continue
		}

		stats.TotalAttributions++
		listeners[play.IdentityID] = struct{}{}

		switch {
		case attr.Confidence > 0.8:
			stats.Confidence.High++
		case attr.Confidence > 0.45:
			stats.Confidence.Medium++
		default:
			stats.Confidence.Low++
		}
	}

	stats.UniqueListeners = int64(len(listeners))
	return stats, nil
}

// =============================================
// InMemoryIdentityStore
// =============================================

// InMemoryIdentityStore provides in-memory storage for identities.
type InMemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]*models.Identity
}

// NewInMemoryIdentityStore creates a new in-memory identity store.
func NewInMemoryIdentityStore() *InMemoryIdentityStore {
	return &InMemoryIdentityStore{
		identities: make(map[string]*models.Identity),
	}
}

func (s *InMemoryIdentityStore) SaveIdentity(ctx context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.identities[identity.ID]; ok {
		// Keep poll bookkeeping across credential refreshes.
		existing.DisplayName = identity.DisplayName
		existing.RefreshTokenEnc = identity.RefreshTokenEnc
		return nil
	}

	s.identities[identity.ID] = identity
	return nil
}

func (s *InMemoryIdentityStore) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, nil
	}
	return identity, nil
}

func (s *InMemoryIdentityStore) ListPollable(ctx context.Context) ([]*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Identity, 0)
	for _, identity := range s.identities {
		if identity.Pollable() {
			result = append(result, identity)
		}
	}

	// Never-polled identities first, then least recently polled.
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		switch {
		case a.LastPolledAt == nil && b.LastPolledAt == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.LastPolledAt == nil:
			return true
		case b.LastPolledAt == nil:
			return false
		case !a.LastPolledAt.Equal(*b.LastPolledAt):
			return a.LastPolledAt.Before(*b.LastPolledAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})

	return result, nil
}

func (s *InMemoryIdentityStore) MarkPolled(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity, ok := s.identities[id]; ok {
		polled := at
		identity.LastPolledAt = &polled
	}
	return nil
}

// =============================================
// InMemoryCampaignStore
// =============================================

// InMemoryCampaignStore provides in-memory storage for campaigns.
type InMemoryCampaignStore struct {
	mu        sync.RWMutex
	campaigns map[string]*models.Campaign
}

// NewInMemoryCampaignStore creates a new in-memory campaign store.
func NewInMemoryCampaignStore() *InMemoryCampaignStore {
	return &InMemoryCampaignStore{
		campaigns: make(map[string]*models.Campaign),
	}
}

func (s *InMemoryCampaignStore) SaveCampaign(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.campaigns[campaign.ID] = campaign
	return nil
}

func (s *InMemoryCampaignStore) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaign, ok := s.campaigns[id]
	if !ok {
		return nil, nil
	}
	return campaign, nil
}

// =============================================
// InMemoryPlaylistCache
// =============================================

type playlistEntry struct {
	tracks    map[string]struct{}
	expiresAt time.Time
}

// InMemoryPlaylistCache provides in-memory playlist track caching with TTL.
type InMemoryPlaylistCache struct {
	mu      sync.RWMutex
	entries map[string]playlistEntry
}

// NewInMemoryPlaylistCache creates a new in-memory playlist cache.
func NewInMemoryPlaylistCache() *InMemoryPlaylistCache {
	return &InMemoryPlaylistCache{
		entries: make(map[string]playlistEntry),
	}
}

func (c *InMemoryPlaylistCache) GetTracks(ctx context.Context, playlistID string) (map[string]struct{}, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[playlistID]
	if !ok || !entry.expiresAt.After(time.Now()) {
		return nil, false, nil
	}

	tracks := make(map[string]struct{}, len(entry.tracks))
	for id := range entry.tracks {
		tracks[id] = struct{}{}
	}
	return tracks, true, nil
}

func (c *InMemoryPlaylistCache) PutTracks(ctx context.Context, playlistID string, trackIDs []string, ttl time.Duration) error {
	tracks := make(map[string]struct{}, len(trackIDs))
	for _, id := range trackIDs {
		tracks[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[playlistID] = playlistEntry{
		tracks:    tracks,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
