package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/playlift/playlift/internal/models"
)

// PostgresClickStore implements ClickStore using PostgreSQL.
type PostgresClickStore struct {
	pool *pgxpool.Pool
}

// NewPostgresClickStore creates a new PostgreSQL-backed click store.
func NewPostgresClickStore(pool *pgxpool.Pool) *PostgresClickStore {
	return &PostgresClickStore{pool: pool}
}

func (s *PostgresClickStore) SaveClick(ctx context.Context, click *models.Click) error {
	if click == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO clicks (id, campaign_id, visitor_fingerprint, clicked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, click.ID, click.CampaignID, nullString(click.VisitorFingerprint), click.ClickedAt, click.ExpiresAt)

	if err != nil {
		return fmt.Errorf("failed to save click: %w", err)
	}
	return nil
}

func (s *PostgresClickStore) GetClick(ctx context.Context, id string) (*models.Click, error) {
	var click models.Click
	var fingerprint *string

	err := s.pool.QueryRow(ctx, `
		SELECT id, campaign_id, visitor_fingerprint, clicked_at, expires_at
		FROM clicks WHERE id = $1 AND expires_at > now()
	`, id).Scan(&click.ID, &click.CampaignID, &fingerprint, &click.ClickedAt, &click.ExpiresAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get click: %w", err)
	}

	if fingerprint != nil {
		click.VisitorFingerprint = *fingerprint
	}

	return &click, nil
}

func (s *PostgresClickStore) GetClicksByIdentity(ctx context.Context, identityID string, since time.Time) ([]*models.Click, error) {
	// Sessions are unique per (click_id, identity_id), so the join cannot
	// produce duplicate clicks.
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.campaign_id, c.visitor_fingerprint, c.clicked_at, c.expires_at
		FROM clicks c
		JOIN sessions s ON s.click_id = c.id
		WHERE s.identity_id = $1
		  AND c.clicked_at >= $2
		  AND c.expires_at > now()
		  AND s.expires_at > now()
		ORDER BY c.clicked_at DESC
	`, identityID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get clicks by identity: %w", err)
	}
	defer rows.Close()

	var clicks []*models.Click
	for rows.Next() {
		var click models.Click
		var fingerprint *string

		if err := rows.Scan(&click.ID, &click.CampaignID, &fingerprint, &click.ClickedAt, &click.ExpiresAt); err != nil {
			return nil, err
		}

		if fingerprint != nil {
			click.VisitorFingerprint = *fingerprint
		}

		clicks = append(clicks, &click)
	}

	return clicks, nil
}

// PostgresSessionStore implements SessionStore using PostgreSQL.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore creates a new PostgreSQL-backed session store.
func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

func (s *PostgresSessionStore) SaveSession(ctx context.Context, session *models.Session) (bool, error) {
	if session == nil {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (click_id, identity_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (click_id, identity_id) DO NOTHING
	`, session.ClickID, session.IdentityID, session.CreatedAt, session.ExpiresAt)

	if err != nil {
		return false, fmt.Errorf("failed to save session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresSessionStore) GetSession(ctx context.Context, clickID, identityID string) (*models.Session, error) {
	var session models.Session

	err := s.pool.QueryRow(ctx, `
		SELECT click_id, identity_id, created_at, expires_at
		FROM sessions WHERE click_id = $1 AND identity_id = $2 AND expires_at > now()
	`, clickID, identityID).Scan(&session.ClickID, &session.IdentityID, &session.CreatedAt, &session.ExpiresAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

func (s *PostgresSessionStore) GetRecentIdentityIDs(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT identity_id
		FROM sessions
		WHERE created_at >= $1 AND expires_at > now()
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// PostgresPlayStore implements PlayStore using PostgreSQL.
type PostgresPlayStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPlayStore creates a new PostgreSQL-backed play store.
func NewPostgresPlayStore(pool *pgxpool.Pool) *PostgresPlayStore {
	return &PostgresPlayStore{pool: pool}
}

func (s *PostgresPlayStore) SavePlay(ctx context.Context, play *models.Play) (bool, error) {
	if play == nil {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO plays (id, identity_id, track_id, artist_id, track_name, artist_name, played_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (identity_id, track_id, played_at) DO NOTHING
	`, play.ID, play.IdentityID, play.TrackID, nullString(play.ArtistID),
		nullString(play.TrackName), nullString(play.ArtistName), play.PlayedAt, play.ExpiresAt)

	if err != nil {
		return false, fmt.Errorf("failed to save play: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresPlayStore) GetPlay(ctx context.Context, id string) (*models.Play, error) {
	var play models.Play
	var artistID, trackName, artistName *string

	err := s.pool.QueryRow(ctx, `
		SELECT id, identity_id, track_id, artist_id, track_name, artist_name, played_at, expires_at
		FROM plays WHERE id = $1 AND expires_at > now()
	`, id).Scan(&play.ID, &play.IdentityID, &play.TrackID, &artistID, &trackName, &artistName, &play.PlayedAt, &play.ExpiresAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get play: %w", err)
	}

	fillPlayOptionals(&play, artistID, trackName, artistName)

	return &play, nil
}

func (s *PostgresPlayStore) GetPlaysByIdentity(ctx context.Context, identityID string, since time.Time) ([]*models.Play, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, identity_id, track_id, artist_id, track_name, artist_name, played_at, expires_at
		FROM plays
		WHERE identity_id = $1 AND played_at >= $2 AND expires_at > now()
		ORDER BY played_at DESC
	`, identityID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get plays by identity: %w", err)
	}
	defer rows.Close()

	var plays []*models.Play
	for rows.Next() {
		var play models.Play
		var artistID, trackName, artistName *string

		if err := rows.Scan(&play.ID, &play.IdentityID, &play.TrackID, &artistID, &trackName, &artistName, &play.PlayedAt, &play.ExpiresAt); err != nil {
			return nil, err
		}

		fillPlayOptionals(&play, artistID, trackName, artistName)

		plays = append(plays, &play)
	}

	return plays, nil
}

func fillPlayOptionals(play *models.Play, artistID, trackName, artistName *string) {
	if artistID != nil {
		play.ArtistID = *artistID
	}
	if trackName != nil {
		play.TrackName = *trackName
	}
	if artistName != nil {
		play.ArtistName = *artistName
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
