package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// playlistEmptyMarker keeps known-empty playlists distinguishable from cache
// misses. Provider track IDs are base62, so the marker cannot collide.
const playlistEmptyMarker = "__empty__"

// RedisPlaylistCache implements PlaylistCacheStore using Redis sets, shared
// across service instances. Expiry is delegated to Redis key TTLs.
type RedisPlaylistCache struct {
	client *redis.Client
}

// NewRedisPlaylistCache creates a new Redis-backed playlist cache.
func NewRedisPlaylistCache(client *redis.Client) *RedisPlaylistCache {
	return &RedisPlaylistCache{client: client}
}

func playlistKey(playlistID string) string {
	return fmt.Sprintf("playlist:tracks:%s", playlistID)
}

func (c *RedisPlaylistCache) GetTracks(ctx context.Context, playlistID string) (map[string]struct{}, bool, error) {
	members, err := c.client.SMembers(ctx, playlistKey(playlistID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read playlist cache: %w", err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}

	tracks := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m == playlistEmptyMarker {
			continue
		}
		tracks[m] = struct{}{}
	}
	return tracks, true, nil
}

func (c *RedisPlaylistCache) PutTracks(ctx context.Context, playlistID string, trackIDs []string, ttl time.Duration) error {
	key := playlistKey(playlistID)

	members := make([]interface{}, 0, len(trackIDs)+1)
	for _, id := range trackIDs {
		members = append(members, id)
	}
	if len(members) == 0 {
		members = append(members, playlistEmptyMarker)
	}

	// Del first so tracks removed from the playlist do not linger.
	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write playlist cache: %w", err)
	}
	return nil
}
