package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	assert.Equal(t, 48*time.Hour, cfg.Attribution.LookbackWindow)
	assert.Equal(t, 5*time.Minute, cfg.Attribution.PollInterval)
	assert.Equal(t, time.Hour, cfg.Attribution.PlaylistCacheTTL)
	assert.Equal(t, 90*24*time.Hour, cfg.Attribution.RetentionTTL)

	assert.Equal(t, 50, cfg.Provider.RecentPlaysLimit)
	assert.Equal(t, 100, cfg.Provider.PlaylistPageSize)
	assert.Equal(t, 1000, cfg.Provider.PlaylistTrackCap)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PLAYLIFT_HTTP_ADDR", ":9999")
	t.Setenv("PLAYLIFT_LOOKBACK_WINDOW", "24h")
	t.Setenv("PLAYLIFT_RECENT_PLAYS_LIMIT", "20")
	t.Setenv("PLAYLIFT_AUTH_SKIP_PATHS", "/health, /metrics ,/debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Attribution.LookbackWindow)
	assert.Equal(t, 20, cfg.Provider.RecentPlaysLimit)
	assert.Equal(t, []string{"/health", "/metrics", "/debug"}, cfg.Auth.SkipPaths)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "recent plays limit over provider cap",
			mutate:  func(c *Config) { c.Provider.RecentPlaysLimit = 51 },
			wantErr: "PLAYLIFT_RECENT_PLAYS_LIMIT",
		},
		{
			name:    "playlist page size over provider cap",
			mutate:  func(c *Config) { c.Provider.PlaylistPageSize = 200 },
			wantErr: "PLAYLIFT_PLAYLIST_PAGE_SIZE",
		},
		{
			name:    "retention shorter than lookback",
			mutate:  func(c *Config) { c.Attribution.RetentionTTL = time.Hour },
			wantErr: "PLAYLIFT_RETENTION_TTL",
		},
		{
			name:    "client id without secret",
			mutate:  func(c *Config) { c.Provider.ClientID = "abc" },
			wantErr: "PLAYLIFT_SPOTIFY_CLIENT_ID",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Attribution.PollInterval = 0 },
			wantErr: "PLAYLIFT_POLL_INTERVAL",
		},
		{
			name: "rate limit enabled with zero burst",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.LinkBurst = 0
			},
			wantErr: "PLAYLIFT_RATE_LIMIT_LINK",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
