package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Playlift attribution service.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Provider    ProviderConfig
	Attribution AttributionConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig guards the mutating endpoints (session linking, manual
// attribution runs). An empty APIKey disables the check entirely.
type AuthConfig struct {
	APIKey    string
	SkipPaths []string
}

// RateLimitConfig throttles the ops listener. Session linking rides the login
// callback path and gets its own bucket; everything else shares the
// management bucket.
type RateLimitConfig struct {
	Enabled   bool
	LinkRPS   float64
	LinkBurst int
	MgmtRPS   float64
	MgmtBurst int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// ProviderConfig configures the streaming-provider API client and the
// encryption of stored refresh tokens.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	// CredentialSecret derives the AES key protecting refresh tokens at rest.
	CredentialSecret string
	// AuthURL, TokenURL and APIBaseURL override the provider endpoints,
	// mainly for tests.
	AuthURL    string
	TokenURL   string
	APIBaseURL string
	Timeout    time.Duration
	// RecentPlaysLimit is the page size for recently-played fetches; the
	// provider caps it at 50.
	RecentPlaysLimit int
	// PlaylistPageSize is the page size for playlist-track fetches (provider
	// cap 100). PlaylistTrackCap bounds how many tracks are held per playlist.
	PlaylistPageSize int
	PlaylistTrackCap int
}

// AttributionConfig holds the tunables of the matching pipeline.
type AttributionConfig struct {
	// LookbackWindow bounds how far behind a play a click may sit and still
	// receive credit; it also scopes which sessions a pass considers.
	LookbackWindow time.Duration
	// PollInterval is the scheduler tick.
	PollInterval time.Duration
	// IdentityDelay is the pause between consecutive per-identity provider
	// polls within one cycle.
	IdentityDelay time.Duration
	// PlaylistCacheTTL bounds how long cached playlist memberships are trusted.
	PlaylistCacheTTL time.Duration
	// RetentionTTL is stamped into expires_at on every row this service
	// writes; the out-of-band retention sweep deletes rows past it.
	RetentionTTL time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	// Ignore error if .env not found (e.g. prod)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("PLAYLIFT_HTTP_ADDR", ":8080"),
			Env:             getEnv("PLAYLIFT_ENV", "development"),
			ShutdownTimeout: getDurationEnv("PLAYLIFT_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PLAYLIFT_DB_HOST", "localhost"),
			Port:     getIntEnv("PLAYLIFT_DB_PORT", 5432),
			User:     getEnv("PLAYLIFT_DB_USER", "playlift"),
			Password: getEnv("PLAYLIFT_DB_PASSWORD", "playlift_secret"),
			DBName:   getEnv("PLAYLIFT_DB_NAME", "playlift"),
			SSLMode:  getEnv("PLAYLIFT_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("PLAYLIFT_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("PLAYLIFT_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("PLAYLIFT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("PLAYLIFT_REDIS_PASSWORD", ""),
			DB:       getIntEnv("PLAYLIFT_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			APIKey:    getEnv("PLAYLIFT_API_KEY", ""),
			SkipPaths: getSliceEnv("PLAYLIFT_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getBoolEnv("PLAYLIFT_RATE_LIMIT_ENABLED", false),
			LinkRPS:   getFloatEnv("PLAYLIFT_RATE_LIMIT_LINK_RPS", 50),
			LinkBurst: getIntEnv("PLAYLIFT_RATE_LIMIT_LINK_BURST", 100),
			MgmtRPS:   getFloatEnv("PLAYLIFT_RATE_LIMIT_MGMT_RPS", 10),
			MgmtBurst: getIntEnv("PLAYLIFT_RATE_LIMIT_MGMT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("PLAYLIFT_LOG_LEVEL", "info"),
			Format: getEnv("PLAYLIFT_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("PLAYLIFT_METRICS_ENABLED", true),
			Path:    getEnv("PLAYLIFT_METRICS_PATH", "/metrics"),
		},
		Provider: ProviderConfig{
			ClientID:         getEnv("PLAYLIFT_SPOTIFY_CLIENT_ID", ""),
			ClientSecret:     getEnv("PLAYLIFT_SPOTIFY_CLIENT_SECRET", ""),
			CredentialSecret: getEnv("PLAYLIFT_CREDENTIAL_SECRET", ""),
			AuthURL:          getEnv("PLAYLIFT_SPOTIFY_AUTH_URL", ""),
			TokenURL:         getEnv("PLAYLIFT_SPOTIFY_TOKEN_URL", ""),
			APIBaseURL:       getEnv("PLAYLIFT_SPOTIFY_API_URL", ""),
			Timeout:          getDurationEnv("PLAYLIFT_SPOTIFY_TIMEOUT", 10*time.Second),
			RecentPlaysLimit: getIntEnv("PLAYLIFT_RECENT_PLAYS_LIMIT", 50),
			PlaylistPageSize: getIntEnv("PLAYLIFT_PLAYLIST_PAGE_SIZE", 100),
			PlaylistTrackCap: getIntEnv("PLAYLIFT_PLAYLIST_TRACK_CAP", 1000),
		},
		Attribution: AttributionConfig{
			LookbackWindow:   getDurationEnv("PLAYLIFT_LOOKBACK_WINDOW", 48*time.Hour),
			PollInterval:     getDurationEnv("PLAYLIFT_POLL_INTERVAL", 5*time.Minute),
			IdentityDelay:    getDurationEnv("PLAYLIFT_IDENTITY_DELAY", 2*time.Second),
			PlaylistCacheTTL: getDurationEnv("PLAYLIFT_PLAYLIST_CACHE_TTL", time.Hour),
			RetentionTTL:     getDurationEnv("PLAYLIFT_RETENTION_TTL", 90*24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable together.
func (c *Config) Validate() error {
	if c.Attribution.LookbackWindow <= 0 {
		return fmt.Errorf("PLAYLIFT_LOOKBACK_WINDOW must be positive")
	}
	if c.Attribution.PollInterval <= 0 {
		return fmt.Errorf("PLAYLIFT_POLL_INTERVAL must be positive")
	}
	if c.Attribution.RetentionTTL < c.Attribution.LookbackWindow {
		return fmt.Errorf("PLAYLIFT_RETENTION_TTL must cover the lookback window")
	}
	if c.Provider.RecentPlaysLimit <= 0 || c.Provider.RecentPlaysLimit > 50 {
		return fmt.Errorf("PLAYLIFT_RECENT_PLAYS_LIMIT must be in 1..50")
	}
	if c.Provider.PlaylistPageSize <= 0 || c.Provider.PlaylistPageSize > 100 {
		return fmt.Errorf("PLAYLIFT_PLAYLIST_PAGE_SIZE must be in 1..100")
	}
	if c.Provider.PlaylistTrackCap <= 0 {
		return fmt.Errorf("PLAYLIFT_PLAYLIST_TRACK_CAP must be positive")
	}
	if (c.Provider.ClientID == "") != (c.Provider.ClientSecret == "") {
		return fmt.Errorf("PLAYLIFT_SPOTIFY_CLIENT_ID and PLAYLIFT_SPOTIFY_CLIENT_SECRET must be set together")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.LinkRPS <= 0 || c.RateLimit.LinkBurst <= 0 {
			return fmt.Errorf("PLAYLIFT_RATE_LIMIT_LINK_RPS and PLAYLIFT_RATE_LIMIT_LINK_BURST must be positive")
		}
		if c.RateLimit.MgmtRPS <= 0 || c.RateLimit.MgmtBurst <= 0 {
			return fmt.Errorf("PLAYLIFT_RATE_LIMIT_MGMT_RPS and PLAYLIFT_RATE_LIMIT_MGMT_BURST must be positive")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
