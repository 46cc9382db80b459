package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/playlift/playlift/internal/attribution"
	"github.com/playlift/playlift/internal/config"
	"github.com/playlift/playlift/internal/database"
	"github.com/playlift/playlift/internal/httpserver"
	"github.com/playlift/playlift/internal/metrics"
	"github.com/playlift/playlift/internal/middleware"
	"github.com/playlift/playlift/internal/playlist"
	"github.com/playlift/playlift/internal/spotify"
	"github.com/playlift/playlift/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting Playlift",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics("playlift")

	// Try to connect to PostgreSQL
	db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
		logger.Info("connected to PostgreSQL")
	}

	// Try to connect to Redis
	rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis not available, using in-memory playlist cache", zap.Error(err))
		rdb = nil
	} else {
		defer rdb.Close()
		logger.Info("connected to Redis")
	}

	// Storage. The scheduler and the HTTP surface must share these instances,
	// so they are wired here rather than inside the server.
	var (
		clicks       storage.ClickStore
		sessions     storage.SessionStore
		plays        storage.PlayStore
		attributions storage.AttributionStore
		identities   storage.IdentityStore
		campaigns    storage.CampaignStore
	)
	if db != nil {
		clicks = storage.NewPostgresClickStore(db.Pool)
		sessions = storage.NewPostgresSessionStore(db.Pool)
		plays = storage.NewPostgresPlayStore(db.Pool)
		attributions = storage.NewPostgresAttributionStore(db.Pool)
		identities = storage.NewPostgresIdentityStore(db.Pool)
		campaigns = storage.NewPostgresCampaignStore(db.Pool)
	} else {
		events := storage.NewInMemoryEventStore()
		clicks = events
		sessions = events
		plays = events
		attributions = events
		identities = storage.NewInMemoryIdentityStore()
		campaigns = storage.NewInMemoryCampaignStore()
	}

	var cacheStore storage.PlaylistCacheStore
	if rdb != nil {
		cacheStore = storage.NewRedisPlaylistCache(rdb.Client)
	} else {
		cacheStore = storage.NewInMemoryPlaylistCache()
	}

	// Provider integration
	var cipher *spotify.TokenCipher
	if cfg.Provider.CredentialSecret != "" {
		cipher, err = spotify.NewTokenCipher(cfg.Provider.CredentialSecret)
		if err != nil {
			logger.Fatal("failed to initialize credential cipher", zap.Error(err))
		}
	} else {
		logger.Warn("PLAYLIFT_CREDENTIAL_SECRET not set, provider polling disabled")
	}

	auth := spotify.NewAuthenticator(cfg.Provider, logger, m)
	client := spotify.NewClient(cfg.Provider, logger, m)
	pool := spotify.NewTokenPool(identities, cipher, auth, logger)
	memberships := playlist.NewMembershipCache(cacheStore, client, pool, cfg.Attribution.PlaylistCacheTTL, logger, m)

	// Attribution services
	linker := attribution.NewLinker(sessions, cfg.Attribution.RetentionTTL, logger, m)
	engine := attribution.NewEngine(attribution.EngineDeps{
		Sessions:     sessions,
		Clicks:       clicks,
		Plays:        plays,
		Attributions: attributions,
		Campaigns:    campaigns,
		Playlists:    memberships,
	}, cfg.Attribution.LookbackWindow, cfg.Attribution.RetentionTTL, logger, m)
	stats := attribution.NewStatsService(attributions, logger)

	var ingestor *attribution.Ingestor
	if cipher != nil {
		ingestor = attribution.NewIngestor(plays, identities, cipher, auth, client, cfg.Attribution.RetentionTTL, logger, m)
	}

	scheduler := attribution.NewScheduler(identities, ingestor, engine, cfg.Attribution.PollInterval, cfg.Attribution.IdentityDelay, logger)
	stopScheduler := scheduler.Start(ctx)

	// HTTP server
	deps := &httpserver.Dependencies{
		DB:        db,
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Linker:    linker,
		Engine:    engine,
		Stats:     stats,
		Scheduler: scheduler,
	}

	handler := httpserver.NewServer(deps)

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit -> Auth -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimitMW.SetMetrics(m)
	authMW := middleware.NewAuthMiddleware(cfg.Auth, logger)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(
				authMW.Handler(handler),
			),
		),
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	stopScheduler()
	logger.Info("server stopped")
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.IsDevelopment() || cfg.Log.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	return logger
}
