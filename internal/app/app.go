// Package app wires configuration, storage, clients, and services into a
// runnable core shared by the binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/simokitafresh/database-sub001/internal/clients/eodhd"
	"github.com/simokitafresh/database-sub001/internal/common"
	"github.com/simokitafresh/database-sub001/internal/interfaces"
	"github.com/simokitafresh/database-sub001/internal/services/sync"
	"github.com/simokitafresh/database-sub001/internal/storage/postgres"
)

// App holds all initialized services, clients, and storage.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	FeedClient  interfaces.PriceFeedClient
	SyncService interfaces.SyncService
	StartupTime time.Time
}

// NewApp initializes storage, the provider client, and the sync engine.
// configPath may be empty, in which case PRICESYNC_CONFIG and the default
// path are tried in order.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	if configPath == "" {
		configPath = os.Getenv("PRICESYNC_CONFIG")
	}
	if configPath == "" {
		configPath = "config/pricesync.toml"
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level, config.Logging.Format)

	if config.Database.DSN == "" {
		return nil, fmt.Errorf("database DSN is not configured (set PRICESYNC_DATABASE_DSN or database.dsn)")
	}

	store, err := postgres.NewStore(ctx, config.Database.DSN, config.Database.MaxConns, config.Database.GetLockTimeout(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	if config.Clients.EODHD.APIKey == "" {
		logger.Warn().Msg("EODHD API key not configured - fetches will fail until one is set")
	}

	eodhdCfg := config.Clients.EODHD
	feed := eodhd.NewClient(eodhdCfg.APIKey,
		eodhd.WithBaseURL(eodhdCfg.BaseURL),
		eodhd.WithLogger(logger),
		eodhd.WithRateLimit(eodhdCfg.RateLimit),
		eodhd.WithConcurrency(eodhdCfg.Concurrency),
		eodhd.WithTimeout(eodhdCfg.GetTimeout()),
		eodhd.WithRetryPolicy(eodhd.RetryPolicy{
			MaxAttempts: eodhdCfg.MaxAttempts,
			BaseDelay:   eodhdCfg.GetBaseDelay(),
			MaxDelay:    eodhdCfg.GetMaxDelay(),
		}),
	)

	syncService := sync.NewService(store, feed, logger, sync.Config{
		Freshness:         config.Sync.GetFreshness(),
		RefetchWindowDays: config.Sync.RefetchWindowDays,
		MaxConcurrency:    config.Sync.MaxConcurrency,
		RequestTimeout:    config.Sync.GetRequestTimeout(),
	})

	logger.Info().
		Str("environment", config.Environment).
		Int("refetch_window_days", config.Sync.RefetchWindowDays).
		Msg("Application initialized")

	return &App{
		Config:      config,
		Logger:      logger,
		Storage:     store,
		FeedClient:  feed,
		SyncService: syncService,
		StartupTime: time.Now(),
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Storage != nil {
		a.Storage.Close()
	}
}
