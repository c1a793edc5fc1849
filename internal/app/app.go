package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bobmcallan/dsefeed/internal/cache"
	"github.com/bobmcallan/dsefeed/internal/clients/dse"
	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/interfaces"
	"github.com/bobmcallan/dsefeed/internal/services/market"
	"github.com/bobmcallan/dsefeed/internal/services/refresh"
)

// warmCacheTimeout bounds the startup prefetch of every view.
const warmCacheTimeout = 5 * time.Minute

// App holds the initialized client, cache, coordinators and query service.
// It is the shared core behind cmd/dsefeed-server.
type App struct {
	Config        *common.Config
	Logger        *common.Logger
	Fetcher       interfaces.PageFetcher
	Store         *cache.Store
	Views         market.Coordinators
	MarketService interfaces.MarketService
	StartupTime   time.Time

	schedulerCancel context.CancelFunc
	warmCacheCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPath picks the config file: explicit path, DSEFEED_CONFIG,
// the binary directory, then config/dsefeed.toml for development.
func resolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("DSEFEED_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "dsefeed.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/dsefeed.toml"
		}
	}
	return configPath
}

// NewApp loads configuration and wires the exchange client, cache and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	client := dse.NewClient(
		dse.WithBaseURL(config.Upstream.BaseURL),
		dse.WithLogger(logger),
		dse.WithRateLimit(config.Upstream.RateLimit),
		dse.WithTimeout(config.Upstream.GetFetchTimeout()),
		dse.WithMaxRetries(config.Upstream.FetchMaxRetries),
		dse.WithMaxBodyBytes(config.Upstream.GetMaxBodyBytes()),
	)

	return newApp(config, logger, client), nil
}

// newApp builds the cache, coordinators and query service around fetcher.
func newApp(config *common.Config, logger *common.Logger, fetcher interfaces.PageFetcher) *App {
	startupStart := time.Now()

	loaders := market.NewLoaders(fetcher, config.Cache.HistoryDays, logger)
	loaders.SetChunkDays(config.Upstream.ChunkDays)

	store := cache.NewStore(cache.TTLs{
		Latest:     config.Cache.GetTTLLatest(),
		Dsex:       config.Cache.GetTTLDsex(),
		Top30:      config.Cache.GetTTLTop30(),
		Historical: config.Cache.GetTTLHistorical(),
	})

	requestTimeout := config.Refresh.GetRequestTimeout()
	// the historical window is fetched in several chunked requests
	historicalTimeout := config.Refresh.GetHistoricalTimeout()
	opts := []refresh.Option{
		refresh.WithLogger(logger),
		refresh.WithRequestTimeout(requestTimeout),
		refresh.WithRefreshTimeout(config.Refresh.GetRefreshTimeout()),
	}

	views := market.Coordinators{
		Latest:     refresh.NewCoordinator(store.Latest, loaders.Latest, opts...),
		Dsex:       refresh.NewCoordinator(store.Dsex, loaders.Dsex, opts...),
		Top30:      refresh.NewCoordinator(store.Top30, loaders.Top30, opts...),
		Historical: refresh.NewCoordinator(store.Historical, loaders.History,
			append(slices.Clone(opts), refresh.WithRefreshTimeout(historicalTimeout))...),
	}

	marketService := market.NewService(views, loaders.Archive, config.Cache.HistoryDays, logger)
	marketService.SetRequestTimeout(requestTimeout)
	marketService.SetArchiveTimeout(historicalTimeout)

	logger.Info().
		Int("history_days", config.Cache.HistoryDays).
		Dur("request_timeout", requestTimeout).
		Dur("historical_timeout", historicalTimeout).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return &App{
		Config:        config,
		Logger:        logger,
		Fetcher:       fetcher,
		Store:         store,
		Views:         views,
		MarketService: marketService,
		StartupTime:   startupStart,
	}
}

// Close stops background work. In-flight refreshes finish on their own budget.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.warmCacheCancel != nil {
		a.warmCacheCancel()
		a.warmCacheCancel = nil
	}
}

// StartWarmCache launches the background cache warming goroutine.
func (a *App) StartWarmCache() {
	warmCtx, warmCancel := context.WithTimeout(context.Background(), warmCacheTimeout)
	a.warmCacheCancel = warmCancel
	go func() {
		defer warmCancel()
		warmCache(warmCtx, a.Views.Refreshers(), a.Logger)
	}()
}

// StartScheduler launches the background refresh goroutine. Snapshot views
// refresh on Refresh.Interval during trading hours; the historical window on
// Refresh.HistoricalInterval.
func (a *App) StartScheduler() {
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	a.schedulerCancel = schedulerCancel

	s := &scheduler{
		snapshots:          []interfaces.Refresher{a.Views.Latest, a.Views.Dsex, a.Views.Top30},
		historical:         a.Views.Historical,
		interval:           a.Config.Refresh.GetInterval(),
		historicalInterval: a.Config.Refresh.GetHistoricalInterval(),
		isOpen:             common.IsTradingHours,
		now:                time.Now,
		logger:             a.Logger,
	}
	go s.run(schedulerCtx)
}
