// Package app assembles the data providers, cache and backtester described
// by a config.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/newthinker/crossbt/internal/backtest"
	"github.com/newthinker/crossbt/internal/collector"
	"github.com/newthinker/crossbt/internal/collector/cached"
	"github.com/newthinker/crossbt/internal/collector/csvfile"
	"github.com/newthinker/crossbt/internal/collector/eastmoney"
	"github.com/newthinker/crossbt/internal/collector/parquetstore"
	"github.com/newthinker/crossbt/internal/collector/yahoo"
	"github.com/newthinker/crossbt/internal/config"
	"github.com/newthinker/crossbt/internal/metrics"
	"github.com/newthinker/crossbt/internal/storage/archive"
)

// App is the main application orchestrator
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	collectors *collector.Registry
	metrics    *metrics.Registry
	provider   collector.Collector
	backtester *backtest.Backtester
}

// Option configures an App
type Option func(*App)

// WithCollector registers an extra provider, replacing a built-in one of
// the same name.
func WithCollector(c collector.Collector) Option {
	return func(a *App) {
		a.collectors.Register(c)
	}
}

// New builds the application from cfg. The configured provider is wrapped
// with the bar cache when one is configured.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		collectors: collector.NewRegistry(),
	}
	a.collectors.Register(yahoo.New())
	a.collectors.Register(eastmoney.New())
	if cfg.Data.Dir != "" {
		a.collectors.Register(csvfile.New(cfg.Data.Dir))
		a.collectors.Register(parquetstore.New(cfg.Data.Dir))
	}
	for _, opt := range opts {
		opt(a)
	}

	provider, err := a.collectors.MustGet(cfg.Data.Provider)
	if err != nil {
		return nil, err
	}

	store, err := archive.New(cfg.Data.Cache.Archive())
	if err != nil {
		return nil, fmt.Errorf("creating bar cache: %w", err)
	}
	if store != nil {
		provider = cached.New(provider, store, logger.Named("cache"))
		logger.Debug("bar cache enabled", zap.String("type", cfg.Data.Cache.Type))
	}
	a.provider = provider

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}

	btOpts := []backtest.Option{
		backtest.WithLogger(logger.Named("backtest")),
		backtest.WithConcurrency(cfg.Data.Concurrency),
	}
	if a.metrics != nil {
		btOpts = append(btOpts, backtest.WithRecorder(a.metrics))
	}
	a.backtester = backtest.New(provider, btOpts...)

	logger.Debug("app ready",
		zap.String("provider", provider.Name()),
		zap.Strings("available", a.collectors.Names()),
	)
	return a, nil
}

// Config returns the configuration the app was built from
func (a *App) Config() *config.Config { return a.cfg }

// Provider returns the bar source, cache included
func (a *App) Provider() collector.Collector { return a.provider }

// Backtester returns the configured backtester
func (a *App) Backtester() *backtest.Backtester { return a.backtester }

// Metrics returns the metrics registry, or nil when metrics are disabled
func (a *App) Metrics() *metrics.Registry { return a.metrics }
