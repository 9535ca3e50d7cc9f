package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"chartfeed/internal/backfill"
	cfcfg "chartfeed/internal/config"
	"chartfeed/internal/gateway/binance"
	"chartfeed/internal/gateway/rates"
	"chartfeed/internal/logger"
	"chartfeed/internal/market"
	"chartfeed/internal/metrics"
	"chartfeed/internal/store/journal"
	feedhttp "chartfeed/internal/transport/http/feed"
)

type AppBuilder struct {
	cfg *cfcfg.Config

	sourceFn  func(*cfcfg.Config) (market.Source, *rates.Client, *binance.Source, error)
	serverFn  func(feedhttp.ServerConfig) (*feedhttp.Server, error)
	journalFn func(string) (*journal.Store, error)
	registry  prometheus.Registerer
}

type AppBuilderOption func(*AppBuilder)

// WithRegistry points metric registration at a private registry, which
// keeps repeated builds from colliding on the default one.
func WithRegistry(reg prometheus.Registerer) AppBuilderOption {
	return func(b *AppBuilder) { b.registry = reg }
}

func NewAppBuilder(cfg *cfcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		sourceFn:  buildSource,
		serverFn:  feedhttp.NewServer,
		journalFn: journal.Open,
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	cache := market.NewSeriesCache()
	meter := metrics.New(b.registry)

	var logs *journal.Store
	if path := strings.TrimSpace(cfg.Journal.Path); path != "" {
		var err error
		logs, err = b.journalFn(path)
		if err != nil {
			return nil, fmt.Errorf("open fetch journal: %w", err)
		}
		logger.Infof("✓ 抓取日志已启用: %s", path)
	}

	source, ratesClient, binanceSource, err := b.sourceFn(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 行情源: %s", source.Name())

	coordinator := backfill.New(cache, source, backfill.Config{
		InitialCount:      cfg.Backfill.InitialCount,
		BatchCount:        cfg.Backfill.BatchCount,
		EdgeThresholdBars: cfg.Backfill.EdgeThresholdBars,
	}, backfill.WithJournal(logs), backfill.WithMetrics(meter))

	server, err := b.serverFn(feedhttp.ServerConfig{
		Addr:        cfg.App.Addr,
		Cache:       cache,
		Coordinator: coordinator,
		Journal:     logs,
	})
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}

	var live *market.LiveUpdater
	if cfg.Live.Enabled {
		if binanceSource == nil {
			binanceSource = binance.New(cfg.Binance.APIKey, cfg.Binance.Secret)
		}
		live = market.NewLiveUpdater(cache, binanceSource)
		logger.Infof("✓ 实时推送已启用: %v × %v", cfg.Live.Instruments, cfg.Live.Granularities)
	}

	return &App{
		cfg:         cfg,
		cache:       cache,
		coordinator: coordinator,
		server:      server,
		journal:     logs,
		ratesClient: ratesClient,
		live:        live,
	}, nil
}

func buildSource(cfg *cfcfg.Config) (market.Source, *rates.Client, *binance.Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Upstream.Provider)) {
	case "binance":
		src := binance.New(cfg.Binance.APIKey, cfg.Binance.Secret)
		return src, nil, src, nil
	default:
		client := rates.New(rates.Config{
			BaseURL:     cfg.Upstream.BaseURL,
			Token:       cfg.Upstream.Token,
			Timeout:     cfg.Upstream.Timeout,
			MaxAttempts: cfg.Upstream.MaxAttempts,
			BackoffBase: cfg.Upstream.BackoffBase,
			Cooldown:    cfg.Upstream.Cooldown,
		})
		return client, client, nil, nil
	}
}
