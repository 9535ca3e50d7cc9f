package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"chartfeed/internal/backfill"
	cfcfg "chartfeed/internal/config"
	"chartfeed/internal/gateway/rates"
	"chartfeed/internal/logger"
	"chartfeed/internal/market"
	"chartfeed/internal/store/journal"
	feedhttp "chartfeed/internal/transport/http/feed"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务与实时订阅。
type App struct {
	cfg         *cfcfg.Config
	cache       *market.SeriesCache
	coordinator *backfill.Coordinator
	server      *feedhttp.Server
	journal     *journal.Store
	ratesClient *rates.Client
	live        *market.LiveUpdater
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *cfcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Cache exposes the series cache (for testing/replay harnesses).
func (a *App) Cache() *market.SeriesCache {
	if a == nil {
		return nil
	}
	return a.cache
}

// Coordinator exposes the backfill coordinator (for testing/replay harnesses).
func (a *App) Coordinator() *backfill.Coordinator {
	if a == nil {
		return nil
	}
	return a.coordinator
}

// Run 启动 HTTP 服务、令牌热加载与实时订阅，直至 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("✓ HTTP 服务启动于 %s", a.server.Addr())
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("feed http server error: %w", err)
		}
		return nil
	})

	if path := strings.TrimSpace(a.cfg.Upstream.TokenFile); path != "" && a.ratesClient != nil {
		watcher := rates.NewTokenWatcher(path, a.ratesClient)
		group.Go(func() error {
			if err := watcher.Run(ctx); err != nil {
				return fmt.Errorf("token watcher error: %w", err)
			}
			return nil
		})
	}

	if a.live != nil {
		group.Go(func() error {
			return a.startLiveSeries(ctx)
		})
	}

	err := group.Wait()
	if a.journal != nil {
		_ = a.journal.Close()
	}
	return err
}

// startLiveSeries warms each configured series, then subscribes it. A series
// that fails to warm is still subscribed so the forming bar shows up once the
// upstream recovers.
func (a *App) startLiveSeries(ctx context.Context) error {
	for _, instrument := range a.cfg.Live.Instruments {
		for _, granularity := range a.cfg.Live.Granularities {
			granularity = market.NormalizeGranularity(granularity)
			if err := a.coordinator.LoadInitial(ctx, instrument, granularity); err != nil {
				logger.Warnf("[live] warm load %s@%s failed: %v", instrument, granularity, err)
			}
			if err := a.live.Start(ctx, instrument, granularity); err != nil {
				return fmt.Errorf("subscribe %s@%s: %w", instrument, granularity, err)
			}
		}
	}
	return nil
}
