package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devansh0703/BinanceTradeBot/internal/config"
	"github.com/devansh0703/BinanceTradeBot/internal/engine"
	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/feed"
	"github.com/devansh0703/BinanceTradeBot/internal/journal"
	"github.com/devansh0703/BinanceTradeBot/internal/metrics"
	"github.com/devansh0703/BinanceTradeBot/internal/risk"
	"github.com/devansh0703/BinanceTradeBot/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 组装交易所网关、行情流、风控与执行监督器，
// 并发驱动各组件直到收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("执行引擎已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.Strings("symbols", a.cfg.Feed.Symbols),
	)

	client, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return fmt.Errorf("初始化交易所网关失败: %w", err)
	}
	gateway := exchange.NewRateLimited(client, a.cfg.Engine.RequestsPerSecond, a.cfg.Engine.Burst)

	hub := feed.NewHub(a.cfg.Feed.SubscriberBuffer, a.logger)
	stream := feed.NewStream(a.cfg.Feed, hub, a.cfg.Feed.Symbols, a.logger)

	jnl, err := journal.NewService(a.store, a.logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	guard := risk.NewGuard(a.cfg.Risk, a.logger)
	supervisor := engine.NewSupervisor(a.cfg.Engine, gateway, hub, guard, engine.Options{
		Journal: jnl,
		Metrics: m,
		Logger:  a.logger,
	})

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return ignoreCancel(client.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCancel(stream.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCancel(supervisor.Run(groupCtx))
	})

	if a.cfg.Monitor.Enabled {
		if err := startMonitorServer(groupCtx, monitorDeps{
			supervisor:  supervisor,
			journal:     jnl,
			registry:    registry,
			gridSpacing: a.cfg.Engine.GridSpacing,
		}, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("系统异常退出: %w", err)
	}

	a.logger.Info("系统收到退出信号，已停止")
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
