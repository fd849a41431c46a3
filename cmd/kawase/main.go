package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"kawase/internal/agent"
	"kawase/internal/backtest"
	"kawase/internal/config"
	"kawase/internal/gateway/binance"
	"kawase/internal/gateway/gmo"
	"kawase/internal/gateway/notifier"
	"kawase/internal/logger"
	"kawase/internal/market"
	"kawase/internal/metrics"
	"kawase/internal/store"
	transporthttp "kawase/internal/transport/http"
)

func main() {
	configPath := flag.String("config", "kawase.toml", "TOML 配置文件路径")
	flag.Parse()

	// .env 不存在不算错误，线上直接用环境变量。
	_ = godotenv.Load()
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		logger.SetLevelByName(lvl)
	}

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Warnf("配置文件 %s 不存在，使用默认配置", *configPath)
		*configPath = ""
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && err != context.Canceled {
		logger.Errorf("退出: %v", err)
		os.Exit(1)
	}
	logger.Infof("已停止")
}

// newSource 按配置选择行情数据源，默认 GMO 外汇接口。
func newSource(cfg config.Config) (market.Source, error) {
	switch cfg.Market.Provider {
	case "", "gmo":
		return gmo.New(gmo.Config{
			BaseURL:          cfg.GMO.BaseURL,
			PriceType:        cfg.GMO.PriceType,
			MaxPagesPerFetch: cfg.GMO.MaxPagesPerFetch,
			HTTPTimeout:      cfg.GMO.HTTPTimeout.Std(),
		})
	case "binance":
		return binance.New(binance.Config{
			APIKey:      cfg.Binance.APIKey,
			APISecret:   cfg.Binance.APISecret,
			RESTBaseURL: cfg.Binance.RESTBaseURL,
			HTTPTimeout: cfg.Binance.HTTPTimeout.Std(),
		})
	default:
		return nil, fmt.Errorf("未知的行情数据源: %s", cfg.Market.Provider)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	source, err := newSource(cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	nstore, err := store.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer nstore.Close()

	// 配置里声明的用户只做首次种子，之后以 store/API 的数据为准。
	users := make([]string, 0, len(cfg.Users))
	for id, u := range cfg.Users {
		users = append(users, id)
		if _, ok, err := nstore.LoadSettings(ctx, id); err == nil && !ok {
			if err := nstore.SaveSettings(ctx, id, u.Notify); err != nil {
				logger.Warnf("写入用户 %s 初始设置失败: %v", id, err)
			}
		}
	}

	var pusher agent.LinePusher
	if cfg.Line.AccessToken != "" {
		line, err := notifier.NewLine(notifier.LineConfig{
			BaseURL:     cfg.Line.BaseURL,
			AccessToken: cfg.Line.AccessToken,
		})
		if err != nil {
			return err
		}
		pusher = line
	} else {
		logger.Warnf("未配置 LINE_CHANNEL_ACCESS_TOKEN，通知只落日志不推送")
	}

	cache := store.NewCandleCache()
	mtr := metrics.New()

	btSvc, err := backtest.NewService(source)
	if err != nil {
		return err
	}

	server, err := transporthttp.NewServer(transporthttp.Config{
		Addr:     cfg.HTTP.Addr,
		Source:   source,
		Cache:    cache,
		Store:    nstore,
		Backtest: btSvc,
		Analysis: cfg.Analysis,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })

	if cfg.Monitor.Enabled {
		monitor, err := agent.NewMonitor(agent.MonitorParams{
			Source:      source,
			Store:       nstore,
			Cache:       cache,
			Pusher:      pusher,
			Users:       users,
			Symbols:     cfg.Monitor.Symbols,
			Intervals:   cfg.Monitor.Intervals,
			HistoryBars: cfg.Monitor.HistoryBars,
			Analysis:    cfg.Analysis,
			Metrics:     mtr,
		})
		if err != nil {
			return err
		}
		logger.Infof("监控启动: symbols=%v intervals=%v 每 %s 扫描一次",
			cfg.Monitor.Symbols, cfg.Monitor.Intervals, cfg.Monitor.ScanInterval.Std())
		g.Go(func() error { return monitor.Run(gctx, cfg.Monitor.ScanInterval.Std()) })
	} else {
		logger.Infof("监控未启用，仅提供 HTTP 接口")
	}

	return g.Wait()
}
