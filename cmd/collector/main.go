// Polytrader collector — records trade prints for configured markets into
// SQLite, re-discovering recurring 5-minute series ahead of each window.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"polytrader/internal/collector"
	"polytrader/internal/config"
	"polytrader/internal/exchange"
	"polytrader/internal/store"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("PT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		config.LoggingConfig{}.NewLogger().Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	if cfg.Collector.DBURL == "" {
		logger.Error("collector.db_url is required (set PT_DB_URL)")
		os.Exit(1)
	}

	repo, err := store.OpenTickRepo(cfg.Collector.DBURL)
	if err != nil {
		logger.Error("tick repository setup failed", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := exchange.NewClient(*cfg, nil, logger)
	feed := exchange.NewMarketFeed(cfg.API.WSMarketURL, nil, logger)
	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("market feed stopped", "error", err)
		}
	}()

	c := collector.New(cfg.Collector, client, feed, repo, logger)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("collector stopped with error", "error", err)
		os.Exit(1)
	}
}
