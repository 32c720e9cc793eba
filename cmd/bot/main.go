// Polytrader bot — paper and live trading on short-lived binary prediction
// markets.
//
// Architecture:
//
//	main.go              — entry point: loads config, wires the stack, waits for SIGINT/SIGTERM
//	engine/engine.go     — event loop: feed prints → snapshots → strategy → Kelly-sized orders
//	engine/paper.go      — virtual ledger variant (simulated fills, session persistence)
//	engine/live.go       — real-order variant (balance refresh, loss limit, on-chain resolution)
//	portfolio/           — cash/position accounting shared by both variants
//	sizing/kelly.go      — fractional Kelly position sizing
//	exchange/client.go   — REST client for the CLOB and Gamma APIs
//	exchange/auth.go     — L1 (EIP-712) and L2 (HMAC) API authentication
//	exchange/ws.go       — trade-print WebSocket feed with auto-reconnect
//	store/session.go     — JSON persistence for paper sessions
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"polytrader/internal/config"
	"polytrader/internal/engine"
	"polytrader/internal/exchange"
	"polytrader/internal/portfolio"
	"polytrader/internal/store"
	"polytrader/internal/strategy"
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

	strat, err := strategy.NewSnapshot(cfg.Bot.Strategy)
	if err != nil {
		logger.Error("strategy resolution failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	live := cfg.Bot.Mode == "live"

	var auth *exchange.Auth
	if live {
		if err := cfg.ValidateLive(); err != nil {
			logger.Error("invalid live config", "error", err)
			os.Exit(1)
		}
		if auth, err = exchange.NewAuth(*cfg); err != nil {
			logger.Error("auth setup failed", "error", err)
			os.Exit(1)
		}
	}
	client := exchange.NewClient(*cfg, auth, logger)
	if live && !auth.HasL2Credentials() {
		creds, err := client.DeriveAPIKey(ctx)
		if err != nil {
			logger.Error("API key derivation failed", "error", err)
			os.Exit(1)
		}
		auth.SetCredentials(*creds)
		logger.Info("derived L2 API credentials")
	}

	var trader engine.Trader
	if live {
		ledger := portfolio.NewLive(
			portfolio.NewMulti(cfg.Bot.InitialCapital, cfg.Bot.MaxPositionPct),
			client, logger)
		ledger.RefreshBalance(ctx)
		trader = engine.NewLiveTrader(ledger, cfg.Execution.TakerFeePct, cfg.Bot.MaxLossPct, logger)
		logger.Info("live trading", "balance", ledger.Capital(), "dry_run", cfg.DryRun)
	} else {
		var sink engine.SessionSink
		if cfg.Store.DataDir != "" {
			sessions, err := store.OpenSessions(cfg.Store.DataDir)
			if err != nil {
				logger.Error("session store setup failed", "error", err)
				os.Exit(1)
			}
			if prev, err := sessions.LoadSession(); err != nil {
				logger.Warn("previous session unreadable", "error", err)
			} else if prev != nil {
				logger.Info("previous paper session",
					"saved_at", prev.SavedAt,
					"equity", prev.Equity,
					"trades", len(prev.Trades))
			}
			sink = sessions
		}
		ledger := portfolio.NewMulti(cfg.Bot.InitialCapital, cfg.Bot.MaxPositionPct)
		trader = engine.NewPaper(ledger, cfg.Execution.TakerFeePct, sink, logger)
		logger.Info("paper trading", "capital", cfg.Bot.InitialCapital)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	feed := exchange.NewMarketFeed(cfg.API.WSMarketURL, nil, logger)
	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("market feed stopped", "error", err)
		}
	}()

	bot := engine.New(cfg.Bot, client, feed, strat, trader, logger)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}
}
