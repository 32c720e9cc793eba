// Polytrader backtest — replays historical candles through a strategy with
// fees, slippage, risk exits, and an equity circuit breaker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"polytrader/internal/backtest"
	"polytrader/internal/candles"
	"polytrader/internal/config"
	"polytrader/internal/strategy"
	"polytrader/pkg/types"
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

	bt := cfg.Backtest
	if len(bt.Symbols) == 0 {
		logger.Error("backtest.symbols must not be empty")
		os.Exit(1)
	}
	interval := types.Interval(bt.Interval)
	if !interval.Valid() {
		logger.Error("invalid backtest interval", "interval", bt.Interval)
		os.Exit(1)
	}
	strat, err := strategy.New(bt.Strategy)
	if err != nil {
		logger.Error("strategy resolution failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := candles.NewProvider(cfg.API.CandleBaseURL)

	var result *types.BacktestResult
	if len(bt.Symbols) == 1 {
		engine := backtest.New(provider, strat, bt.InitialCapital, cfg.Execution, cfg.Risk, logger)
		result, err = engine.Run(ctx, bt.Symbols[0], interval, bt.StartTime, bt.EndTime)
	} else {
		engine := backtest.NewMulti(provider, strat, bt.InitialCapital, cfg.Execution, cfg.Risk, logger)
		result, err = engine.Run(ctx, bt.Symbols, interval, bt.StartTime, bt.EndTime)
	}
	if err != nil {
		logger.Error("backtest failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("strategy:        %s\n", result.StrategyName)
	fmt.Printf("symbol:          %s\n", result.Symbol)
	fmt.Printf("candles:         %d\n", len(result.Candles))
	fmt.Printf("initial capital: %s\n", result.InitialCapital)
	fmt.Printf("final capital:   %s\n", result.FinalCapital)

	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-16s %s\n", name+":", result.Metrics[name])
	}
}
