package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"polytrader/internal/config"
	"polytrader/internal/strategy"
	"polytrader/pkg/types"
)

// MultiEngine runs one strategy over several symbols at once. Candle streams
// are merged into a single timestamp-ordered feed; the portfolio may hold one
// position per symbol simultaneously and the circuit breaker watches total
// equity across all of them.
type MultiEngine struct {
	provider       CandleProvider
	strat          strategy.Strategy
	initialCapital decimal.Decimal
	exec           config.ExecutionConfig
	risk           config.RiskConfig
	logger         *slog.Logger
}

// NewMulti creates a multi-asset backtest engine.
func NewMulti(provider CandleProvider, strat strategy.Strategy, initialCapital decimal.Decimal, exec config.ExecutionConfig, risk config.RiskConfig, logger *slog.Logger) *MultiEngine {
	return &MultiEngine{
		provider:       provider,
		strat:          strat,
		initialCapital: initialCapital,
		exec:           exec,
		risk:           risk,
		logger:         logger.With("component", "backtest_multi"),
	}
}

// Run fetches each symbol's candles, merges them stably by timestamp (ties
// keep the order symbols were passed in), and replays the merged stream.
// The strategy sees each candle paired with only that symbol's prior history.
func (e *MultiEngine) Run(ctx context.Context, symbols []string, interval types.Interval, start, end int64) (*types.BacktestResult, error) {
	var merged []types.Candle
	lastClose := make(map[string]decimal.Decimal, len(symbols))
	lastTS := int64(0)
	for _, symbol := range symbols {
		candles, err := e.provider.GetCandles(ctx, symbol, interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("fetch candles %s/%s: %w", symbol, interval, err)
		}
		if len(candles) > 0 {
			last := candles[len(candles)-1]
			lastClose[symbol] = last.Close
			if last.Timestamp > lastTS {
				lastTS = last.Timestamp
			}
		}
		merged = append(merged, candles...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})

	result := &types.BacktestResult{
		StrategyName:   e.strat.Name(),
		Symbol:         strings.Join(symbols, ","),
		Interval:       interval,
		InitialCapital: e.initialCapital,
		Candles:        merged,
	}
	if len(merged) == 0 {
		result.FinalCapital = e.initialCapital
		result.Metrics = computeMetrics(nil, e.initialCapital, e.initialCapital, nil)
		return result, nil
	}

	state := newRunState(e.initialCapital, e.exec, e.risk)
	histories := make(map[string][]types.Candle, len(symbols))
	for _, candle := range merged {
		state.step(candle, histories[candle.Symbol], e.strat)
		histories[candle.Symbol] = append(histories[candle.Symbol], candle)
	}

	state.pf.ForceCloseAll(lastClose, lastTS)

	result.FinalCapital = state.pf.Cash()
	result.Trades = state.pf.Trades()
	result.Metrics = computeMetrics(result.Trades, e.initialCapital, result.FinalCapital, state.equityCurve)

	e.logger.Info("multi-asset backtest complete",
		"symbols", symbols,
		"trades", len(result.Trades),
		"final_capital", result.FinalCapital)
	return result, nil
}
