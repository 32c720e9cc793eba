// Package backtest replays historical candles through a strategy with
// realistic execution costs, risk-management exits, and a drawdown circuit
// breaker, and reports summary metrics.
package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"polytrader/internal/config"
	"polytrader/internal/portfolio"
	"polytrader/internal/strategy"
	"polytrader/pkg/types"
)

// CandleProvider supplies historical candles. Pagination, caching, and
// transport are the provider's business; the engine sees one list, which may
// be empty. Provider errors propagate to the caller unretried.
type CandleProvider interface {
	GetCandles(ctx context.Context, symbol string, interval types.Interval, start, end int64) ([]types.Candle, error)
}

// Engine runs a strategy over one symbol's candle stream.
type Engine struct {
	provider       CandleProvider
	strat          strategy.Strategy
	initialCapital decimal.Decimal
	exec           config.ExecutionConfig
	risk           config.RiskConfig
	logger         *slog.Logger
}

// New creates a single-asset backtest engine.
func New(provider CandleProvider, strat strategy.Strategy, initialCapital decimal.Decimal, exec config.ExecutionConfig, risk config.RiskConfig, logger *slog.Logger) *Engine {
	return &Engine{
		provider:       provider,
		strat:          strat,
		initialCapital: initialCapital,
		exec:           exec,
		risk:           risk,
		logger:         logger.With("component", "backtest"),
	}
}

// Run fetches candles for [start, end] and replays them in timestamp order.
// An empty candle list yields a zero-trade result with capital intact.
func (e *Engine) Run(ctx context.Context, symbol string, interval types.Interval, start, end int64) (*types.BacktestResult, error) {
	candles, err := e.provider.GetCandles(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s/%s: %w", symbol, interval, err)
	}

	result := &types.BacktestResult{
		StrategyName:   e.strat.Name(),
		Symbol:         symbol,
		Interval:       interval,
		InitialCapital: e.initialCapital,
		Candles:        candles,
	}
	if len(candles) == 0 {
		result.FinalCapital = e.initialCapital
		result.Metrics = computeMetrics(nil, e.initialCapital, e.initialCapital, nil)
		return result, nil
	}

	state := newRunState(e.initialCapital, e.exec, e.risk)
	history := make([]types.Candle, 0, len(candles))
	for _, candle := range candles {
		state.step(candle, history, e.strat)
		history = append(history, candle)
	}

	last := candles[len(candles)-1]
	state.pf.ForceCloseAll(map[string]decimal.Decimal{symbol: last.Close}, last.Timestamp)

	result.FinalCapital = state.pf.Cash()
	result.Trades = state.pf.Trades()
	result.Metrics = computeMetrics(result.Trades, e.initialCapital, result.FinalCapital, state.equityCurve)

	e.logger.Info("backtest complete",
		"symbol", symbol,
		"trades", len(result.Trades),
		"final_capital", result.FinalCapital)
	return result, nil
}

// runState carries the per-run mutable state shared by the single- and
// multi-asset engines: the ledger, the circuit breaker, and the equity curve.
type runState struct {
	pf   *portfolio.Single
	exec config.ExecutionConfig
	risk config.RiskConfig

	breakerActive bool
	tripEquity    decimal.Decimal
	peakEquity    decimal.Decimal
	equityCurve   []decimal.Decimal
}

func newRunState(initialCapital decimal.Decimal, exec config.ExecutionConfig, risk config.RiskConfig) *runState {
	return &runState{
		pf:   portfolio.NewSingle(initialCapital),
		exec: exec,
		risk: risk,
	}
}

// step processes one candle against the candle's symbol.
// history is that symbol's prior candles; the caller appends afterwards.
func (s *runState) step(candle types.Candle, history []types.Candle, strat strategy.Strategy) {
	symbol := candle.Symbol

	// Circuit breaker: while tripped, entries and exits by signal are
	// suspended until equity recovers from the trip level.
	blocked := false
	if s.breakerActive {
		required := s.tripEquity.Mul(one.Add(s.risk.RecoveryPct))
		if s.pf.Equity().GreaterThanOrEqual(required) {
			s.breakerActive = false
		} else {
			blocked = true
		}
	}

	// Risk exits run regardless of the breaker; holding through a stop
	// because trading is halted would be the worst of both.
	exited := false
	if pos := s.pf.Position(symbol); pos != nil {
		if exitPrice, ok := CheckRiskTriggers(candle, pos.EntryPrice, s.risk, pos.Side); ok {
			fee := exitPrice.Mul(pos.Quantity).Mul(s.exec.TakerFeePct)
			s.pf.Close(symbol, exitPrice, fee, candle.Timestamp)
			exited = true
		}
	}

	if !exited && !blocked {
		if pos := s.pf.Position(symbol); pos == nil {
			if sig := strat.OnCandle(candle, history); sig != nil && sig.Side == types.Buy {
				s.openFromSignal(candle, history)
			}
			// A SELL with no position is ignored here.
		} else {
			if sig := strat.OnCandle(candle, history); sig != nil && sig.Side == types.Sell {
				price := ApplyExitSlippage(candle.Close, s.exec.SlippagePct)
				fee := price.Mul(pos.Quantity).Mul(s.exec.TakerFeePct)
				s.pf.Close(symbol, price, fee, candle.Timestamp)
			}
		}
	}

	// Mark equity at the close, update the peak, and maybe trip.
	s.pf.MarkToMarket(symbol, candle.Close)
	equity := s.pf.Equity()
	if equity.GreaterThan(s.peakEquity) {
		s.peakEquity = equity
	}
	s.equityCurve = append(s.equityCurve, equity)

	if s.risk.CircuitBreakerPct.IsPositive() && !s.breakerActive && s.peakEquity.IsPositive() {
		drawdown := s.peakEquity.Sub(equity).Div(s.peakEquity)
		if drawdown.GreaterThanOrEqual(s.risk.CircuitBreakerPct) {
			s.breakerActive = true
			s.tripEquity = equity
		}
	}
}

func (s *runState) openFromSignal(candle types.Candle, history []types.Candle) {
	price := ApplyEntrySlippage(candle.Close, s.exec.SlippagePct)
	_, fee, quantity := ComputeAllocation(s.pf.Cash(), price, s.exec, history)
	if !quantity.IsPositive() {
		return
	}
	s.pf.Open(candle.Symbol, types.Buy, price, quantity, fee, candle.Timestamp)
}
