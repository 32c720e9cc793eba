package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"polytrader/pkg/types"
)

// computeMetrics derives the summary statistics of a finished run.
//
// Keys: total_return, win_rate, profit_factor, max_drawdown, sharpe_ratio,
// total_trades, total_fees. profit_factor reports the gross profit when no
// losing trades exist. The Sharpe ratio is per-trade (not annualized); its
// square root is the only place a value leaves decimal, and it operates on
// completed returns, never on prices.
func computeMetrics(trades []types.Trade, initial, final decimal.Decimal, equityCurve []decimal.Decimal) map[string]decimal.Decimal {
	m := map[string]decimal.Decimal{
		"total_trades": decimal.NewFromInt(int64(len(trades))),
	}

	if initial.IsPositive() {
		m["total_return"] = final.Sub(initial).Div(initial)
	} else {
		m["total_return"] = decimal.Zero
	}

	wins := 0
	grossProfit, grossLoss, totalFees := decimal.Zero, decimal.Zero, decimal.Zero
	returns := make([]decimal.Decimal, 0, len(trades))
	for _, tr := range trades {
		pnl := tr.PnL()
		if pnl.IsPositive() {
			wins++
			grossProfit = grossProfit.Add(pnl)
		} else {
			grossLoss = grossLoss.Add(pnl.Neg())
		}
		totalFees = totalFees.Add(tr.EntryFee).Add(tr.ExitFee)
		returns = append(returns, tr.PnLPct())
	}
	m["total_fees"] = totalFees

	if len(trades) > 0 {
		m["win_rate"] = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(trades))))
	} else {
		m["win_rate"] = decimal.Zero
	}

	switch {
	case grossLoss.IsPositive():
		m["profit_factor"] = grossProfit.Div(grossLoss)
	default:
		m["profit_factor"] = grossProfit
	}

	m["max_drawdown"] = maxDrawdown(equityCurve)
	m["sharpe_ratio"] = sharpeRatio(returns)
	return m
}

// maxDrawdown returns the largest peak-to-trough equity decline as a
// fraction of the peak.
func maxDrawdown(equityCurve []decimal.Decimal) decimal.Decimal {
	maxDD, peak := decimal.Zero, decimal.Zero
	for _, eq := range equityCurve {
		if eq.GreaterThan(peak) {
			peak = eq
		}
		if peak.IsPositive() {
			dd := peak.Sub(eq).Div(peak)
			if dd.GreaterThan(maxDD) {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio is mean(returns)/stddev(returns) over per-trade returns.
// Zero when fewer than two trades or when the returns never vary.
func sharpeRatio(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(len(returns)))
	mean := decimal.Zero
	for _, r := range returns {
		mean = mean.Add(r)
	}
	mean = mean.Div(n)

	variance := decimal.Zero
	for _, r := range returns {
		diff := r.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(n)
	if !variance.IsPositive() {
		return decimal.Zero
	}

	std := decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
	if !std.IsPositive() {
		return decimal.Zero
	}
	return mean.Div(std)
}
