package backtest

import (
	"github.com/shopspring/decimal"

	"polytrader/internal/config"
	"polytrader/pkg/types"
)

var one = decimal.NewFromInt(1)

// ApplyEntrySlippage worsens a buy fill upward: price·(1+slip).
func ApplyEntrySlippage(price, slip decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Add(slip))
}

// ApplyExitSlippage worsens a sell fill downward: price·(1−slip).
func ApplyExitSlippage(price, slip decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Sub(slip))
}

// ComputeAllocation sizes an entry at price out of capital.
//
// Base sizing allocates capital·position_size_pct, pays the taker fee out of
// the allocation, and buys the remainder. With volatility sizing enabled and
// enough history for an ATR, the allocation instead targets
// capital·target_risk_pct / (ATR/price), capped by the base allocation so a
// quiet market never sizes above the configured fraction.
func ComputeAllocation(capital, price decimal.Decimal, cfg config.ExecutionConfig, history []types.Candle) (allocation, entryFee, quantity decimal.Decimal) {
	if !price.IsPositive() {
		return decimal.Zero, decimal.Zero, decimal.Zero
	}
	allocation = capital.Mul(cfg.PositionSizePct)

	if cfg.VolatilitySizing && len(history) >= cfg.ATRPeriod+1 {
		atr := ATR(history, cfg.ATRPeriod)
		if atr.IsPositive() {
			target := capital.Mul(cfg.TargetRiskPct).Div(atr.Div(price))
			if target.LessThan(allocation) {
				allocation = target
			}
		}
	}

	entryFee = allocation.Mul(cfg.TakerFeePct)
	quantity = allocation.Sub(entryFee).Div(price)
	return allocation, entryFee, quantity
}

// ATR returns the average true range over the last period candles.
// Needs at least period+1 candles (the first TR uses the prior close);
// returns zero otherwise.
func ATR(candles []types.Candle, period int) decimal.Decimal {
	if period <= 0 || len(candles) < period+1 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i := len(candles) - period; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		tr := cur.High.Sub(cur.Low)
		if hc := cur.High.Sub(prev.Close).Abs(); hc.GreaterThan(tr) {
			tr = hc
		}
		if lc := cur.Low.Sub(prev.Close).Abs(); lc.GreaterThan(tr) {
			tr = lc
		}
		sum = sum.Add(tr)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// CheckRiskTriggers evaluates stop-loss and take-profit against one candle's
// range, direction-aware. When both would fire on the same candle the
// stop-loss wins. The returned exit price is the threshold itself, not the
// candle close. Zero-valued config thresholds are disabled.
func CheckRiskTriggers(candle types.Candle, entry decimal.Decimal, risk config.RiskConfig, side types.Side) (decimal.Decimal, bool) {
	if side == types.Buy {
		if risk.StopLossPct.IsPositive() {
			stop := entry.Mul(one.Sub(risk.StopLossPct))
			if candle.Low.LessThanOrEqual(stop) {
				return stop, true
			}
		}
		if risk.TakeProfitPct.IsPositive() {
			target := entry.Mul(one.Add(risk.TakeProfitPct))
			if candle.High.GreaterThanOrEqual(target) {
				return target, true
			}
		}
		return decimal.Zero, false
	}

	if risk.StopLossPct.IsPositive() {
		stop := entry.Mul(one.Add(risk.StopLossPct))
		if candle.High.GreaterThanOrEqual(stop) {
			return stop, true
		}
	}
	if risk.TakeProfitPct.IsPositive() {
		target := entry.Mul(one.Sub(risk.TakeProfitPct))
		if candle.Low.LessThanOrEqual(target) {
			return target, true
		}
	}
	return decimal.Zero, false
}
