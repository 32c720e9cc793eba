package backtest

import (
	"testing"

	"github.com/shopspring/decimal"

	"polytrader/internal/config"
	"polytrader/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSlippage(t *testing.T) {
	t.Parallel()

	if got := ApplyEntrySlippage(d("100"), d("0.01")); !got.Equal(d("101")) {
		t.Errorf("entry slippage = %s, want 101", got)
	}
	if got := ApplyExitSlippage(d("100"), d("0.01")); !got.Equal(d("99")) {
		t.Errorf("exit slippage = %s, want 99", got)
	}
}

func TestComputeAllocationBase(t *testing.T) {
	t.Parallel()

	cfg := config.ExecutionConfig{
		TakerFeePct:     d("0.001"),
		PositionSizePct: d("0.25"),
	}
	alloc, fee, qty := ComputeAllocation(d("10000"), d("100"), cfg, nil)
	if !alloc.Equal(d("2500")) {
		t.Errorf("allocation = %s, want 2500", alloc)
	}
	if !fee.Equal(d("2.5")) {
		t.Errorf("entry fee = %s, want 2.5", fee)
	}
	if !qty.Equal(d("24.975")) {
		t.Errorf("quantity = %s, want 24.975", qty)
	}

	alloc, fee, qty = ComputeAllocation(d("10000"), decimal.Zero, cfg, nil)
	if !alloc.IsZero() || !fee.IsZero() || !qty.IsZero() {
		t.Error("non-positive price should yield zeros")
	}
}

func mkCandle(t *testing.T, ts int64, o, h, l, c string) types.Candle {
	t.Helper()
	candle, err := types.NewCandle("BTC", ts, d(o), d(h), d(l), d(c), d("1"), types.Interval1h)
	if err != nil {
		t.Fatal(err)
	}
	return candle
}

// ATR-targeted sizing never exceeds the base allocation.
func TestComputeAllocationATRCap(t *testing.T) {
	t.Parallel()

	cfg := config.ExecutionConfig{
		PositionSizePct:  d("0.25"),
		VolatilitySizing: true,
		ATRPeriod:        3,
		TargetRiskPct:    d("0.02"),
	}
	// Volatile history: wide ranges shrink the target allocation.
	history := []types.Candle{
		mkCandle(t, 1, "100", "120", "80", "100"),
		mkCandle(t, 2, "100", "125", "85", "110"),
		mkCandle(t, 3, "110", "130", "90", "100"),
		mkCandle(t, 4, "100", "120", "80", "105"),
	}
	alloc, _, _ := ComputeAllocation(d("10000"), d("100"), cfg, history)
	cap := d("10000").Mul(cfg.PositionSizePct)
	if alloc.GreaterThan(cap) {
		t.Errorf("allocation %s exceeds cap %s", alloc, cap)
	}
	// ATR = 40 → target = 10000·0.02/(40/100) = 500 < 2500.
	if !alloc.Equal(d("500")) {
		t.Errorf("allocation = %s, want 500", alloc)
	}

	// Quiet history: target above the cap, base allocation wins.
	quiet := []types.Candle{
		mkCandle(t, 1, "100", "100.5", "99.5", "100"),
		mkCandle(t, 2, "100", "100.5", "99.5", "100"),
		mkCandle(t, 3, "100", "100.5", "99.5", "100"),
		mkCandle(t, 4, "100", "100.5", "99.5", "100"),
	}
	alloc, _, _ = ComputeAllocation(d("10000"), d("100"), cfg, quiet)
	if !alloc.Equal(cap) {
		t.Errorf("quiet-market allocation = %s, want capped %s", alloc, cap)
	}
}

func TestATRInsufficientHistory(t *testing.T) {
	t.Parallel()

	history := []types.Candle{
		mkCandle(t, 1, "100", "110", "90", "100"),
		mkCandle(t, 2, "100", "110", "90", "100"),
	}
	if got := ATR(history, 3); !got.IsZero() {
		t.Errorf("ATR with short history = %s, want 0", got)
	}
}

// Stop-loss and take-profit on the same candle: stop-loss wins and the exit
// price is the threshold, not the close.
func TestCheckRiskTriggersStopPriority(t *testing.T) {
	t.Parallel()

	risk := config.RiskConfig{StopLossPct: d("0.05"), TakeProfitPct: d("0.10")}
	candle := mkCandle(t, 1, "100", "115", "90", "100")

	exit, ok := CheckRiskTriggers(candle, d("100"), risk, types.Buy)
	if !ok {
		t.Fatal("expected a trigger")
	}
	if !exit.Equal(d("95")) {
		t.Errorf("exit = %s, want stop threshold 95", exit)
	}
}

func TestCheckRiskTriggersLong(t *testing.T) {
	t.Parallel()

	risk := config.RiskConfig{StopLossPct: d("0.05"), TakeProfitPct: d("0.10")}

	// Take-profit only.
	exit, ok := CheckRiskTriggers(mkCandle(t, 1, "100", "112", "99", "111"), d("100"), risk, types.Buy)
	if !ok || !exit.Equal(d("110")) {
		t.Errorf("exit = %s, %v; want 110", exit, ok)
	}
	// Neither.
	if _, ok := CheckRiskTriggers(mkCandle(t, 1, "100", "104", "97", "100"), d("100"), risk, types.Buy); ok {
		t.Error("no trigger expected inside the band")
	}
	// Disabled config never triggers.
	if _, ok := CheckRiskTriggers(mkCandle(t, 1, "100", "150", "50", "100"), d("100"), config.RiskConfig{}, types.Buy); ok {
		t.Error("zero config should disable triggers")
	}
}

func TestCheckRiskTriggersShortMirror(t *testing.T) {
	t.Parallel()

	risk := config.RiskConfig{StopLossPct: d("0.05"), TakeProfitPct: d("0.10")}

	// Short stop: price rose through entry·1.05.
	exit, ok := CheckRiskTriggers(mkCandle(t, 1, "100", "106", "100", "105"), d("100"), risk, types.Sell)
	if !ok || !exit.Equal(d("105")) {
		t.Errorf("short stop exit = %s, %v; want 105", exit, ok)
	}
	// Short take-profit: price fell through entry·0.90.
	exit, ok = CheckRiskTriggers(mkCandle(t, 1, "100", "101", "89", "90"), d("100"), risk, types.Sell)
	if !ok || !exit.Equal(d("90")) {
		t.Errorf("short tp exit = %s, %v; want 90", exit, ok)
	}
	// Both in range: stop wins for shorts too.
	exit, ok = CheckRiskTriggers(mkCandle(t, 1, "100", "110", "85", "100"), d("100"), risk, types.Sell)
	if !ok || !exit.Equal(d("105")) {
		t.Errorf("short priority exit = %s, %v; want stop 105", exit, ok)
	}
}
