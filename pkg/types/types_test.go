package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewCandleValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewCandle("BTC", 1000, d("100"), d("110"), d("90"), d("105"), d("1"), Interval1h); err != nil {
		t.Fatalf("valid candle rejected: %v", err)
	}
	// high below close
	if _, err := NewCandle("BTC", 1000, d("100"), d("104"), d("90"), d("105"), d("1"), Interval1h); err == nil {
		t.Fatal("expected error for close above high")
	}
	// low above open
	if _, err := NewCandle("BTC", 1000, d("100"), d("110"), d("101"), d("105"), d("1"), Interval1h); err == nil {
		t.Fatal("expected error for open below low")
	}
	if _, err := NewCandle("BTC", 1000, d("100"), d("110"), d("90"), d("105"), d("-1"), Interval1h); err == nil {
		t.Fatal("expected error for negative volume")
	}
	if _, err := NewCandle("BTC", 1000, d("100"), d("110"), d("90"), d("105"), d("1"), Interval("2h")); err == nil {
		t.Fatal("expected error for unsupported interval")
	}
}

func TestIntervalSeconds(t *testing.T) {
	t.Parallel()

	cases := map[Interval]int64{
		Interval1m: 60, Interval5m: 300, Interval15m: 900,
		Interval1h: 3600, Interval4h: 14400, Interval1d: 86400, Interval1w: 604800,
	}
	for iv, want := range cases {
		if got := iv.Seconds(); got != want {
			t.Errorf("%s: got %d seconds, want %d", iv, got, want)
		}
	}
	if Interval("3m").Valid() {
		t.Error("3m should not be a valid interval")
	}
}

func TestNewOrderBookDerivations(t *testing.T) {
	t.Parallel()

	book := NewOrderBook("tok",
		[]PriceLevel{{Price: d("0.48"), Size: d("100")}, {Price: d("0.47"), Size: d("50")}},
		[]PriceLevel{{Price: d("0.52"), Size: d("80")}},
	)
	if !book.Spread.Equal(d("0.04")) {
		t.Errorf("spread = %s, want 0.04", book.Spread)
	}
	if !book.Midpoint.Equal(d("0.5")) {
		t.Errorf("midpoint = %s, want 0.5", book.Midpoint)
	}
	if !book.BestBid().Equal(d("0.48")) || !book.BestAsk().Equal(d("0.52")) {
		t.Errorf("best bid/ask = %s/%s", book.BestBid(), book.BestAsk())
	}

	// One-sided and empty books are valid with zero derived values.
	oneSided := NewOrderBook("tok", []PriceLevel{{Price: d("0.48"), Size: d("1")}}, nil)
	if !oneSided.Spread.IsZero() || !oneSided.Midpoint.IsZero() {
		t.Error("one-sided book should have zero spread and midpoint")
	}
	empty := NewOrderBook("tok", nil, nil)
	if !empty.BestBid().IsZero() || !empty.BestAsk().IsZero() {
		t.Error("empty book should have zero best bid/ask")
	}
}

func TestNewMarketSnapshotPriceRange(t *testing.T) {
	t.Parallel()

	if _, err := NewMarketSnapshot("cid", "q", 1, d("0.6"), d("0.41"), OrderBook{}, d("0"), d("0"), ""); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}
	if _, err := NewMarketSnapshot("cid", "q", 1, d("1.01"), d("0.4"), OrderBook{}, d("0"), d("0"), ""); err == nil {
		t.Fatal("expected error for yes price above 1")
	}
	if _, err := NewMarketSnapshot("cid", "q", 1, d("0.6"), d("-0.1"), OrderBook{}, d("0"), d("0"), ""); err == nil {
		t.Fatal("expected error for negative no price")
	}
}

func TestComplementPrice(t *testing.T) {
	t.Parallel()

	if got := ComplementPrice(d("0.37")); !got.Equal(d("0.63")) {
		t.Errorf("ComplementPrice(0.37) = %s, want 0.63", got)
	}
}

func TestNewSignalStrengthRange(t *testing.T) {
	t.Parallel()

	if _, err := NewSignal(Buy, "BTC", d("0.5"), "edge"); err != nil {
		t.Fatalf("valid signal rejected: %v", err)
	}
	if _, err := NewSignal(Sell, "BTC", d("1.5"), "edge"); err == nil {
		t.Fatal("expected error for strength above 1")
	}
	if _, err := NewSignal(Buy, "BTC", d("-0.1"), "edge"); err == nil {
		t.Fatal("expected error for negative strength")
	}
	if _, err := NewSignal(Side("HOLD"), "BTC", d("0.5"), ""); err == nil {
		t.Fatal("expected error for invalid side")
	}
}

func TestTradePnL(t *testing.T) {
	t.Parallel()

	long := Trade{
		Symbol: "BTC", Side: Buy, Quantity: d("100"),
		EntryPrice: d("100"), ExitPrice: d("120"),
		EntryFee: d("10"), ExitFee: d("12"),
	}
	if got := long.PnL(); !got.Equal(d("1978")) {
		t.Errorf("long PnL = %s, want 1978", got)
	}

	short := Trade{
		Symbol: "BTC", Side: Sell, Quantity: d("100"),
		EntryPrice: d("100"), ExitPrice: d("120"),
	}
	if got := short.PnL(); !got.Equal(d("-2000")) {
		t.Errorf("short PnL = %s, want -2000", got)
	}
}

// pnl == pnl_pct * (entry*qty + entry_fee) must hold for any trade.
func TestTradePnLPctIdentity(t *testing.T) {
	t.Parallel()

	tr := Trade{
		Side: Buy, Quantity: d("7"),
		EntryPrice: d("0.42"), ExitPrice: d("0.61"),
		EntryFee: d("0.03"), ExitFee: d("0.05"),
	}
	base := tr.EntryPrice.Mul(tr.Quantity).Add(tr.EntryFee)
	if got := tr.PnLPct().Mul(base); !got.Sub(tr.PnL()).Abs().LessThan(d("0.0000000001")) {
		t.Errorf("pnl_pct identity broken: %s vs %s", got, tr.PnL())
	}

	zero := Trade{Side: Buy}
	if !zero.PnLPct().IsZero() {
		t.Error("zero-notional trade should have zero PnLPct")
	}
}

func TestPositionUnrealizedPnL(t *testing.T) {
	t.Parallel()

	p := &Position{Symbol: "cid", Side: Buy, Quantity: d("10"), EntryPrice: d("0.5")}
	if !p.UnrealizedPnL().IsZero() {
		t.Error("unmarked position should have zero unrealized PnL")
	}
	p.Mark = d("0.6")
	if got := p.UnrealizedPnL(); !got.Equal(d("1")) {
		t.Errorf("long unrealized = %s, want 1", got)
	}
	s := &Position{Symbol: "cid", Side: Sell, Quantity: d("10"), EntryPrice: d("0.5"), Mark: d("0.6")}
	if got := s.UnrealizedPnL(); !got.Equal(d("-1")) {
		t.Errorf("short unrealized = %s, want -1", got)
	}
}

func TestMarketTokenAccess(t *testing.T) {
	t.Parallel()

	m := Market{Tokens: []Token{
		{TokenID: "y", Outcome: "Yes"},
		{TokenID: "n", Outcome: "No"},
	}}
	yes, ok := m.YesToken()
	if !ok || yes.TokenID != "y" {
		t.Errorf("YesToken = %+v, %v", yes, ok)
	}
	no, ok := m.NoToken()
	if !ok || no.TokenID != "n" {
		t.Errorf("NoToken = %+v, %v", no, ok)
	}
	if _, ok := (Market{Tokens: []Token{{TokenID: "y"}}}).YesToken(); ok {
		t.Error("one-token market should not yield a YES token")
	}
}

func TestSafeDecimal(t *testing.T) {
	t.Parallel()

	got, err := SafeDecimal("0.55")
	if err != nil || !got.Equal(d("0.55")) {
		t.Errorf("SafeDecimal(0.55) = %s, %v", got, err)
	}
	got, err = SafeDecimal("")
	if err != nil || !got.IsZero() {
		t.Errorf("SafeDecimal(\"\") = %s, %v; want zero, nil", got, err)
	}
	if _, err = SafeDecimal("abc"); err == nil {
		t.Error("expected error for malformed decimal")
	}
}
