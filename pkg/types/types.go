// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the platform: candles, market
// snapshots, order books, signals, trades, positions, ticks, and the wire
// types exchanged with the CLOB API. It has no dependencies on internal
// packages, so it can be imported by any layer.
//
// All monetary and price quantities are decimal.Decimal. Binary floats are
// not used for price math anywhere in this repository.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of a signal, order, or position: BUY or SELL.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Interval enumerates the supported candle intervals.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

// Valid reports whether the interval is one of the supported values.
func (i Interval) Valid() bool {
	switch i {
	case Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d, Interval1w:
		return true
	}
	return false
}

// Seconds returns the interval length in seconds.
func (i Interval) Seconds() int64 {
	switch i {
	case Interval1m:
		return 60
	case Interval5m:
		return 300
	case Interval15m:
		return 900
	case Interval1h:
		return 3600
	case Interval4h:
		return 14400
	case Interval1d:
		return 86400
	case Interval1w:
		return 604800
	default:
		return 0
	}
}

// OrderType enumerates the supported order lifecycles.
// Limit orders rest on the book (GTC); market orders fill-or-kill (FOK).
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// ————————————————————————————————————————————————————————————————————————
// Candles
// ————————————————————————————————————————————————————————————————————————

// Candle is an OHLCV bar for one symbol over one interval.
// Timestamp is Unix epoch seconds for the bar open. Candles are immutable
// once constructed.
type Candle struct {
	Symbol    string
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Interval  Interval
}

// NewCandle validates and constructs a candle. The OHLC envelope must hold
// (low ≤ open,close ≤ high) and volume must be non-negative.
func NewCandle(symbol string, ts int64, open, high, low, close, volume decimal.Decimal, interval Interval) (Candle, error) {
	if !interval.Valid() {
		return Candle{}, fmt.Errorf("candle %s@%d: invalid interval %q", symbol, ts, interval)
	}
	if low.GreaterThan(open) || low.GreaterThan(close) || high.LessThan(open) || high.LessThan(close) {
		return Candle{}, fmt.Errorf("candle %s@%d: OHLC out of range (o=%s h=%s l=%s c=%s)",
			symbol, ts, open, high, low, close)
	}
	if volume.IsNegative() {
		return Candle{}, fmt.Errorf("candle %s@%d: negative volume %s", symbol, ts, volume)
	}
	return Candle{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Interval:  interval,
	}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in the order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook is a point-in-time view of one token's book. Bids are ordered
// price-descending, asks price-ascending. Spread and Midpoint are derived
// from the best bid/ask; both are zero when either side is empty. An empty
// book is a valid state, not an error.
type OrderBook struct {
	TokenID  string
	Bids     []PriceLevel
	Asks     []PriceLevel
	Spread   decimal.Decimal
	Midpoint decimal.Decimal
}

// NewOrderBook constructs a book and derives spread and midpoint.
// Bids must already be sorted price-descending and asks price-ascending;
// the CLOB API returns them in that order.
func NewOrderBook(tokenID string, bids, asks []PriceLevel) OrderBook {
	book := OrderBook{TokenID: tokenID, Bids: bids, Asks: asks}
	if len(bids) > 0 && len(asks) > 0 {
		best := bids[0].Price
		ask := asks[0].Price
		book.Spread = ask.Sub(best)
		book.Midpoint = best.Add(ask).Div(decimal.NewFromInt(2))
	}
	return book
}

// BestBid returns the top-of-book bid price, or zero if no bids rest.
func (b OrderBook) BestBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}

// BestAsk returns the top-of-book ask price, or zero if no asks rest.
func (b OrderBook) BestAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

// ————————————————————————————————————————————————————————————————————————
// Market snapshots
// ————————————————————————————————————————————————————————————————————————

// MarketSnapshot is a point-in-time view of a binary prediction market.
// Yes and no prices are probability-like values in [0, 1]; they need not
// sum to 1 (the market may carry a spread). Snapshots are immutable.
type MarketSnapshot struct {
	ConditionID string
	Question    string
	Timestamp   int64
	YesPrice    decimal.Decimal
	NoPrice     decimal.Decimal
	Book        OrderBook
	Volume      decimal.Decimal
	Liquidity   decimal.Decimal
	EndDate     string // ISO 8601 resolution time
}

// NewMarketSnapshot validates prices into [0, 1] and constructs a snapshot.
func NewMarketSnapshot(conditionID, question string, ts int64, yes, no decimal.Decimal, book OrderBook, volume, liquidity decimal.Decimal, endDate string) (MarketSnapshot, error) {
	one := decimal.NewFromInt(1)
	if yes.IsNegative() || yes.GreaterThan(one) {
		return MarketSnapshot{}, fmt.Errorf("snapshot %s: yes price %s outside [0,1]", conditionID, yes)
	}
	if no.IsNegative() || no.GreaterThan(one) {
		return MarketSnapshot{}, fmt.Errorf("snapshot %s: no price %s outside [0,1]", conditionID, no)
	}
	return MarketSnapshot{
		ConditionID: conditionID,
		Question:    question,
		Timestamp:   ts,
		YesPrice:    yes,
		NoPrice:     no,
		Book:        book,
		Volume:      volume,
		Liquidity:   liquidity,
		EndDate:     endDate,
	}, nil
}

// ComplementPrice returns 1 − p, the canonical NO price when a snapshot is
// derived from a YES-side tick stream.
func ComplementPrice(p decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(p)
}

// ————————————————————————————————————————————————————————————————————————
// Signals
// ————————————————————————————————————————————————————————————————————————

// Signal is a strategy's request to buy or sell, with a confidence in [0, 1].
type Signal struct {
	Side     Side
	Symbol   string
	Strength decimal.Decimal
	Reason   string
}

// NewSignal rejects strength values outside [0, 1] so that a buggy strategy
// surfaces immediately instead of corrupting sizing downstream.
func NewSignal(side Side, symbol string, strength decimal.Decimal, reason string) (Signal, error) {
	if side != Buy && side != Sell {
		return Signal{}, fmt.Errorf("signal %s: invalid side %q", symbol, side)
	}
	if strength.IsNegative() || strength.GreaterThan(decimal.NewFromInt(1)) {
		return Signal{}, fmt.Errorf("signal %s: strength %s outside [0,1]", symbol, strength)
	}
	return Signal{Side: side, Symbol: symbol, Strength: strength, Reason: reason}, nil
}

// ————————————————————————————————————————————————————————————————————————
// Positions and trades
// ————————————————————————————————————————————————————————————————————————

// Position is an open holding. It is owned exclusively by a portfolio;
// only the Mark field mutates (via mark-to-market) between open and close.
type Position struct {
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	EntryTime  int64
	Mark       decimal.Decimal // last mark-to-market price; zero until first mark
}

// Cost returns the entry notional: entry price × quantity.
func (p *Position) Cost() decimal.Decimal {
	return p.EntryPrice.Mul(p.Quantity)
}

// UnrealizedPnL returns the direction-adjusted mark-to-market PnL.
// Zero until the position has been marked at least once.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p.Mark.IsZero() {
		return decimal.Zero
	}
	if p.Side == Buy {
		return p.Mark.Sub(p.EntryPrice).Mul(p.Quantity)
	}
	return p.EntryPrice.Sub(p.Mark).Mul(p.Quantity)
}

// Trade is a closed round-trip record. Immutable.
type Trade struct {
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	EntryTime  int64
	ExitPrice  decimal.Decimal
	ExitTime   int64
	EntryFee   decimal.Decimal
	ExitFee    decimal.Decimal

	// Broker fields, populated only by the live portfolio.
	OrderID string
	Filled  decimal.Decimal
}

// PnL returns the direction-adjusted price difference times quantity,
// net of both fees.
func (t Trade) PnL() decimal.Decimal {
	var diff decimal.Decimal
	if t.Side == Buy {
		diff = t.ExitPrice.Sub(t.EntryPrice)
	} else {
		diff = t.EntryPrice.Sub(t.ExitPrice)
	}
	return diff.Mul(t.Quantity).Sub(t.EntryFee).Sub(t.ExitFee)
}

// PnLPct returns PnL relative to the capital committed at entry
// (entry notional plus entry fee). Zero when the denominator is zero.
func (t Trade) PnLPct() decimal.Decimal {
	base := t.EntryPrice.Mul(t.Quantity).Add(t.EntryFee)
	if base.IsZero() {
		return decimal.Zero
	}
	return t.PnL().Div(base)
}

// ————————————————————————————————————————————————————————————————————————
// Ticks
// ————————————————————————————————————————————————————————————————————————

// Tick is a single trade print from the market feed. Timestamps are epoch
// milliseconds: TimestampMs is the exchange time, ReceivedAtMs local time.
type Tick struct {
	AssetID      string
	ConditionID  string
	Price        decimal.Decimal
	Size         decimal.Decimal
	Side         string
	FeeRateBps   int
	TimestampMs  int64
	ReceivedAtMs int64
}

// ————————————————————————————————————————————————————————————————————————
// CLOB market metadata and orders
// ————————————————————————————————————————————————————————————————————————

// Token is one outcome token of a binary market.
type Token struct {
	TokenID string          `json:"token_id"`
	Outcome string          `json:"outcome"` // "Yes" or "No"
	Price   decimal.Decimal `json:"price"`
}

// Market is the CLOB representation of a prediction market. A binary market
// has exactly two tokens; by convention the first is YES and the second NO.
type Market struct {
	ConditionID string          `json:"condition_id"`
	Question    string          `json:"question"`
	Tokens      []Token         `json:"tokens"`
	EndDate     string          `json:"end_date_iso"`
	Volume      decimal.Decimal `json:"volume"`
	Liquidity   decimal.Decimal `json:"liquidity"`
	Active      bool            `json:"active"`
	Closed      bool            `json:"closed"`
}

// YesToken returns the YES outcome token. The second return is false when
// the market does not carry the two tokens a binary market must have.
func (m Market) YesToken() (Token, bool) {
	if len(m.Tokens) < 2 {
		return Token{}, false
	}
	return m.Tokens[0], true
}

// NoToken returns the NO outcome token.
func (m Market) NoToken() (Token, bool) {
	if len(m.Tokens) < 2 {
		return Token{}, false
	}
	return m.Tokens[1], true
}

// OrderRequest is the high-level order the live portfolio submits.
// Limit prices must lie in the open interval (0, 1).
type OrderRequest struct {
	TokenID    string
	Side       Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	OrderType  OrderType
	FeeRateBps int
}

// OrderResponse is the broker's answer to an order submission.
type OrderResponse struct {
	OrderID  string          `json:"orderID"`
	Status   string          `json:"status"`
	Filled   decimal.Decimal `json:"filled"`
	Success  bool            `json:"success"`
	ErrorMsg string          `json:"errorMsg"`
}

// Balance is a spot balance on the exchange (live engine only).
type Balance struct {
	AssetType string          `json:"asset_type"`
	Available decimal.Decimal `json:"available"`
}

// SeriesMarket is one entry of a series-slug discovery result: the active
// (or upcoming) market of a recurring series together with its precise
// resolution time. The CLOB market record often carries only a date, so the
// discovery endpoint's end time is kept as an override.
type SeriesMarket struct {
	ConditionID string
	EndDate     string
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket events
// ————————————————————————————————————————————————————————————————————————
// Prices and sizes arrive as strings from the feed to preserve precision;
// consumers parse them with SafeDecimal.

// WSTradeEvent is a last-trade-price message from the market channel.
// Other event types on the wire are dropped by the feed.
type WSTradeEvent struct {
	EventType  string `json:"event_type"` // "last_trade_price"
	AssetID    string `json:"asset_id"`
	Market     string `json:"market"` // condition ID
	Price      string `json:"price"`
	Size       string `json:"size"`
	Side       string `json:"side"`
	FeeRateBps string `json:"fee_rate_bps"`
	Timestamp  string `json:"timestamp"` // epoch milliseconds as string
}

// WSSubscribeMsg is the subscription message sent after each (re)connect,
// listing every asset ID the consumer wants trade prints for.
type WSSubscribeMsg struct {
	Type     string   `json:"type"` // "market"
	AssetIDs []string `json:"assets_ids"`
}

// ————————————————————————————————————————————————————————————————————————
// Backtest results
// ————————————————————————————————————————————————————————————————————————

// BacktestResult is the immutable output of one backtest run.
type BacktestResult struct {
	StrategyName   string
	Symbol         string
	Interval       Interval
	InitialCapital decimal.Decimal
	FinalCapital   decimal.Decimal
	Trades         []Trade
	Metrics        map[string]decimal.Decimal
	Candles        []Candle
}
