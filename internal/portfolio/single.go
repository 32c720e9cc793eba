// Package portfolio implements the cash-and-positions ledgers used by the
// backtest and live/paper engines. Each ledger is owned by exactly one
// engine goroutine and is only touched between I/O suspension points, so no
// locking happens here.
package portfolio

import (
	"github.com/shopspring/decimal"

	"polytrader/pkg/types"
)

// Single is the backtester's ledger: at most one open position per symbol.
//
// Cash accounting: opening deducts cost plus the entry fee; closing returns
// the entry notional plus the trade PnL net of the exit fee (the entry fee
// was already paid at open). A round trip at the entry price therefore costs
// exactly the two fees.
type Single struct {
	cash      decimal.Decimal
	positions map[string]*types.Position
	entryFees map[string]decimal.Decimal
	trades    []types.Trade
}

// NewSingle creates a ledger with the given starting cash.
func NewSingle(initialCapital decimal.Decimal) *Single {
	return &Single{
		cash:      initialCapital,
		positions: make(map[string]*types.Position),
		entryFees: make(map[string]decimal.Decimal),
	}
}

// Open opens a position. It returns false when a position is already open
// for the symbol or when cost plus fee exceeds available cash.
func (s *Single) Open(symbol string, side types.Side, price, quantity, fee decimal.Decimal, ts int64) bool {
	if _, exists := s.positions[symbol]; exists {
		return false
	}
	cost := price.Mul(quantity)
	if cost.Add(fee).GreaterThan(s.cash) || !quantity.IsPositive() {
		return false
	}
	s.cash = s.cash.Sub(cost).Sub(fee)
	s.positions[symbol] = &types.Position{
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		EntryPrice: price,
		EntryTime:  ts,
	}
	s.entryFees[symbol] = fee
	return true
}

// Close closes the position for symbol at exitPrice, records the trade, and
// returns it. The second return is false when no position is open.
func (s *Single) Close(symbol string, exitPrice, exitFee decimal.Decimal, ts int64) (types.Trade, bool) {
	pos, ok := s.positions[symbol]
	if !ok {
		return types.Trade{}, false
	}
	tr := types.Trade{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		EntryTime:  pos.EntryTime,
		ExitPrice:  exitPrice,
		ExitTime:   ts,
		EntryFee:   s.entryFees[symbol],
		ExitFee:    exitFee,
	}
	// Entry fee already left cash at open; return notional + PnL + entry fee.
	s.cash = s.cash.Add(pos.EntryPrice.Mul(pos.Quantity)).Add(tr.PnL()).Add(tr.EntryFee)
	delete(s.positions, symbol)
	delete(s.entryFees, symbol)
	s.trades = append(s.trades, tr)
	return tr, true
}

// ForceCloseAll closes every remaining position at its symbol's last price.
// Symbols without an entry in lastPrices close at their entry price.
func (s *Single) ForceCloseAll(lastPrices map[string]decimal.Decimal, ts int64) []types.Trade {
	var closed []types.Trade
	for symbol, pos := range s.positions {
		price, ok := lastPrices[symbol]
		if !ok {
			price = pos.EntryPrice
		}
		if tr, ok := s.Close(symbol, price, decimal.Zero, ts); ok {
			closed = append(closed, tr)
		}
	}
	return closed
}

// Position returns the open position for symbol, or nil.
func (s *Single) Position(symbol string) *types.Position {
	return s.positions[symbol]
}

// HasPosition reports whether a position is open for symbol.
func (s *Single) HasPosition(symbol string) bool {
	_, ok := s.positions[symbol]
	return ok
}

// Cash returns the free cash balance.
func (s *Single) Cash() decimal.Decimal { return s.cash }

// Trades returns all closed trades in close order.
func (s *Single) Trades() []types.Trade { return s.trades }

// Equity returns cash plus the mark value of open positions, using each
// position's entry cost plus unrealized PnL.
func (s *Single) Equity() decimal.Decimal {
	eq := s.cash
	for _, pos := range s.positions {
		eq = eq.Add(pos.Cost()).Add(pos.UnrealizedPnL())
	}
	return eq
}

// MarkToMarket updates the mark price of symbol's position, if any.
func (s *Single) MarkToMarket(symbol string, price decimal.Decimal) {
	if pos, ok := s.positions[symbol]; ok {
		pos.Mark = price
	}
}
