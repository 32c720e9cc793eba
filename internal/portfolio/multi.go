package portfolio

import (
	"github.com/shopspring/decimal"

	"polytrader/pkg/types"
)

// Multi is the live/paper ledger: at most one open position per condition ID,
// with a per-position allocation cap relative to free cash.
type Multi struct {
	cash           decimal.Decimal
	maxPositionPct decimal.Decimal
	positions      map[string]*types.Position
	entryFees      map[string]decimal.Decimal
	trades         []types.Trade
}

// NewMulti creates a ledger with the given cash and per-position cap.
// maxPositionPct is a fraction of free cash, in (0,1].
func NewMulti(initialCapital, maxPositionPct decimal.Decimal) *Multi {
	return &Multi{
		cash:           initialCapital,
		maxPositionPct: maxPositionPct,
		positions:      make(map[string]*types.Position),
		entryFees:      make(map[string]decimal.Decimal),
	}
}

// OpenPosition opens a position for conditionID and returns it.
// Returns nil — with no cash movement — when a position already exists for
// the market, the quantity is non-positive, or cost breaches the allocation
// cap (cost > cash·maxPositionPct) or exceeds cash outright.
func (m *Multi) OpenPosition(conditionID string, side types.Side, price, quantity, fee decimal.Decimal, ts int64) *types.Position {
	if _, exists := m.positions[conditionID]; exists {
		return nil
	}
	if !quantity.IsPositive() {
		return nil
	}
	cost := price.Mul(quantity)
	if cost.GreaterThan(m.cash.Mul(m.maxPositionPct)) || cost.GreaterThan(m.cash) {
		return nil
	}
	m.cash = m.cash.Sub(cost).Sub(fee)
	pos := &types.Position{
		Symbol:     conditionID,
		Side:       side,
		Quantity:   quantity,
		EntryPrice: price,
		EntryTime:  ts,
	}
	m.positions[conditionID] = pos
	m.entryFees[conditionID] = fee
	return pos
}

// ClosePosition closes the market's position at price and returns the trade,
// or nil when no position is open.
func (m *Multi) ClosePosition(conditionID string, price, exitFee decimal.Decimal, ts int64) *types.Trade {
	pos, ok := m.positions[conditionID]
	if !ok {
		return nil
	}
	tr := types.Trade{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		EntryTime:  pos.EntryTime,
		ExitPrice:  price,
		ExitTime:   ts,
		EntryFee:   m.entryFees[conditionID],
		ExitFee:    exitFee,
	}
	m.cash = m.cash.Add(pos.EntryPrice.Mul(pos.Quantity)).Add(tr.PnL()).Add(tr.EntryFee)
	delete(m.positions, conditionID)
	delete(m.entryFees, conditionID)
	m.trades = append(m.trades, tr)
	return &tr
}

// DropPosition removes a position without any cash movement or trade
// record. Used when a market resolves on-chain and the proceeds arrive via a
// balance refresh instead of a sell.
func (m *Multi) DropPosition(conditionID string) {
	delete(m.positions, conditionID)
	delete(m.entryFees, conditionID)
}

// MarkToMarket updates the mark price for the market's position, if any.
func (m *Multi) MarkToMarket(conditionID string, price decimal.Decimal) {
	if pos, ok := m.positions[conditionID]; ok {
		pos.Mark = price
	}
}

// MaxQuantityFor returns the largest quantity purchasable at price within
// the allocation cap. Zero when price is not positive.
func (m *Multi) MaxQuantityFor(price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return m.cash.Mul(m.maxPositionPct).Div(price)
}

// Capital returns the free cash balance.
func (m *Multi) Capital() decimal.Decimal { return m.cash }

// SetCapital replaces the cash balance. Used by the live ledger when the
// exchange balance is re-fetched.
func (m *Multi) SetCapital(cash decimal.Decimal) { m.cash = cash }

// TotalEquity returns cash + Σ entry cost + Σ unrealized PnL.
func (m *Multi) TotalEquity() decimal.Decimal {
	eq := m.cash
	for _, pos := range m.positions {
		eq = eq.Add(pos.Cost()).Add(pos.UnrealizedPnL())
	}
	return eq
}

// Position returns the open position for the market, or nil.
func (m *Multi) Position(conditionID string) *types.Position {
	return m.positions[conditionID]
}

// HasPosition reports whether the market has an open position.
func (m *Multi) HasPosition(conditionID string) bool {
	_, ok := m.positions[conditionID]
	return ok
}

// Positions returns a copy of the open-positions map.
func (m *Multi) Positions() map[string]*types.Position {
	out := make(map[string]*types.Position, len(m.positions))
	for cid, pos := range m.positions {
		out[cid] = pos
	}
	return out
}

// Trades returns all closed trades in close order.
func (m *Multi) Trades() []types.Trade { return m.trades }
