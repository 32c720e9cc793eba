package portfolio

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"polytrader/pkg/types"
)

// Broker is the slice of the exchange client the live ledger needs.
type Broker interface {
	PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResponse, error)
	GetBalance(ctx context.Context, assetType string) (types.Balance, error)
}

// Live is the live-trading ledger. It mirrors Multi's accounting but places
// a real order before recording anything: if the broker rejects or the call
// fails, no cash moves and no position is recorded. Broker order IDs and
// filled sizes are attached to the resulting trades.
type Live struct {
	*Multi
	broker      Broker
	logger      *slog.Logger
	entryOrders map[string]types.OrderResponse
}

// NewLive wraps a Multi ledger with order placement. The cash balance is
// whatever the ledger starts with; call RefreshBalance before trading.
func NewLive(ledger *Multi, broker Broker, logger *slog.Logger) *Live {
	return &Live{
		Multi:       ledger,
		broker:      broker,
		logger:      logger.With("component", "live_portfolio"),
		entryOrders: make(map[string]types.OrderResponse),
	}
}

// RefreshBalance re-fetches the collateral balance and replaces the ledger's
// cash. On failure the previously cached balance is kept.
func (l *Live) RefreshBalance(ctx context.Context) {
	bal, err := l.broker.GetBalance(ctx, "COLLATERAL")
	if err != nil {
		l.logger.Warn("balance refresh failed, keeping cached balance",
			"cached", l.Capital(), "error", err)
		return
	}
	l.SetCapital(bal.Available)
}

// OpenPosition submits a market buy for tokenID and, on success, records the
// position. Returns nil when the allocation cap rejects the size, the order
// fails, or the broker reports no success.
func (l *Live) OpenPosition(ctx context.Context, conditionID, tokenID string, price, quantity, fee decimal.Decimal, ts int64) *types.Position {
	l.RefreshBalance(ctx)
	if l.HasPosition(conditionID) || !quantity.IsPositive() {
		return nil
	}
	cost := price.Mul(quantity)
	if cost.GreaterThan(l.Capital().Mul(l.maxPositionPct)) || cost.GreaterThan(l.Capital()) {
		return nil
	}

	resp, err := l.broker.PlaceOrder(ctx, types.OrderRequest{
		TokenID:   tokenID,
		Side:      types.Buy,
		Price:     price,
		Size:      quantity,
		OrderType: types.OrderTypeMarket,
	})
	if err != nil {
		l.logger.Error("open order failed", "condition_id", conditionID, "error", err)
		return nil
	}
	if !resp.Success {
		l.logger.Warn("open order rejected", "condition_id", conditionID,
			"status", resp.Status, "reason", resp.ErrorMsg)
		return nil
	}

	pos := l.Multi.OpenPosition(conditionID, types.Buy, price, quantity, fee, ts)
	if pos == nil {
		// Order went through but the ledger refused: balance moved under us.
		l.logger.Error("order filled but ledger rejected position",
			"condition_id", conditionID, "order_id", resp.OrderID)
		return nil
	}
	l.entryOrders[conditionID] = resp
	return pos
}

// ClosePosition submits a market sell for the position's token and, on
// success, closes it in the ledger. The trade carries the close order's ID
// and filled size.
func (l *Live) ClosePosition(ctx context.Context, conditionID, tokenID string, price, exitFee decimal.Decimal, ts int64) *types.Trade {
	pos := l.Position(conditionID)
	if pos == nil {
		return nil
	}

	resp, err := l.broker.PlaceOrder(ctx, types.OrderRequest{
		TokenID:   tokenID,
		Side:      types.Sell,
		Price:     price,
		Size:      pos.Quantity,
		OrderType: types.OrderTypeMarket,
	})
	if err != nil {
		l.logger.Error("close order failed", "condition_id", conditionID, "error", err)
		return nil
	}
	if !resp.Success {
		l.logger.Warn("close order rejected", "condition_id", conditionID,
			"status", resp.Status, "reason", resp.ErrorMsg)
		return nil
	}

	tr := l.Multi.ClosePosition(conditionID, price, exitFee, ts)
	if tr == nil {
		return nil
	}
	tr.OrderID = resp.OrderID
	tr.Filled = resp.Filled
	// Keep the close order's record in the trades slice too.
	l.trades[len(l.trades)-1] = *tr
	delete(l.entryOrders, conditionID)
	return tr
}

// EntryOrder returns the broker response for the market's opening order.
func (l *Live) EntryOrder(conditionID string) (types.OrderResponse, bool) {
	resp, ok := l.entryOrders[conditionID]
	return resp, ok
}
