package engine

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"polytrader/internal/portfolio"
	"polytrader/pkg/types"
)

// LiveTrader places real orders through the live ledger. Markets with an
// open position are skipped for new flows, rotation lets positions resolve
// on-chain instead of selling into a dying book, and a loss limit relative
// to the starting balance halts the bot.
type LiveTrader struct {
	ledger         *portfolio.Live
	takerFee       decimal.Decimal
	initialBalance decimal.Decimal
	maxLossPct     decimal.Decimal
	logger         *slog.Logger
}

// NewLiveTrader wraps the live ledger. The ledger's balance should already be
// refreshed; the current capital is recorded as the loss-limit baseline.
// A zero maxLossPct disables the limit.
func NewLiveTrader(ledger *portfolio.Live, takerFee, maxLossPct decimal.Decimal, logger *slog.Logger) *LiveTrader {
	return &LiveTrader{
		ledger:         ledger,
		takerFee:       takerFee,
		initialBalance: ledger.Capital(),
		maxLossPct:     maxLossPct,
		logger:         logger.With("component", "live_trader"),
	}
}

func (l *LiveTrader) fee(price, quantity decimal.Decimal) decimal.Decimal {
	return price.Mul(quantity).Mul(l.takerFee)
}

func (l *LiveTrader) Open(ctx context.Context, conditionID, tokenID, _ string, price, quantity decimal.Decimal, ts int64) bool {
	return l.ledger.OpenPosition(ctx, conditionID, tokenID, price, quantity, l.fee(price, quantity), ts) != nil
}

func (l *LiveTrader) Close(ctx context.Context, conditionID, tokenID string, price decimal.Decimal, ts int64) *types.Trade {
	pos := l.ledger.Position(conditionID)
	if pos == nil {
		return nil
	}
	return l.ledger.ClosePosition(ctx, conditionID, tokenID, price, l.fee(price, pos.Quantity), ts)
}

func (l *LiveTrader) MarkToMarket(conditionID string, price decimal.Decimal) {
	l.ledger.MarkToMarket(conditionID, price)
}

func (l *LiveTrader) HasPosition(conditionID string) bool { return l.ledger.HasPosition(conditionID) }

func (l *LiveTrader) MaxQuantityFor(price decimal.Decimal) decimal.Decimal {
	return l.ledger.MaxQuantityFor(price)
}

func (l *LiveTrader) Equity() decimal.Decimal { return l.ledger.TotalEquity() }

func (l *LiveTrader) Trades() []types.Trade { return l.ledger.Trades() }

// ShouldSkipMarket suppresses strategy flow on markets that already hold a
// position: these resolve within minutes and get paid out on-chain.
func (l *LiveTrader) ShouldSkipMarket(conditionID string) bool {
	return l.ledger.HasPosition(conditionID)
}

// OnRotationClose drops open positions without selling. The expiring markets
// resolve on-chain moments later; the payout shows up in the next balance
// refresh rather than as a trade record.
func (l *LiveTrader) OnRotationClose(ctx context.Context, _ map[string]decimal.Decimal) {
	for cid := range l.ledger.Positions() {
		l.logger.Info("leaving position for on-chain resolution", "condition_id", cid)
		l.ledger.DropPosition(cid)
	}
	l.ledger.RefreshBalance(ctx)
}

// CheckLossLimit reports whether equity has fallen below
// initialBalance·(1 − maxLossPct).
func (l *LiveTrader) CheckLossLimit() bool {
	if !l.maxLossPct.IsPositive() || !l.initialBalance.IsPositive() {
		return false
	}
	floor := l.initialBalance.Mul(decimal.NewFromInt(1).Sub(l.maxLossPct))
	return l.ledger.TotalEquity().LessThan(floor)
}

func (l *LiveTrader) Shutdown(ctx context.Context) {
	l.ledger.RefreshBalance(ctx)
	l.logger.Info("final balance", "capital", l.ledger.Capital())
}
