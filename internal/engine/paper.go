package engine

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"polytrader/internal/portfolio"
	"polytrader/pkg/types"
)

// SessionSink persists a paper session's final state.
type SessionSink interface {
	SaveSession(ts int64, capital, equity decimal.Decimal, trades []types.Trade) error
}

// Paper trades against a virtual ledger. Fills are assumed at the signal
// price with a taker fee on both legs.
type Paper struct {
	ledger   *portfolio.Multi
	takerFee decimal.Decimal
	sink     SessionSink // optional
	logger   *slog.Logger
}

// NewPaper creates a paper trader over the given ledger. sink may be nil.
func NewPaper(ledger *portfolio.Multi, takerFee decimal.Decimal, sink SessionSink, logger *slog.Logger) *Paper {
	return &Paper{
		ledger:   ledger,
		takerFee: takerFee,
		sink:     sink,
		logger:   logger.With("component", "paper_trader"),
	}
}

func (p *Paper) fee(price, quantity decimal.Decimal) decimal.Decimal {
	return price.Mul(quantity).Mul(p.takerFee)
}

func (p *Paper) Open(_ context.Context, conditionID, _ string, _ string, price, quantity decimal.Decimal, ts int64) bool {
	return p.ledger.OpenPosition(conditionID, types.Buy, price, quantity, p.fee(price, quantity), ts) != nil
}

func (p *Paper) Close(_ context.Context, conditionID, _ string, price decimal.Decimal, ts int64) *types.Trade {
	pos := p.ledger.Position(conditionID)
	if pos == nil {
		return nil
	}
	return p.ledger.ClosePosition(conditionID, price, p.fee(price, pos.Quantity), ts)
}

func (p *Paper) MarkToMarket(conditionID string, price decimal.Decimal) {
	p.ledger.MarkToMarket(conditionID, price)
}

func (p *Paper) HasPosition(conditionID string) bool { return p.ledger.HasPosition(conditionID) }

func (p *Paper) MaxQuantityFor(price decimal.Decimal) decimal.Decimal {
	return p.ledger.MaxQuantityFor(price)
}

func (p *Paper) Equity() decimal.Decimal { return p.ledger.TotalEquity() }

func (p *Paper) Trades() []types.Trade { return p.ledger.Trades() }

// ShouldSkipMarket always allows paper flow; the ledger's one-position rule
// already prevents double entry.
func (p *Paper) ShouldSkipMarket(string) bool { return false }

// OnRotationClose liquidates every open position at its last mark before the
// market set rolls. Positions with no known price close at their mark.
func (p *Paper) OnRotationClose(_ context.Context, lastPrices map[string]decimal.Decimal) {
	for cid, pos := range p.ledger.Positions() {
		price, ok := lastPrices[cid]
		if !ok {
			price = pos.Mark
		}
		if !price.IsPositive() {
			price = pos.EntryPrice
		}
		if tr := p.ledger.ClosePosition(cid, price, p.fee(price, pos.Quantity), pos.EntryTime); tr != nil {
			p.logger.Info("rotation close", "condition_id", cid, "price", price, "pnl", tr.PnL())
		}
	}
}

func (p *Paper) CheckLossLimit() bool { return false }

// Shutdown writes the session to the sink, when one is configured.
func (p *Paper) Shutdown(_ context.Context) {
	if p.sink == nil {
		return
	}
	if err := p.sink.SaveSession(0, p.ledger.Capital(), p.ledger.TotalEquity(), p.ledger.Trades()); err != nil {
		p.logger.Error("session save failed", "error", err)
	}
}
