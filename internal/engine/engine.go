// Package engine implements the live/paper trading event loop for
// short-lived prediction markets.
//
// One Bot goroutine owns all engine state. It consumes trade prints from the
// market feed, maintains per-market snapshots and bounded history, runs the
// strategy, sizes entries with fractional Kelly, and rotates the market set
// at 5-minute window boundaries. The paper/live difference is composed in
// through the Trader interface rather than inherited.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"polytrader/internal/config"
	"polytrader/internal/sizing"
	"polytrader/internal/strategy"
	"polytrader/pkg/types"
)

const windowSeconds = 300

// TradingAPI is the slice of the exchange client the engine depends on.
type TradingAPI interface {
	GetMarket(ctx context.Context, conditionID string) (types.Market, error)
	GetOrderBook(ctx context.Context, tokenID string) (types.OrderBook, error)
	DiscoverSeriesMarkets(ctx context.Context, slugs []string, includeNext bool) ([]types.SeriesMarket, error)
}

// Feed is the streaming market-data source.
type Feed interface {
	Events() <-chan types.WSTradeEvent
	UpdateSubscription(assetIDs []string)
	Close() error
}

// Trader is the variant-specific trading behaviour. Paper keeps a virtual
// ledger; live places real orders and re-fetches balances.
type Trader interface {
	// Open buys quantity of the given outcome token. False means the trade
	// was rejected (cap, duplicate, or broker failure) and nothing changed.
	Open(ctx context.Context, conditionID, tokenID, outcome string, price, quantity decimal.Decimal, ts int64) bool
	// Close sells out the market's position at price; nil when there is no
	// position or the broker refused.
	Close(ctx context.Context, conditionID, tokenID string, price decimal.Decimal, ts int64) *types.Trade
	MarkToMarket(conditionID string, price decimal.Decimal)
	HasPosition(conditionID string) bool
	MaxQuantityFor(price decimal.Decimal) decimal.Decimal
	Equity() decimal.Decimal
	Trades() []types.Trade

	// ShouldSkipMarket suppresses new strategy flows for a market
	// (live: markets with open positions, to avoid double entry).
	ShouldSkipMarket(conditionID string) bool
	// OnRotationClose settles per-market state when the window rolls:
	// paper closes at the last marks, live lets resolution pay out and
	// re-fetches the balance.
	OnRotationClose(ctx context.Context, lastPrices map[string]decimal.Decimal)
	// CheckLossLimit reports whether the loss limit tripped (live only).
	CheckLossLimit() bool
	// Shutdown flushes any variant-specific state (paper session file).
	Shutdown(ctx context.Context)
}

// Bot is the trading event loop.
type Bot struct {
	cfg    config.BotConfig
	api    TradingAPI
	feed   Feed
	strat  strategy.PredictionMarketStrategy
	trader Trader
	logger *slog.Logger

	activeMarkets    []string
	cachedMarkets    map[string]types.Market
	cachedBooks      map[string]types.OrderBook
	history          map[string]*snapshotHistory
	tracker          *priceTracker
	positionOutcomes map[string]string // cid → "Yes" | "No"
	endTimeOverrides map[string]string // cid → precise ISO resolution time
	assetIDs         []string
	currentWindow    int64
	ticks            int

	now func() time.Time // injectable clock for rotation tests
}

// New creates a Bot. The feed must already be running (or be started by the
// caller); the Bot drives its subscription and closes it on shutdown.
func New(cfg config.BotConfig, api TradingAPI, feed Feed, strat strategy.PredictionMarketStrategy, trader Trader, logger *slog.Logger) *Bot {
	return &Bot{
		cfg:              cfg,
		api:              api,
		feed:             feed,
		strat:            strat,
		trader:           trader,
		logger:           logger.With("component", "engine"),
		cachedMarkets:    make(map[string]types.Market),
		cachedBooks:      make(map[string]types.OrderBook),
		history:          make(map[string]*snapshotHistory),
		tracker:          newPriceTracker(),
		positionOutcomes: make(map[string]string),
		endTimeOverrides: make(map[string]string),
		now:              time.Now,
	}
}

// Run executes the event loop until ctx is cancelled, the tick bound is
// reached, or the loss limit trips. Open positions are closed on the way out.
func (b *Bot) Run(ctx context.Context) error {
	if len(b.cfg.SeriesSlugs) > 0 {
		discovered, err := b.api.DiscoverSeriesMarkets(ctx, b.cfg.SeriesSlugs, false)
		if err != nil {
			return fmt.Errorf("initial discovery: %w", err)
		}
		b.setMarkets(discovered)
	} else {
		b.activeMarkets = append([]string(nil), b.cfg.Markets...)
		for cid, end := range b.cfg.MarketEndTimes {
			b.endTimeOverrides[cid] = end
		}
	}

	b.bootstrap(ctx)
	b.feed.UpdateSubscription(b.assetIDs)
	b.currentWindow = b.now().Unix() / windowSeconds

	bookRefresh := b.cfg.OrderBookRefresh
	if bookRefresh <= 0 {
		bookRefresh = 30 * time.Second
	}
	refresh := time.NewTicker(bookRefresh)
	defer refresh.Stop()
	rotation := time.NewTicker(time.Second)
	defer rotation.Stop()

	b.logger.Info("engine started",
		"markets", len(b.activeMarkets),
		"strategy", b.strat.Name(),
		"equity", b.trader.Equity())

	for {
		select {
		case <-ctx.Done():
			b.shutdown(context.WithoutCancel(ctx))
			return ctx.Err()

		case evt, ok := <-b.feed.Events():
			if !ok {
				b.shutdown(ctx)
				return fmt.Errorf("market feed closed")
			}
			b.onPriceUpdate(ctx, evt)
			b.ticks++
			if b.cfg.MaxTicks > 0 && b.ticks >= b.cfg.MaxTicks {
				b.logger.Info("tick bound reached", "ticks", b.ticks)
				b.shutdown(ctx)
				return nil
			}
			if b.trader.CheckLossLimit() {
				b.logger.Error("loss limit tripped, stopping", "equity", b.trader.Equity())
				b.shutdown(ctx)
				return nil
			}

		case <-refresh.C:
			b.refreshBooks(ctx)

		case <-rotation.C:
			if len(b.cfg.SeriesSlugs) == 0 {
				continue
			}
			if w := b.now().Unix() / windowSeconds; w != b.currentWindow {
				b.currentWindow = w
				b.rotateMarkets(ctx)
			}
		}
	}
}

// setMarkets installs a discovery result as the active market set.
func (b *Bot) setMarkets(discovered []types.SeriesMarket) {
	b.activeMarkets = b.activeMarkets[:0]
	b.endTimeOverrides = make(map[string]string)
	for _, m := range discovered {
		b.activeMarkets = append(b.activeMarkets, m.ConditionID)
		if m.EndDate != "" {
			b.endTimeOverrides[m.ConditionID] = m.EndDate
		}
	}
}

// bootstrap fetches each active market's metadata and seed order book.
// Per-market failures are logged and skipped; bootstrap never aborts.
func (b *Bot) bootstrap(ctx context.Context) {
	for _, cid := range b.activeMarkets {
		if err := b.bootstrapMarket(ctx, cid); err != nil {
			b.logger.Warn("bootstrap failed, skipping market", "condition_id", cid, "error", err)
		}
	}
}

func (b *Bot) bootstrapMarket(ctx context.Context, cid string) error {
	market, err := b.api.GetMarket(ctx, cid)
	if err != nil {
		return err
	}
	yes, ok := market.YesToken()
	if !ok {
		return fmt.Errorf("market %s has %d tokens, need 2", cid, len(market.Tokens))
	}
	no, _ := market.NoToken()

	b.cachedMarkets[cid] = market
	b.tracker.Register(yes.TokenID, cid, "Yes")
	b.tracker.Register(no.TokenID, cid, "No")
	b.tracker.Seed(cid, yes.Price, no.Price)
	b.assetIDs = append(b.assetIDs, yes.TokenID, no.TokenID)
	b.history[cid] = newSnapshotHistory(b.cfg.MaxHistory)

	book, err := b.api.GetOrderBook(ctx, yes.TokenID)
	if err != nil {
		b.logger.Warn("seed book fetch failed", "condition_id", cid, "error", err)
	} else {
		b.cachedBooks[cid] = book
	}
	return nil
}

// onPriceUpdate is the per-event handler: parse, track, snapshot, strategy,
// signal, mark-to-market.
func (b *Bot) onPriceUpdate(ctx context.Context, evt types.WSTradeEvent) {
	price, err := types.SafeDecimal(evt.Price)
	if err != nil {
		b.logger.Debug("discarding unparseable price", "asset", evt.AssetID, "price", evt.Price)
		return
	}
	cid, changed := b.tracker.Update(evt.AssetID, price)
	if !changed {
		return
	}

	yes, no, _ := b.tracker.Pair(cid)

	if !b.trader.ShouldSkipMarket(cid) {
		snap, err := b.buildSnapshot(cid, yes, no)
		if err != nil {
			b.logger.Warn("snapshot build failed", "condition_id", cid, "error", err)
		} else {
			hist := b.history[cid]
			prior := hist.View()
			sig := b.strat.OnSnapshot(snap, prior)
			hist.Append(snap)
			if sig != nil {
				b.applySignal(ctx, *sig, snap)
			}
		}
	}

	// Mark an open position with its own side's price.
	if outcome, ok := b.positionOutcomes[cid]; ok {
		mark := yes
		if outcome == "No" {
			mark = no
		}
		b.trader.MarkToMarket(cid, mark)
	}
}

func (b *Bot) buildSnapshot(cid string, yes, no decimal.Decimal) (types.MarketSnapshot, error) {
	market := b.cachedMarkets[cid]
	endDate := market.EndDate
	if override, ok := b.endTimeOverrides[cid]; ok {
		endDate = override
	}
	return types.NewMarketSnapshot(
		cid,
		market.Question,
		b.now().Unix(),
		yes,
		no,
		b.cachedBooks[cid],
		market.Volume,
		market.Liquidity,
		endDate,
	)
}

// applySignal turns a strategy signal into an order.
//
// SELL with an open position closes it. Otherwise the signal opens a
// position: BUY buys the YES side, SELL buys the NO side (betting the
// complement), sized by fractional Kelly on the estimated probability.
func (b *Bot) applySignal(ctx context.Context, sig types.Signal, snap types.MarketSnapshot) {
	cid := snap.ConditionID
	now := b.now().Unix()

	if sig.Side == types.Sell && b.trader.HasPosition(cid) {
		outcome := b.positionOutcomes[cid]
		price, tokenID := b.sideOf(cid, snap, outcome)
		b.refreshBookFor(ctx, cid)
		if tr := b.trader.Close(ctx, cid, tokenID, price, now); tr != nil {
			delete(b.positionOutcomes, cid)
			b.logger.Info("position closed",
				"condition_id", cid, "outcome", outcome, "price", price, "pnl", tr.PnL())
		}
		return
	}
	if b.trader.HasPosition(cid) {
		return
	}

	outcome := "Yes"
	if sig.Side == types.Sell {
		outcome = "No"
	}

	// Refresh the book just before trading; stale caches are fine to
	// proceed on if the refresh fails.
	b.refreshBookFor(ctx, cid)
	snap.Book = b.cachedBooks[cid]

	buyPrice, tokenID := b.sideOf(cid, snap, outcome)
	if !buyPrice.IsPositive() {
		return
	}

	p := sizing.EstimateProbability(buyPrice, sig.Strength)
	kelly := sizing.Fraction(p, buyPrice, b.cfg.KellyFraction)
	if !kelly.IsPositive() {
		return
	}

	quantity := b.trader.MaxQuantityFor(buyPrice).Mul(kelly).Floor()
	if quantity.LessThan(decimal.NewFromInt(1)) {
		quantity = decimal.NewFromInt(1)
	}

	if b.trader.Open(ctx, cid, tokenID, outcome, buyPrice, quantity, now) {
		b.positionOutcomes[cid] = outcome
		b.logger.Info("position opened",
			"condition_id", cid, "outcome", outcome,
			"price", buyPrice, "quantity", quantity,
			"kelly", kelly, "reason", sig.Reason)
	}
}

// sideOf resolves the price and token ID for one outcome of a market.
func (b *Bot) sideOf(cid string, snap types.MarketSnapshot, outcome string) (decimal.Decimal, string) {
	market := b.cachedMarkets[cid]
	if outcome == "No" {
		tok, _ := market.NoToken()
		return snap.NoPrice, tok.TokenID
	}
	tok, _ := market.YesToken()
	return snap.YesPrice, tok.TokenID
}

// refreshBooks re-fetches every active market's YES book (background tick).
func (b *Bot) refreshBooks(ctx context.Context) {
	for _, cid := range b.activeMarkets {
		b.refreshBookFor(ctx, cid)
	}
}

func (b *Bot) refreshBookFor(ctx context.Context, cid string) {
	yes, ok := b.cachedMarkets[cid].YesToken()
	if !ok {
		return
	}
	book, err := b.api.GetOrderBook(ctx, yes.TokenID)
	if err != nil {
		b.logger.Warn("book refresh failed", "condition_id", cid, "error", err)
		return
	}
	b.cachedBooks[cid] = book
}

// rotateMarkets rolls the active set to the new 5-minute window.
// Discovery failure or an empty result keeps the previous markets.
func (b *Bot) rotateMarkets(ctx context.Context) {
	b.trader.OnRotationClose(ctx, b.lastMarkPrices())
	b.positionOutcomes = make(map[string]string)

	discovered, err := b.api.DiscoverSeriesMarkets(ctx, b.cfg.SeriesSlugs, false)
	if err != nil {
		b.logger.Error("rotation discovery failed, keeping previous markets", "error", err)
		return
	}
	if len(discovered) == 0 {
		b.logger.Warn("rotation discovery empty, keeping previous markets")
		return
	}

	b.setMarkets(discovered)
	b.tracker.Clear()
	b.assetIDs = b.assetIDs[:0]
	b.cachedMarkets = make(map[string]types.Market)
	b.cachedBooks = make(map[string]types.OrderBook)
	b.history = make(map[string]*snapshotHistory)

	b.bootstrap(ctx)
	b.feed.UpdateSubscription(b.assetIDs)

	b.logger.Info("rotated markets",
		"window", b.currentWindow,
		"markets", len(b.activeMarkets),
		"equity", b.trader.Equity(),
		"trades", len(b.trader.Trades()))
}

// lastMarkPrices returns the last known price per open position's side.
func (b *Bot) lastMarkPrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b.positionOutcomes))
	for cid, outcome := range b.positionOutcomes {
		yes, no, ok := b.tracker.Pair(cid)
		if !ok {
			continue
		}
		if outcome == "No" {
			out[cid] = no
		} else {
			out[cid] = yes
		}
	}
	return out
}

// shutdown closes all open positions at the last known marks, flushes
// variant state, and closes the feed.
func (b *Bot) shutdown(ctx context.Context) {
	now := b.now().Unix()
	for cid, outcome := range b.positionOutcomes {
		yes, no, ok := b.tracker.Pair(cid)
		if !ok {
			continue
		}
		price := yes
		if outcome == "No" {
			price = no
		}
		market := b.cachedMarkets[cid]
		var tokenID string
		if outcome == "No" {
			tok, _ := market.NoToken()
			tokenID = tok.TokenID
		} else {
			tok, _ := market.YesToken()
			tokenID = tok.TokenID
		}
		if tr := b.trader.Close(ctx, cid, tokenID, price, now); tr != nil {
			b.logger.Info("closed position on shutdown", "condition_id", cid, "pnl", tr.PnL())
		}
	}
	b.positionOutcomes = make(map[string]string)
	b.trader.Shutdown(ctx)
	b.feed.Close()

	b.logger.Info("engine stopped",
		"ticks", b.ticks,
		"trades", len(b.trader.Trades()),
		"equity", b.trader.Equity())
}
