// Package collector implements the tick recording service: it subscribes to
// trade prints for a set of markets, buffers them, and persists them in
// batches. Market sets that recur on a 5-minute cadence are re-discovered
// shortly before each window boundary so the new window's prints are never
// missed.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"polytrader/internal/config"
	"polytrader/pkg/types"
)

const windowSeconds = 300

// DiscoveryAPI is the slice of the exchange client the collector needs.
type DiscoveryAPI interface {
	GetMarket(ctx context.Context, conditionID string) (types.Market, error)
	DiscoverSeriesMarkets(ctx context.Context, slugs []string, includeNext bool) ([]types.SeriesMarket, error)
}

// Feed is the streaming market-data source.
type Feed interface {
	Events() <-chan types.WSTradeEvent
	UpdateSubscription(assetIDs []string)
	Close() error
}

// TickWriter persists tick batches.
type TickWriter interface {
	SaveTicks(ctx context.Context, ticks []types.Tick) error
}

// Collector is the recording loop. One goroutine owns all state.
type Collector struct {
	cfg    config.CollectorConfig
	api    DiscoveryAPI
	feed   Feed
	repo   TickWriter
	logger *slog.Logger

	buffer         []types.Tick
	assetIDs       []string
	known          map[string]string // asset ID → condition ID
	conditions     map[string]bool
	saved          int64
	sinceHeartbeat int
	lastFlush      time.Time

	now func() time.Time
}

// New creates a collector. The feed must be started by the caller.
func New(cfg config.CollectorConfig, api DiscoveryAPI, feed Feed, repo TickWriter, logger *slog.Logger) *Collector {
	return &Collector{
		cfg:        cfg,
		api:        api,
		feed:       feed,
		repo:       repo,
		logger:     logger.With("component", "collector"),
		known:      make(map[string]string),
		conditions: make(map[string]bool),
		now:        time.Now,
	}
}

// Run records ticks until ctx is cancelled. On the way out the remaining
// events are drained, the buffer is flushed, and the feed is closed.
func (c *Collector) Run(ctx context.Context) error {
	c.resolveStatic(ctx)
	if len(c.cfg.SeriesSlugs) > 0 {
		c.discover(ctx)
	}
	if len(c.assetIDs) == 0 {
		return fmt.Errorf("no markets resolved, nothing to record")
	}
	c.feed.UpdateSubscription(c.assetIDs)
	c.lastFlush = c.now()

	flushInterval := c.cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	flushTick := time.NewTicker(flushInterval)
	defer flushTick.Stop()
	heartbeat := time.NewTicker(time.Minute)
	defer heartbeat.Stop()
	discovery := time.NewTimer(NextDiscoveryDelay(c.now(), c.cfg.DiscoveryLead))
	defer discovery.Stop()
	if len(c.cfg.SeriesSlugs) == 0 {
		discovery.Stop()
	}

	c.logger.Info("collector started", "assets", len(c.assetIDs), "markets", len(c.conditions))

	for {
		select {
		case <-ctx.Done():
			c.drain()
			c.flush(context.WithoutCancel(ctx))
			c.feed.Close()
			c.logger.Info("collector stopped", "saved", c.saved)
			return ctx.Err()

		case evt, ok := <-c.feed.Events():
			if !ok {
				c.flush(context.WithoutCancel(ctx))
				return fmt.Errorf("market feed closed")
			}
			c.onEvent(evt)
			if c.cfg.FlushBatch > 0 && len(c.buffer) >= c.cfg.FlushBatch {
				c.flush(ctx)
			}

		case <-flushTick.C:
			if len(c.buffer) > 0 && c.now().Sub(c.lastFlush) >= flushInterval {
				c.flush(ctx)
			}

		case <-heartbeat.C:
			c.logger.Info("heartbeat",
				"ticks_last_minute", c.sinceHeartbeat,
				"buffered", len(c.buffer),
				"saved", c.saved,
				"assets", len(c.assetIDs))
			c.sinceHeartbeat = 0

		case <-discovery.C:
			c.discover(ctx)
			discovery.Reset(NextDiscoveryDelay(c.now(), c.cfg.DiscoveryLead))
		}
	}
}

// NextDiscoveryDelay returns the wait until the next discovery run: lead
// before the upcoming 5-minute window boundary. If the lead point for the
// current window has already passed, the next window's is targeted.
func NextDiscoveryDelay(now time.Time, lead time.Duration) time.Duration {
	secs := windowSeconds - now.Unix()%windowSeconds - int64(lead/time.Second)
	if secs <= 0 {
		secs += windowSeconds
	}
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// onEvent converts a trade print into a buffered tick. Prints with an
// unparseable price are discarded.
func (c *Collector) onEvent(evt types.WSTradeEvent) {
	price, err := types.SafeDecimal(evt.Price)
	if err != nil {
		c.logger.Debug("discarding unparseable print", "asset", evt.AssetID, "price", evt.Price)
		return
	}
	size, _ := types.SafeDecimal(evt.Size)
	ts, _ := strconv.ParseInt(evt.Timestamp, 10, 64)
	fee, _ := strconv.Atoi(evt.FeeRateBps)

	cid := evt.Market
	if cid == "" {
		cid = c.known[evt.AssetID]
	}

	c.buffer = append(c.buffer, types.Tick{
		AssetID:      evt.AssetID,
		ConditionID:  cid,
		Price:        price,
		Size:         size,
		Side:         evt.Side,
		FeeRateBps:   fee,
		TimestampMs:  ts,
		ReceivedAtMs: c.now().UnixMilli(),
	})
	c.sinceHeartbeat++
}

// flush persists the buffer. One retry on failure; a batch that fails twice
// is dropped so a dead database cannot grow the buffer without bound.
func (c *Collector) flush(ctx context.Context) {
	if len(c.buffer) == 0 {
		return
	}
	batch := c.buffer
	c.buffer = nil
	c.lastFlush = c.now()

	if err := c.repo.SaveTicks(ctx, batch); err != nil {
		c.logger.Warn("tick save failed, retrying", "ticks", len(batch), "error", err)
		if err := c.repo.SaveTicks(ctx, batch); err != nil {
			c.logger.Error("tick save failed twice, dropping batch", "ticks", len(batch), "error", err)
			return
		}
	}
	c.saved += int64(len(batch))
}

// drain consumes whatever is already queued on the feed without blocking.
func (c *Collector) drain() {
	for {
		select {
		case evt, ok := <-c.feed.Events():
			if !ok {
				return
			}
			c.onEvent(evt)
		default:
			return
		}
	}
}

// resolveStatic resolves the statically configured condition IDs into asset
// subscriptions. Per-market failures are logged and skipped.
func (c *Collector) resolveStatic(ctx context.Context) {
	for _, cid := range c.cfg.Markets {
		market, err := c.api.GetMarket(ctx, cid)
		if err != nil {
			c.logger.Warn("market resolution failed", "condition_id", cid, "error", err)
			continue
		}
		c.addMarket(market)
	}
}

// discover resolves the series slugs into the current and upcoming windows'
// markets, fetching token IDs for unseen markets concurrently. Only new
// asset IDs are appended; the subscription is updated when any were.
func (c *Collector) discover(ctx context.Context) {
	discovered, err := c.api.DiscoverSeriesMarkets(ctx, c.cfg.SeriesSlugs, true)
	if err != nil {
		c.logger.Warn("series discovery failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	results := make(chan types.Market, len(discovered))
	for _, sm := range discovered {
		if c.conditions[sm.ConditionID] {
			continue
		}
		wg.Add(1)
		go func(cid string) {
			defer wg.Done()
			market, err := c.api.GetMarket(ctx, cid)
			if err != nil {
				c.logger.Warn("market resolution failed", "condition_id", cid, "error", err)
				return
			}
			results <- market
		}(sm.ConditionID)
	}
	wg.Wait()
	close(results)

	added := 0
	for market := range results {
		added += c.addMarket(market)
	}
	if added > 0 {
		c.feed.UpdateSubscription(c.assetIDs)
		c.logger.Info("subscription extended", "new_assets", added, "total", len(c.assetIDs))
	}
}

// addMarket registers a market's tokens, returning how many were new.
func (c *Collector) addMarket(market types.Market) int {
	c.conditions[market.ConditionID] = true
	added := 0
	for _, tok := range market.Tokens {
		if _, seen := c.known[tok.TokenID]; seen {
			continue
		}
		c.known[tok.TokenID] = market.ConditionID
		c.assetIDs = append(c.assetIDs, tok.TokenID)
		added++
	}
	return added
}
