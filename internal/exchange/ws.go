// ws.go implements the market-channel WebSocket feed.
//
// The feed subscribes by asset ID (token ID) and surfaces only
// "last_trade_price" events; every other message type is dropped. It
// auto-reconnects with exponential backoff (base delay doubling up to 60s,
// reset on any successful event). UpdateSubscription closes the socket — the
// server silently ignores resubscribes on a live connection — and the run
// loop reconnects immediately, bypassing the backoff sleep exactly once.
// A read deadline (90s) ensures silent server failures are detected within
// ~2 missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"polytrader/pkg/types"
)

const (
	pingInterval       = 50 * time.Second // how often we send PING to keep alive
	readTimeout        = 90 * time.Second // ~2 missed pings triggers reconnect
	maxReconnectWait   = 60 * time.Second // cap on exponential backoff
	writeTimeout       = 10 * time.Second // deadline for outgoing messages
	tradeEventBuffer   = 256              // buffer for trade-price events
	defaultBackoffBase = time.Second
)

// MarketFeed maintains a market-channel WebSocket connection and delivers
// parsed trade events on Events(). One goroutine runs Run; consumers read
// the channel; UpdateSubscription and Close may be called from any goroutine.
type MarketFeed struct {
	url    string
	logger *slog.Logger

	mu                 sync.Mutex
	conn               *websocket.Conn
	assetIDs           []string
	closed             bool
	reconnectRequested bool

	backoffBase time.Duration
	events      chan types.WSTradeEvent
}

// NewMarketFeed creates a feed for wsURL, initially subscribed to assetIDs.
func NewMarketFeed(wsURL string, assetIDs []string, logger *slog.Logger) *MarketFeed {
	return &MarketFeed{
		url:         wsURL,
		assetIDs:    append([]string(nil), assetIDs...),
		backoffBase: defaultBackoffBase,
		events:      make(chan types.WSTradeEvent, tradeEventBuffer),
		logger:      logger.With("component", "market_feed"),
	}
}

// Events returns the channel trade events are delivered on. It is closed
// when Run returns.
func (f *MarketFeed) Events() <-chan types.WSTradeEvent { return f.events }

// Run connects and maintains the connection until ctx is cancelled or Close
// is called. The events channel is closed on return.
func (f *MarketFeed) Run(ctx context.Context) error {
	defer close(f.events)

	backoff := f.backoffBase
	for {
		gotEvent, err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if f.isClosed() {
			return nil
		}
		if gotEvent {
			backoff = f.backoffBase
		}

		// A requested reconnect (subscription change) skips the sleep once;
		// a transport failure pays the current backoff.
		if f.takeReconnectRequest() {
			f.logger.Info("reconnecting for subscription update")
			continue
		}

		f.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// UpdateSubscription replaces the subscribed asset set and forces a
// reconnect. Safe to call while disconnected: the next connect uses the new
// list and no duplicate subscribe is sent.
func (f *MarketFeed) UpdateSubscription(assetIDs []string) {
	f.mu.Lock()
	f.assetIDs = append([]string(nil), assetIDs...)
	f.reconnectRequested = true
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Close shuts the feed down permanently. Run returns and subsequent
// transport errors are suppressed.
func (f *MarketFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (f *MarketFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// takeReconnectRequest consumes the reconnect-requested flag.
func (f *MarketFeed) takeReconnectRequest() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	requested := f.reconnectRequested
	f.reconnectRequested = false
	return requested
}

func (f *MarketFeed) connectAndRead(ctx context.Context) (gotEvent bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return false, nil
	}
	f.conn = conn
	ids := append([]string(nil), f.assetIDs...)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		conn.Close()
		f.conn = nil
		f.mu.Unlock()
	}()

	sub := types.WSSubscribeMsg{Type: "market", AssetIDs: ids}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected", "assets", len(ids))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return gotEvent, ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return gotEvent, fmt.Errorf("read: %w", err)
		}

		if f.dispatchMessage(msg) {
			gotEvent = true
		}
	}
}

// dispatchMessage parses one wire message and reports whether a trade event
// was delivered. Only last_trade_price events reach consumers.
func (f *MarketFeed) dispatchMessage(data []byte) bool {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return false
	}

	if envelope.EventType != "last_trade_price" {
		f.logger.Debug("ignoring event", "type", envelope.EventType)
		return false
	}

	var evt types.WSTradeEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		f.logger.Error("unmarshal trade event", "error", err)
		return false
	}

	select {
	case f.events <- evt:
		return true
	default:
		f.logger.Warn("trade channel full, dropping event", "asset", evt.AssetID)
		return false
	}
}

func (f *MarketFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}
