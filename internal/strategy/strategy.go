// Package strategy defines the interfaces concrete trading strategies
// implement, and a named registry the entrypoints resolve them from.
//
// The platform ships no production strategies; they register themselves via
// Register from their own packages (or tests register fakes).
package strategy

import (
	"fmt"
	"sort"

	"polytrader/pkg/types"
)

// Strategy consumes candles in a backtest. OnCandle receives the current
// candle and the history of prior candles in timestamp order; it returns nil
// when no action is warranted.
type Strategy interface {
	Name() string
	OnCandle(candle types.Candle, history []types.Candle) *types.Signal
}

// PredictionMarketStrategy consumes market snapshots in the live/paper
// engine. History holds the snapshots that arrived before snap, oldest
// first; snap itself is appended only after OnSnapshot returns.
type PredictionMarketStrategy interface {
	Name() string
	OnSnapshot(snap types.MarketSnapshot, history []types.MarketSnapshot) *types.Signal
}

var (
	candleFactories   = map[string]func() Strategy{}
	snapshotFactories = map[string]func() PredictionMarketStrategy{}
)

// Register adds a candle-strategy factory under key. Later registrations
// with the same key replace earlier ones.
func Register(key string, factory func() Strategy) {
	candleFactories[key] = factory
}

// RegisterSnapshot adds a snapshot-strategy factory under key.
func RegisterSnapshot(key string, factory func() PredictionMarketStrategy) {
	snapshotFactories[key] = factory
}

// New resolves a candle strategy by key.
func New(key string) (Strategy, error) {
	factory, ok := candleFactories[key]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %v)", key, Keys())
	}
	return factory(), nil
}

// NewSnapshot resolves a snapshot strategy by key.
func NewSnapshot(key string) (PredictionMarketStrategy, error) {
	factory, ok := snapshotFactories[key]
	if !ok {
		return nil, fmt.Errorf("unknown snapshot strategy %q (registered: %v)", key, SnapshotKeys())
	}
	return factory(), nil
}

// Keys lists registered candle-strategy keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(candleFactories))
	for k := range candleFactories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SnapshotKeys lists registered snapshot-strategy keys, sorted.
func SnapshotKeys() []string {
	keys := make([]string, 0, len(snapshotFactories))
	for k := range snapshotFactories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
