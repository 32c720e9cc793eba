package candles

import (
	"context"
	"sort"

	"polytrader/pkg/types"
)

// Memory is an in-memory candle provider for fixtures and tests.
type Memory struct {
	bySymbol map[string][]types.Candle
}

// NewMemory creates an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{bySymbol: make(map[string][]types.Candle)}
}

// Add appends candles for their symbols, keeping each series timestamp-sorted.
func (m *Memory) Add(candles ...types.Candle) {
	for _, c := range candles {
		m.bySymbol[c.Symbol] = append(m.bySymbol[c.Symbol], c)
	}
	for symbol := range m.bySymbol {
		series := m.bySymbol[symbol]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp < series[j].Timestamp
		})
	}
}

// GetCandles returns the stored candles for symbol with timestamps in
// [start, end], matching interval.
func (m *Memory) GetCandles(_ context.Context, symbol string, interval types.Interval, start, end int64) ([]types.Candle, error) {
	var out []types.Candle
	for _, c := range m.bySymbol[symbol] {
		if c.Interval == interval && c.Timestamp >= start && c.Timestamp <= end {
			out = append(out, c)
		}
	}
	return out, nil
}
