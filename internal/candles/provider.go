// Package candles fetches historical OHLCV data for the backtest engine.
package candles

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"polytrader/pkg/types"
)

// klineRow is the JSON shape of one bar from the kline HTTP API.
// Numeric fields arrive as strings to preserve precision.
type klineRow struct {
	OpenTime int64  `json:"open_time"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

// Provider pulls candles from a vendor kline HTTP API. Pagination is hidden:
// callers get the full [start, end] range as one list.
type Provider struct {
	httpClient *resty.Client
	pageLimit  int
}

// NewProvider creates a provider against baseURL.
func NewProvider(baseURL string) *Provider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Provider{httpClient: client, pageLimit: 1000}
}

// GetCandles fetches all candles for symbol/interval in [start, end] seconds.
// Pages are requested until one comes back short; rows failing validation
// abort the fetch rather than feeding a corrupt bar into a backtest.
func (p *Provider) GetCandles(ctx context.Context, symbol string, interval types.Interval, start, end int64) ([]types.Candle, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}

	var candles []types.Candle
	cursor := start
	for cursor <= end {
		var page []klineRow
		resp, err := p.httpClient.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":     symbol,
				"interval":   string(interval),
				"start_time": strconv.FormatInt(cursor, 10),
				"end_time":   strconv.FormatInt(end, 10),
				"limit":      strconv.Itoa(p.pageLimit),
			}).
			SetResult(&page).
			Get("/klines")
		if err != nil {
			return nil, fmt.Errorf("fetch klines %s from %d: %w", symbol, cursor, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("fetch klines %s: status %d", symbol, resp.StatusCode())
		}
		if len(page) == 0 {
			break
		}

		for _, row := range page {
			candle, err := parseRow(symbol, interval, row)
			if err != nil {
				return nil, err
			}
			candles = append(candles, candle)
		}

		if len(page) < p.pageLimit {
			break
		}
		cursor = page[len(page)-1].OpenTime + interval.Seconds()
	}

	return candles, nil
}

func parseRow(symbol string, interval types.Interval, row klineRow) (types.Candle, error) {
	open, err := types.SafeDecimal(row.Open)
	if err != nil {
		return types.Candle{}, fmt.Errorf("kline %s@%d: %w", symbol, row.OpenTime, err)
	}
	high, err := types.SafeDecimal(row.High)
	if err != nil {
		return types.Candle{}, fmt.Errorf("kline %s@%d: %w", symbol, row.OpenTime, err)
	}
	low, err := types.SafeDecimal(row.Low)
	if err != nil {
		return types.Candle{}, fmt.Errorf("kline %s@%d: %w", symbol, row.OpenTime, err)
	}
	cls, err := types.SafeDecimal(row.Close)
	if err != nil {
		return types.Candle{}, fmt.Errorf("kline %s@%d: %w", symbol, row.OpenTime, err)
	}
	volume, err := types.SafeDecimal(row.Volume)
	if err != nil {
		return types.Candle{}, fmt.Errorf("kline %s@%d: %w", symbol, row.OpenTime, err)
	}
	return types.NewCandle(symbol, row.OpenTime, open, high, low, cls, volume, interval)
}
