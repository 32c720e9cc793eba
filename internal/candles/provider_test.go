package candles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"

	"polytrader/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func klineServer(t *testing.T, rows []klineRow) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/klines" {
			http.NotFound(w, r)
			return
		}
		start, _ := strconv.ParseInt(r.URL.Query().Get("start_time"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var page []klineRow
		for _, row := range rows {
			if row.OpenTime >= start && len(page) < limit {
				page = append(page, row)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
}

func TestProviderPaginates(t *testing.T) {
	t.Parallel()

	var rows []klineRow
	for i := int64(0); i < 5; i++ {
		rows = append(rows, klineRow{
			OpenTime: 1000 + i*3600,
			Open:     "100", High: "110", Low: "90", Close: "105", Volume: "1",
		})
	}
	srv := klineServer(t, rows)
	defer srv.Close()

	p := NewProvider(srv.URL)
	p.pageLimit = 2 // force multiple pages

	candles, err := p.GetCandles(context.Background(), "BTC", types.Interval1h, 0, 1000+5*3600)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 5 {
		t.Fatalf("candles = %d, want 5 across pages", len(candles))
	}
	for i, c := range candles {
		if c.Timestamp != 1000+int64(i)*3600 {
			t.Errorf("candle %d timestamp = %d", i, c.Timestamp)
		}
		if !c.Close.Equal(d("105")) {
			t.Errorf("candle %d close = %s", i, c.Close)
		}
	}
}

func TestProviderRejectsMalformedRow(t *testing.T) {
	t.Parallel()

	srv := klineServer(t, []klineRow{{
		OpenTime: 1000,
		Open:     "oops", High: "110", Low: "90", Close: "105", Volume: "1",
	}})
	defer srv.Close()

	p := NewProvider(srv.URL)
	if _, err := p.GetCandles(context.Background(), "BTC", types.Interval1h, 0, 9000); err == nil {
		t.Fatal("expected error for malformed numeric field")
	}
}

func TestProviderEmptyRange(t *testing.T) {
	t.Parallel()

	srv := klineServer(t, nil)
	defer srv.Close()

	candles, err := NewProvider(srv.URL).GetCandles(context.Background(), "BTC", types.Interval1h, 0, 9000)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 0 {
		t.Errorf("candles = %d, want 0", len(candles))
	}
}

func TestMemoryProviderFilters(t *testing.T) {
	t.Parallel()

	mk := func(ts int64, iv types.Interval) types.Candle {
		c, err := types.NewCandle("BTC", ts, d("1"), d("1"), d("1"), d("1"), d("0"), iv)
		if err != nil {
			t.Fatal(err)
		}
		return c
	}
	m := NewMemory()
	m.Add(mk(3000, types.Interval1h), mk(1000, types.Interval1h), mk(2000, types.Interval1m))

	got, err := m.GetCandles(context.Background(), "BTC", types.Interval1h, 0, 2500)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Timestamp != 1000 {
		t.Errorf("got %+v, want only the 1h candle at 1000 inside the range", got)
	}
}
