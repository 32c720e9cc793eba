package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"polytrader/pkg/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openTestRepo(t *testing.T) *TickRepo {
	t.Helper()
	repo, err := OpenTickRepo(filepath.Join(t.TempDir(), "ticks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func tick(assetID, conditionID, price string, ts int64) types.Tick {
	return types.Tick{
		AssetID:      assetID,
		ConditionID:  conditionID,
		Price:        d(price),
		Size:         d("5"),
		Side:         "BUY",
		TimestampMs:  ts,
		ReceivedAtMs: ts + 1,
	}
}

func TestTickRoundTrip(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	ctx := context.Background()

	err := repo.SaveTicks(ctx, []types.Tick{
		tick("tok-yes", "cond-1", "0.52", 2000),
		tick("tok-yes", "cond-1", "0.51", 1000),
		tick("tok-no", "cond-1", "0.49", 1500),
		tick("other", "cond-2", "0.9", 1200),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetTicks(ctx, "tok-yes", 0, 10_000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].TimestampMs != 1000 || got[1].TimestampMs != 2000 {
		t.Fatalf("ticks = %+v, want two in timestamp order", got)
	}
	if !got[0].Price.Equal(d("0.51")) || !got[0].Size.Equal(d("5")) {
		t.Errorf("tick values = %+v", got[0])
	}

	// Time window and limit apply.
	got, err = repo.GetTicks(ctx, "tok-yes", 1500, 10_000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TimestampMs != 2000 {
		t.Errorf("windowed ticks = %+v", got)
	}
	got, err = repo.GetTicks(ctx, "tok-yes", 0, 10_000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TimestampMs != 1000 {
		t.Errorf("limited ticks = %+v", got)
	}
}

func TestTicksByConditionAndCounts(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	ctx := context.Background()

	err := repo.SaveTicks(ctx, []types.Tick{
		tick("tok-yes", "cond-1", "0.5", 1000),
		tick("tok-no", "cond-1", "0.5", 1100),
		tick("other", "cond-2", "0.9", 1200),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetTicksByCondition(ctx, "cond-1", 0, 10_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("condition ticks = %d, want both sides", len(got))
	}

	ids, err := repo.GetDistinctConditionIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "cond-1" || ids[1] != "cond-2" {
		t.Errorf("condition ids = %v", ids)
	}

	n, err := repo.GetTickCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestSaveTicksEmptyBatchIsNoOp(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	if err := repo.SaveTicks(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	n, err := repo.GetTickCount(context.Background())
	if err != nil || n != 0 {
		t.Errorf("count = %d, %v", n, err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ticks.db")
	repo, err := OpenTickRepo(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveTicks(context.Background(), []types.Tick{tick("a", "c", "0.5", 1)}); err != nil {
		t.Fatal(err)
	}
	repo.Close()

	// Re-opening keeps existing data.
	repo, err = OpenTickRepo(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	n, err := repo.GetTickCount(context.Background())
	if err != nil || n != 1 {
		t.Errorf("count after reopen = %d, %v", n, err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := OpenSessions(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// Nothing saved yet.
	sess, err := store.LoadSession()
	if err != nil || sess != nil {
		t.Fatalf("fresh load = %+v, %v", sess, err)
	}

	trades := []types.Trade{{
		Symbol: "cond-1", Side: types.Buy,
		Quantity: d("10"), EntryPrice: d("0.5"), ExitPrice: d("0.6"),
	}}
	if err := store.SaveSession(1234, d("995"), d("1001"), trades); err != nil {
		t.Fatal(err)
	}

	sess, err = store.LoadSession()
	if err != nil {
		t.Fatal(err)
	}
	if sess.SavedAt != 1234 || !sess.Capital.Equal(d("995")) || !sess.Equity.Equal(d("1001")) {
		t.Errorf("session = %+v", sess)
	}
	if len(sess.Trades) != 1 || !sess.Trades[0].ExitPrice.Equal(d("0.6")) {
		t.Errorf("trades = %+v", sess.Trades)
	}
}
