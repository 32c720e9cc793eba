package exchange

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurstThenBlock(t *testing.T) {
	t.Parallel()
	// 3 token burst, 10/sec refill (~100ms per token once drained).
	tb := NewTokenBucket(3, 10)

	for i := 0; i < 3; i++ {
		start := time.Now()
		if err := tb.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
		if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
			t.Errorf("burst token %d took %v, expected immediate", i, elapsed)
		}
	}

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond || elapsed > 300*time.Millisecond {
		t.Errorf("drained Wait took %v, expected ~100ms", elapsed)
	}
}

func TestTokenBucketHonorsContext(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 0.1) // ~10s per token once drained
	_ = tb.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Error("expected context error while waiting for a token")
	}
}

func TestRateLimiterCategories(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter()
	if rl.Order.capacity != 350 || rl.Book.capacity != 150 || rl.Data.capacity != 100 {
		t.Errorf("capacities = %v/%v/%v", rl.Order.capacity, rl.Book.capacity, rl.Data.capacity)
	}
}
