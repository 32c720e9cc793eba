package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFraction(t *testing.T) {
	t.Parallel()

	// Negative edge clamps to zero.
	if got := Fraction(d("0.4"), d("0.5"), d("0.25")); !got.IsZero() {
		t.Errorf("Fraction(0.4, 0.5, 0.25) = %s, want 0", got)
	}
	// Positive edge: 0.25 · (0.3 / 0.5) = 0.15.
	if got := Fraction(d("0.8"), d("0.5"), d("0.25")); !got.Equal(d("0.15")) {
		t.Errorf("Fraction(0.8, 0.5, 0.25) = %s, want 0.15", got)
	}
	// p = b is exactly zero edge.
	if got := Fraction(d("0.5"), d("0.5"), d("1")); !got.IsZero() {
		t.Errorf("Fraction(p=b) = %s, want 0", got)
	}
	// p = 1 with full multiplier is full Kelly = 1.
	if got := Fraction(d("1"), d("0.5"), d("1")); !got.Equal(d("1")) {
		t.Errorf("Fraction(p=1, f=1) = %s, want 1", got)
	}
	// b >= 1 leaves no payoff.
	if got := Fraction(d("1"), d("1"), d("1")); !got.IsZero() {
		t.Errorf("Fraction(b=1) = %s, want 0", got)
	}
}

func TestCapProbability(t *testing.T) {
	t.Parallel()

	if got := CapProbability(d("0.995")); !got.Equal(d("0.99")) {
		t.Errorf("cap = %s, want 0.99", got)
	}
	if got := CapProbability(d("0.7")); !got.Equal(d("0.7")) {
		t.Errorf("cap should pass 0.7 through, got %s", got)
	}
}

func TestEstimateProbability(t *testing.T) {
	t.Parallel()

	// b=0.6, strength=0.5 → 0.6 + 0.5·0.4 = 0.8
	if got := EstimateProbability(d("0.6"), d("0.5")); !got.Equal(d("0.8")) {
		t.Errorf("estimate = %s, want 0.8", got)
	}
	// Full-strength signal caps at 0.99, not 1.
	if got := EstimateProbability(d("0.6"), d("1")); !got.Equal(d("0.99")) {
		t.Errorf("estimate = %s, want capped 0.99", got)
	}
}
