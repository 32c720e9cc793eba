// Package sizing implements fractional-Kelly bet sizing for binary markets.
package sizing

import "github.com/shopspring/decimal"

var (
	one     = decimal.NewFromInt(1)
	probCap = decimal.RequireFromString("0.99")
)

// Fraction returns the fractional-Kelly bet fraction for a binary outcome
// bought at price b with estimated win probability p, scaled by f.
//
// Full Kelly for a contract paying 1 is k = (p − b) / (1 − b). Negative
// edges clamp to zero, and b ≥ 1 yields zero (no payoff left to win).
func Fraction(p, b, f decimal.Decimal) decimal.Decimal {
	if b.GreaterThanOrEqual(one) {
		return decimal.Zero
	}
	k := p.Sub(b).Div(one.Sub(b))
	if k.IsNegative() {
		return decimal.Zero
	}
	return f.Mul(k)
}

// CapProbability clamps an estimated probability to at most 0.99, keeping a
// residual edge denominator even for near-certain signals.
func CapProbability(p decimal.Decimal) decimal.Decimal {
	if p.GreaterThan(probCap) {
		return probCap
	}
	return p
}

// EstimateProbability converts a signal strength in [0,1] into a win
// probability: the market's buy price moved toward certainty by strength,
// then capped. estimated = min(0.99, b + strength·(1 − b)).
func EstimateProbability(buyPrice, strength decimal.Decimal) decimal.Decimal {
	return CapProbability(buyPrice.Add(strength.Mul(one.Sub(buyPrice))))
}
