package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SafeDecimal parses a string price or size from an external feed.
//
// The empty string maps to zero: upstream APIs omit optional numeric fields
// by sending "". A malformed non-empty string is an error, never a silent
// zero — a corrupted feed should surface, not trade at 0.
func SafeDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}
