package engine

import "github.com/shopspring/decimal"

// assetRef resolves a feed asset ID to the market and side it prices.
type assetRef struct {
	conditionID string
	outcome     string // "Yes" or "No"
}

// pricePair is the last seen price per side of one market.
type pricePair struct {
	yes decimal.Decimal
	no  decimal.Decimal
}

// priceTracker is the many-to-one map behind the event loop: asset ID →
// (condition ID, side), plus the last (yes, no) pair per market. An update
// reports the affected market only when it actually changed the pair, so the
// loop can cheaply discard redundant prints.
//
// Owned by the Bot goroutine; no locking.
type priceTracker struct {
	assets map[string]assetRef
	prices map[string]pricePair
}

func newPriceTracker() *priceTracker {
	return &priceTracker{
		assets: make(map[string]assetRef),
		prices: make(map[string]pricePair),
	}
}

// Register maps an asset ID to one side of a market.
func (t *priceTracker) Register(assetID, conditionID, outcome string) {
	t.assets[assetID] = assetRef{conditionID: conditionID, outcome: outcome}
}

// Seed sets a market's starting pair (from market metadata at bootstrap).
func (t *priceTracker) Seed(conditionID string, yes, no decimal.Decimal) {
	t.prices[conditionID] = pricePair{yes: yes, no: no}
}

// Update records a price print for assetID. Returns the affected condition
// ID and true when the market's (yes, no) pair changed; ("", false) for
// unknown assets or no-op prints.
func (t *priceTracker) Update(assetID string, price decimal.Decimal) (string, bool) {
	ref, ok := t.assets[assetID]
	if !ok {
		return "", false
	}
	pair := t.prices[ref.conditionID]
	next := pair
	if ref.outcome == "Yes" {
		next.yes = price
	} else {
		next.no = price
	}
	if next.yes.Equal(pair.yes) && next.no.Equal(pair.no) {
		return "", false
	}
	t.prices[ref.conditionID] = next
	return ref.conditionID, true
}

// Pair returns the last (yes, no) prices for a market.
func (t *priceTracker) Pair(conditionID string) (yes, no decimal.Decimal, ok bool) {
	pair, ok := t.prices[conditionID]
	return pair.yes, pair.no, ok
}

// Clear drops all registrations and prices (market rotation).
func (t *priceTracker) Clear() {
	t.assets = make(map[string]assetRef)
	t.prices = make(map[string]pricePair)
}
