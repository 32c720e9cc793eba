package engine

import "polytrader/pkg/types"

// snapshotHistory is a size-capped snapshot deque for one market: append
// evicts the oldest entry once max is reached. Strategies receive a copy, so
// a misbehaving strategy cannot corrupt the engine's view.
type snapshotHistory struct {
	buf []types.MarketSnapshot
	max int
}

func newSnapshotHistory(max int) *snapshotHistory {
	return &snapshotHistory{max: max}
}

// Append adds snap, evicting the oldest entry when full.
func (h *snapshotHistory) Append(snap types.MarketSnapshot) {
	if len(h.buf) == h.max {
		copy(h.buf, h.buf[1:])
		h.buf[len(h.buf)-1] = snap
		return
	}
	h.buf = append(h.buf, snap)
}

// View returns a copy of the history, oldest first.
func (h *snapshotHistory) View() []types.MarketSnapshot {
	out := make([]types.MarketSnapshot, len(h.buf))
	copy(out, h.buf)
	return out
}

// Len returns the number of stored snapshots.
func (h *snapshotHistory) Len() int { return len(h.buf) }
