package strategy

import (
	"testing"

	"polytrader/pkg/types"
)

type stubStrategy struct{ name string }

func (s *stubStrategy) Name() string                                  { return s.name }
func (s *stubStrategy) OnCandle(types.Candle, []types.Candle) *types.Signal { return nil }

func TestRegistryResolvesByKey(t *testing.T) {
	Register("stub", func() Strategy { return &stubStrategy{name: "stub"} })

	s, err := New("stub")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name() != "stub" {
		t.Errorf("name = %q", s.Name())
	}
	if _, err := New("missing"); err == nil {
		t.Error("expected error for unknown key")
	}
}

type stubSnapshotStrategy struct{}

func (stubSnapshotStrategy) Name() string { return "snap-stub" }
func (stubSnapshotStrategy) OnSnapshot(types.MarketSnapshot, []types.MarketSnapshot) *types.Signal {
	return nil
}

func TestSnapshotRegistry(t *testing.T) {
	RegisterSnapshot("snap-stub", func() PredictionMarketStrategy { return stubSnapshotStrategy{} })

	if _, err := NewSnapshot("snap-stub"); err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if _, err := NewSnapshot("missing"); err == nil {
		t.Error("expected error for unknown snapshot key")
	}
}
