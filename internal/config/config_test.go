package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const testYAML = `
dry_run: false
api:
  clob_base_url: https://clob.example.com
  gamma_base_url: https://gamma.example.com
  ws_market_url: wss://ws.example.com/market
execution:
  taker_fee_pct: "0.001"
  slippage_pct: "0.0005"
  position_size_pct: "0.25"
  volatility_sizing: true
  atr_period: 14
  target_risk_pct: "0.02"
risk:
  stop_loss_pct: "0.05"
  take_profit_pct: "0.10"
  circuit_breaker_pct: "0.15"
  recovery_pct: "0.05"
bot:
  mode: paper
  initial_capital: 1000
  max_position_pct: "0.1"
  kelly_fraction: "0.25"
  max_history: 100
  order_book_refresh: 30s
  series_slugs:
    - btc-up-or-down-5m
collector:
  db_url: ticks.db
  flush_batch_size: 100
  flush_interval: 10s
  discovery_lead: 30s
logging:
  level: info
  format: text
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if !cfg.Execution.PositionSizePct.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("position_size_pct = %s", cfg.Execution.PositionSizePct)
	}
	if !cfg.Risk.StopLossPct.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("stop_loss_pct = %s", cfg.Risk.StopLossPct)
	}
	if cfg.Bot.OrderBookRefresh != 30*time.Second {
		t.Errorf("order_book_refresh = %v", cfg.Bot.OrderBookRefresh)
	}
	if cfg.Collector.DiscoveryLead != 30*time.Second {
		t.Errorf("discovery_lead = %v", cfg.Collector.DiscoveryLead)
	}
	if len(cfg.Bot.SeriesSlugs) != 1 || cfg.Bot.SeriesSlugs[0] != "btc-up-or-down-5m" {
		t.Errorf("series_slugs = %v", cfg.Bot.SeriesSlugs)
	}
	if !cfg.Bot.InitialCapital.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("initial_capital = %s", cfg.Bot.InitialCapital)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PT_API_KEY", "env-key")
	t.Setenv("PT_DB_URL", "env.db")

	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.ApiKey != "env-key" {
		t.Errorf("api key = %q, want env override", cfg.API.ApiKey)
	}
	if cfg.Collector.DBURL != "env.db" {
		t.Errorf("db url = %q, want env override", cfg.Collector.DBURL)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	bad := *cfg
	bad.Execution.PositionSizePct = decimal.RequireFromString("1.5")
	if err := bad.Validate(); err == nil {
		t.Error("expected error for position_size_pct > 1")
	}

	bad = *cfg
	bad.Risk.CircuitBreakerPct = decimal.RequireFromString("-0.1")
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative circuit_breaker_pct")
	}

	bad = *cfg
	bad.Bot.KellyFraction = decimal.Zero
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero kelly_fraction")
	}

	bad = *cfg
	bad.Bot.Mode = "replay"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown bot mode")
	}
}

func TestValidateLiveRequiresWallet(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.ValidateLive(); err == nil {
		t.Error("expected error: live mode without private key")
	}
	cfg.Wallet.PrivateKey = "0xabc"
	cfg.Wallet.ChainID = 137
	if err := cfg.ValidateLive(); err != nil {
		t.Errorf("ValidateLive: %v", err)
	}
}
