// Package config defines all configuration for the trading platform.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via PT_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	API       APIConfig       `mapstructure:"api"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Bot       BotConfig       `mapstructure:"bot"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Collector CollectorConfig `mapstructure:"collector"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// WalletConfig holds the Ethereum wallet used for signing live orders.
// PrivateKey signs L1 (EIP-712) auth and derives L2 API keys.
// FunderAddress is the on-chain address that funds orders (may differ from signer if using a proxy).
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	FunderAddress string `mapstructure:"funder_address"`
	ChainID       int    `mapstructure:"chain_id"`
}

// APIConfig holds vendor endpoints and optional pre-derived L2 credentials.
// If ApiKey/Secret/Passphrase are empty, the live bot derives them via L1 auth
// on startup. CandleBaseURL points at the kline HTTP API used by backtests.
type APIConfig struct {
	CLOBBaseURL   string `mapstructure:"clob_base_url"`
	GammaBaseURL  string `mapstructure:"gamma_base_url"`
	WSMarketURL   string `mapstructure:"ws_market_url"`
	CandleBaseURL string `mapstructure:"candle_base_url"`
	ApiKey        string `mapstructure:"api_key"`
	Secret        string `mapstructure:"secret"`
	Passphrase    string `mapstructure:"passphrase"`
}

// ExecutionConfig models fills: fees, slippage, and position sizing.
// All percentage fields are fractions (0.01 = 1%).
type ExecutionConfig struct {
	MakerFeePct      decimal.Decimal `mapstructure:"maker_fee_pct"`
	TakerFeePct      decimal.Decimal `mapstructure:"taker_fee_pct"`
	SlippagePct      decimal.Decimal `mapstructure:"slippage_pct"`
	PositionSizePct  decimal.Decimal `mapstructure:"position_size_pct"`
	VolatilitySizing bool            `mapstructure:"volatility_sizing"`
	ATRPeriod        int             `mapstructure:"atr_period"`
	TargetRiskPct    decimal.Decimal `mapstructure:"target_risk_pct"`
}

// RiskConfig sets per-position exits and the equity circuit breaker.
// A zero value disables the corresponding trigger.
//
//   - StopLossPct / TakeProfitPct: exit thresholds relative to entry price.
//   - CircuitBreakerPct: drawdown from peak equity that halts new entries.
//   - RecoveryPct: recovery from the trip equity required to re-arm.
type RiskConfig struct {
	StopLossPct       decimal.Decimal `mapstructure:"stop_loss_pct"`
	TakeProfitPct     decimal.Decimal `mapstructure:"take_profit_pct"`
	CircuitBreakerPct decimal.Decimal `mapstructure:"circuit_breaker_pct"`
	RecoveryPct       decimal.Decimal `mapstructure:"recovery_pct"`
}

// BotConfig drives the live/paper trading engine.
//
//   - Mode: "paper" or "live".
//   - Markets: static condition IDs traded when no series slugs are set.
//   - MarketEndTimes: precise ISO resolution times keyed by condition ID
//     (the CLOB often returns only a date).
//   - SeriesSlugs: recurring series resolved at each 5-minute rotation.
//   - MaxHistory: snapshot history kept per market (bounded deque size).
//   - MaxTicks: stop after this many feed events (0 = unbounded).
//   - MaxLossPct: live loss limit relative to the initial balance.
type BotConfig struct {
	Mode             string            `mapstructure:"mode"`
	Strategy         string            `mapstructure:"strategy"`
	PollInterval     time.Duration     `mapstructure:"poll_interval"`
	InitialCapital   decimal.Decimal   `mapstructure:"initial_capital"`
	MaxPositionPct   decimal.Decimal   `mapstructure:"max_position_pct"`
	KellyFraction    decimal.Decimal   `mapstructure:"kelly_fraction"`
	MaxHistory       int               `mapstructure:"max_history"`
	Markets          []string          `mapstructure:"markets"`
	MarketEndTimes   map[string]string `mapstructure:"market_end_times"`
	SeriesSlugs      []string          `mapstructure:"series_slugs"`
	OrderBookRefresh time.Duration     `mapstructure:"order_book_refresh"`
	MaxTicks         int               `mapstructure:"max_ticks"`
	MaxLossPct       decimal.Decimal   `mapstructure:"max_loss_pct"`
}

// BacktestConfig drives the cmd/backtest runner.
type BacktestConfig struct {
	Strategy       string          `mapstructure:"strategy"`
	Symbols        []string        `mapstructure:"symbols"`
	Interval       string          `mapstructure:"interval"`
	StartTime      int64           `mapstructure:"start_time"`
	EndTime        int64           `mapstructure:"end_time"`
	InitialCapital decimal.Decimal `mapstructure:"initial_capital"`
}

// CollectorConfig drives the tick collector service.
type CollectorConfig struct {
	DBURL         string        `mapstructure:"db_url"`
	Markets       []string      `mapstructure:"markets"`
	SeriesSlugs   []string      `mapstructure:"series_slugs"`
	FlushBatch    int           `mapstructure:"flush_batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	DiscoveryLead time.Duration `mapstructure:"discovery_lead"`
}

// StoreConfig sets where paper-session data is persisted (JSON files).
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewLogger builds the process logger: text or JSON on stdout at the
// configured level (default info).
func (c LoggingConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// decimalHook converts YAML scalars (string, int, float) into decimal.Decimal
// during unmarshal, so price-bearing knobs never pass through float64 math.
func decimalHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(decimal.Decimal{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if v == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(v)
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		// YAML numerics arrive as float64; the literal text is gone by now,
		// so convert once here and nowhere else.
		return decimal.NewFromFloat(v), nil
	default:
		return nil, fmt.Errorf("cannot decode %T into decimal", data)
	}
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: PT_PRIVATE_KEY, PT_API_KEY, PT_API_SECRET,
// PT_PASSPHRASE, PT_DB_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		decimalHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("PT_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("PT_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("PT_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
	if pass := os.Getenv("PT_PASSPHRASE"); pass != "" {
		cfg.API.Passphrase = pass
	}
	if url := os.Getenv("PT_DB_URL"); url != "" {
		cfg.Collector.DBURL = url
	}
	if os.Getenv("PT_DRY_RUN") == "true" || os.Getenv("PT_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

var one = decimal.NewFromInt(1)

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if err := c.Execution.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Bot.Validate(); err != nil {
		return err
	}
	return c.Collector.Validate()
}

// ValidateLive checks the extra fields only a live bot needs.
func (c *Config) ValidateLive() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required for live mode (set PT_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required (137 for mainnet)")
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
	}
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	return nil
}

func (c ExecutionConfig) Validate() error {
	if c.MakerFeePct.IsNegative() || c.TakerFeePct.IsNegative() {
		return fmt.Errorf("execution fees must be >= 0")
	}
	if c.SlippagePct.IsNegative() || c.SlippagePct.GreaterThan(one) {
		return fmt.Errorf("execution.slippage_pct must be in [0,1]")
	}
	if !c.PositionSizePct.IsPositive() || c.PositionSizePct.GreaterThan(one) {
		return fmt.Errorf("execution.position_size_pct must be in (0,1]")
	}
	if c.VolatilitySizing {
		if c.ATRPeriod <= 0 {
			return fmt.Errorf("execution.atr_period must be > 0 when volatility_sizing is on")
		}
		if !c.TargetRiskPct.IsPositive() {
			return fmt.Errorf("execution.target_risk_pct must be > 0 when volatility_sizing is on")
		}
	}
	return nil
}

func (c RiskConfig) Validate() error {
	for name, v := range map[string]decimal.Decimal{
		"risk.stop_loss_pct":       c.StopLossPct,
		"risk.take_profit_pct":     c.TakeProfitPct,
		"risk.circuit_breaker_pct": c.CircuitBreakerPct,
		"risk.recovery_pct":        c.RecoveryPct,
	} {
		if v.IsNegative() || v.GreaterThan(one) {
			return fmt.Errorf("%s must be in [0,1]", name)
		}
	}
	return nil
}

func (c BotConfig) Validate() error {
	switch c.Mode {
	case "", "paper", "live":
	default:
		return fmt.Errorf("bot.mode must be \"paper\" or \"live\"")
	}
	if c.InitialCapital.IsNegative() {
		return fmt.Errorf("bot.initial_capital must be >= 0")
	}
	if !c.MaxPositionPct.IsPositive() || c.MaxPositionPct.GreaterThan(one) {
		return fmt.Errorf("bot.max_position_pct must be in (0,1]")
	}
	if !c.KellyFraction.IsPositive() || c.KellyFraction.GreaterThan(one) {
		return fmt.Errorf("bot.kelly_fraction must be in (0,1]")
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("bot.max_history must be > 0")
	}
	if c.MaxLossPct.IsNegative() || c.MaxLossPct.GreaterThan(one) {
		return fmt.Errorf("bot.max_loss_pct must be in [0,1]")
	}
	return nil
}

func (c CollectorConfig) Validate() error {
	if c.FlushBatch < 0 {
		return fmt.Errorf("collector.flush_batch_size must be >= 0")
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("collector.flush_interval must be >= 0")
	}
	if c.DiscoveryLead < 0 {
		return fmt.Errorf("collector.discovery_lead must be >= 0")
	}
	return nil
}
