// Package config loads and bounds-checks the Configuration named in spec §3.
// Grounded in the teacher's config.go/env.go (env-var Config struct with a
// loadConfigFromEnv constructor and sane defaults), generalized from flat
// getEnv* calls to a github.com/spf13/viper-backed loader so the per-symbol
// maps (min_liq_usd, max_spread_bps) can be supplied as nested keys
// (LIQREVERSION_MIN_LIQ_USD_BTCUSDT=...) or a config file, matching the
// teacher's intent ("tune behavior via .env without recompiling") extended
// to per-symbol knobs the flat env-var style can't express cleanly.
package config

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"
)

// Config holds every bounded knob named in spec §3.
type Config struct {
	Symbols []string

	Leverage                           int
	RiskPerTradePct                    float64
	DailyMaxLossPct                    float64
	MaxTradesPerDay                    int
	MaxConsecutiveLosses               int
	PauseAfterConsecutiveLossesMinutes int
	MaxMarginPerTradePct               float64
	LiqWindowSeconds                   int
	MinLiqUSD                          map[string]float64
	VolumeLookback                     int
	VolumeMult                         float64
	ExhaustionCandles                  int
	MaxSpreadBps                       map[string]float64
	SymbolCooldownSeconds              int
	TPPct                              float64
	SLPct                              float64
	TimeStopSeconds                    int
	EntryFillTimeoutMs                 int
	UseMarketIfNotFilled               bool

	EnableAdditionalSymbol bool
	EnableMomentumVariant  bool

	Mode string // "paper" | "live"

	// Version increases on every successful reload, per spec §3.
	Version int
}

// clampInt and clampFloat enforce the inclusive ranges from spec §3; an out-of-range value
// is clamped to the nearer bound rather than rejected outright, matching the
// teacher's clamp() idiom in trader.go.
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Loader wraps a viper instance and tracks the reload version.
type Loader struct {
	v       *viper.Viper
	symbols []string
	version atomic.Int32
}

// NewLoader builds a Loader that reads LIQREVERSION_-prefixed environment
// variables and, if present, a config file named liqreversion.yaml on the
// given search paths.
func NewLoader(symbols []string, configPaths ...string) *Loader {
	v := viper.New()
	v.SetEnvPrefix("LIQREVERSION")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("liqreversion")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}

	setDefaults(v)
	return &Loader{v: v, symbols: symbols}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("leverage", 2)
	v.SetDefault("risk_per_trade_pct", 0.005)
	v.SetDefault("daily_max_loss_pct", 0.02)
	v.SetDefault("max_trades_per_day", 10)
	v.SetDefault("max_consecutive_losses", 3)
	v.SetDefault("pause_after_consecutive_losses_minutes", 30)
	v.SetDefault("max_margin_per_trade_pct", 0.1)
	v.SetDefault("liq_window_seconds", 60)
	v.SetDefault("min_liq_usd", 100000.0)
	v.SetDefault("volume_lookback", 20)
	v.SetDefault("volume_mult", 2.0)
	v.SetDefault("exhaustion_candles", 1)
	v.SetDefault("max_spread_bps", 10.0)
	v.SetDefault("symbol_cooldown_seconds", 120)
	v.SetDefault("tp_pct", 0.003)
	v.SetDefault("sl_pct", 0.004)
	v.SetDefault("time_stop_seconds", 150)
	v.SetDefault("entry_fill_timeout_ms", 800)
	v.SetDefault("use_market_if_not_filled", true)
	v.SetDefault("enable_additional_symbol", false)
	v.SetDefault("enable_momentum_variant", false)
	v.SetDefault("mode", "paper")
}

// Load reads the current configuration, applying per-symbol overrides for
// min_liq_usd and max_spread_bps when present (MIN_LIQ_USD_<SYMBOL>,
// MAX_SPREAD_BPS_<SYMBOL>), and bumps Version.
func (l *Loader) Load() (Config, error) {
	_ = l.v.ReadInConfig() // absent config file is not an error; env/defaults stand

	cfg := Config{
		Symbols:                            l.symbols,
		Leverage:                           clampInt(l.v.GetInt("leverage"), 1, 3),
		RiskPerTradePct:                    clampFloat(l.v.GetFloat64("risk_per_trade_pct"), 0.001, 0.01),
		DailyMaxLossPct:                    clampFloat(l.v.GetFloat64("daily_max_loss_pct"), 0.005, 0.05),
		MaxTradesPerDay:                    clampInt(l.v.GetInt("max_trades_per_day"), 1, 20),
		MaxConsecutiveLosses:               clampInt(l.v.GetInt("max_consecutive_losses"), 1, 10),
		PauseAfterConsecutiveLossesMinutes: clampInt(l.v.GetInt("pause_after_consecutive_losses_minutes"), 15, 180),
		MaxMarginPerTradePct:               clampFloat(l.v.GetFloat64("max_margin_per_trade_pct"), 0.05, 0.5),
		LiqWindowSeconds:                   clampInt(l.v.GetInt("liq_window_seconds"), 30, 120),
		VolumeLookback:                     clampInt(l.v.GetInt("volume_lookback"), 10, 50),
		VolumeMult:                         clampFloat(l.v.GetFloat64("volume_mult"), 1.5, 5),
		ExhaustionCandles:                  clampInt(l.v.GetInt("exhaustion_candles"), 1, 5),
		SymbolCooldownSeconds:              clampInt(l.v.GetInt("symbol_cooldown_seconds"), 60, 600),
		TPPct:                              clampFloat(l.v.GetFloat64("tp_pct"), 0.0025, 0.0045),
		SLPct:                              clampFloat(l.v.GetFloat64("sl_pct"), 0.0035, 0.0050),
		TimeStopSeconds:                    clampInt(l.v.GetInt("time_stop_seconds"), 120, 180),
		EntryFillTimeoutMs:                 clampInt(l.v.GetInt("entry_fill_timeout_ms"), 200, 2000),
		UseMarketIfNotFilled:               l.v.GetBool("use_market_if_not_filled"),
		EnableAdditionalSymbol:             l.v.GetBool("enable_additional_symbol"),
		EnableMomentumVariant:              l.v.GetBool("enable_momentum_variant"),
		Mode:                               l.v.GetString("mode"),
		MinLiqUSD:                          make(map[string]float64, len(l.symbols)),
		MaxSpreadBps:                       make(map[string]float64, len(l.symbols)),
	}

	if cfg.Mode != "paper" && cfg.Mode != "live" {
		return Config{}, fmt.Errorf("config: mode must be paper or live, got %q", cfg.Mode)
	}

	baseLiq := l.v.GetFloat64("min_liq_usd")
	baseSpread := l.v.GetFloat64("max_spread_bps")
	for _, sym := range l.symbols {
		cfg.MinLiqUSD[sym] = l.v.GetFloat64("min_liq_usd_" + strings.ToLower(sym))
		if cfg.MinLiqUSD[sym] == 0 {
			cfg.MinLiqUSD[sym] = baseLiq
		}
		cfg.MaxSpreadBps[sym] = l.v.GetFloat64("max_spread_bps_" + strings.ToLower(sym))
		if cfg.MaxSpreadBps[sym] == 0 {
			cfg.MaxSpreadBps[sym] = baseSpread
		}
	}

	cfg.Version = int(l.version.Add(1))
	return cfg, nil
}
