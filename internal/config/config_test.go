package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/liqreversion/internal/config"
)

func TestLoadAppliesDefaultsAndClamps(t *testing.T) {
	t.Setenv("LIQREVERSION_LEVERAGE", "10") // out of [1,3], must clamp to 3
	l := config.NewLoader([]string{"BTCUSDT", "ETHUSDT"})
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Leverage)
	assert.Equal(t, "paper", cfg.Mode)
	assert.Contains(t, cfg.MinLiqUSD, "BTCUSDT")
	assert.Contains(t, cfg.MaxSpreadBps, "ETHUSDT")
}

func TestLoadPerSymbolOverride(t *testing.T) {
	t.Setenv("LIQREVERSION_MIN_LIQ_USD_BTCUSDT", "250000")
	l := config.NewLoader([]string{"BTCUSDT", "ETHUSDT"})
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 250000.0, cfg.MinLiqUSD["BTCUSDT"])
	assert.NotEqual(t, 250000.0, cfg.MinLiqUSD["ETHUSDT"])
}

func TestLoadVersionIncrementsOnEachCall(t *testing.T) {
	l := config.NewLoader([]string{"BTCUSDT"})
	first, err := l.Load()
	require.NoError(t, err)
	second, err := l.Load()
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)
}
