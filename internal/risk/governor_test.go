package risk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chidi150c/liqreversion/internal/risk"
)

func baseCfg() risk.Config {
	return risk.Config{
		MaxTradesPerDay:                    20,
		MaxConsecutiveLosses:               3,
		DailyMaxLossPct:                    0.02,
		PauseAfterConsecutiveLossesMinutes: 30,
	}
}

func TestAdmitAllowsFreshDay(t *testing.T) {
	g := risk.New(baseCfg(), 1000, time.Now())
	d, _ := g.Admit(risk.Candidate{Symbol: "BTCUSDT"})
	assert.Equal(t, risk.Admit, d)
}

func TestConsecutiveLossesTriggersRejectAndPause(t *testing.T) {
	g := risk.New(baseCfg(), 1000, time.Now())
	g.OnTradeClosed(-5)
	g.OnTradeClosed(-5)
	g.OnTradeClosed(-5)
	assert.Equal(t, 3, g.Day().ConsecutiveLosses)
	d, reasons := g.Admit(risk.Candidate{Symbol: "BTCUSDT"})
	assert.Equal(t, risk.RejectAndPause, d)
	assert.NotEmpty(t, reasons)
}

func TestNonNegativePnlResetsConsecutiveLosses(t *testing.T) {
	g := risk.New(baseCfg(), 1000, time.Now())
	g.OnTradeClosed(-5)
	g.OnTradeClosed(-5)
	g.OnTradeClosed(1)
	assert.Equal(t, 0, g.Day().ConsecutiveLosses)
}

func TestDailyMaxLossTriggersRejectAndPause(t *testing.T) {
	g := risk.New(baseCfg(), 1000, time.Now())
	g.OnTradeClosed(-25) // 2.5% of 1000 equity baseline > 2% cap
	d, _ := g.Admit(risk.Candidate{Symbol: "BTCUSDT"})
	assert.Equal(t, risk.RejectAndPause, d)
}

func TestMaxTradesPerDayTriggersRejectSignal(t *testing.T) {
	cfg := baseCfg()
	cfg.MaxTradesPerDay = 1
	g := risk.New(cfg, 1000, time.Now())
	g.OnTradeOpened() // trade_count_today -> 1, per spec §4.5 entry execution
	d, _ := g.Admit(risk.Candidate{Symbol: "BTCUSDT"})
	assert.Equal(t, risk.RejectSignal, d)
}

func TestOnTradeOpenedIncrementsCountIndependentlyOfClose(t *testing.T) {
	g := risk.New(baseCfg(), 1000, time.Now())
	g.OnTradeOpened()
	assert.Equal(t, 1, g.Day().TradeCountToday)
	g.OnTradeClosed(5)
	assert.Equal(t, 1, g.Day().TradeCountToday)
}

func TestCanResumeFromPauseRespectsCooldown(t *testing.T) {
	g := risk.New(baseCfg(), 1000, time.Now())
	now := time.Now()
	g.EnterRiskPause(now)
	assert.False(t, g.CanResumeFromPause(now.Add(5*time.Minute)))
	assert.True(t, g.CanResumeFromPause(now.Add(31*time.Minute)))
}

func TestMaybeRolloverResetsDay(t *testing.T) {
	yesterday := time.Date(2026, 7, 28, 10, 0, 0, 0, time.UTC)
	g := risk.New(baseCfg(), 1000, yesterday)
	g.OnTradeClosed(-5)
	today := time.Date(2026, 7, 29, 0, 0, 1, 0, time.UTC)
	rolled := g.MaybeRollover(today, 995)
	assert.True(t, rolled)
	assert.Equal(t, 0, g.Day().TradeCountToday)
	assert.Equal(t, 995.0, g.Day().EquityBaseline)
}

func TestReasonStringJoinsWithSemicolon(t *testing.T) {
	assert.Equal(t, "a; b", risk.ReasonString([]string{"a", "b"}))
}
