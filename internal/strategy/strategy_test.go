package strategy_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chidi150c/liqreversion/internal/config"
	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/execution"
	"github.com/chidi150c/liqreversion/internal/feed"
	"github.com/chidi150c/liqreversion/internal/risk"
	"github.com/chidi150c/liqreversion/internal/strategy"
)

// fakeSink is an in-memory sink.Sink for assertions without a database.
type fakeSink struct {
	mu           sync.Mutex
	marketEvents []domain.MarketEvent
	trades       []domain.TradeRecord
	states       []domain.BotStateRecord
}

func (f *fakeSink) EnqueueMarketEvent(e domain.MarketEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketEvents = append(f.marketEvents, e)
}
func (f *fakeSink) EnqueueTrade(t domain.TradeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, t)
}
func (f *fakeSink) EnqueueLog(domain.LogEntry)            {}
func (f *fakeSink) EnqueueMetrics(domain.MetricsSnapshot) {}
func (f *fakeSink) EnqueueBotState(b domain.BotStateRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, b)
}
func (f *fakeSink) EnqueueHealth(domain.HealthCheck)     {}
func (f *fakeSink) EnqueueConfig(domain.ConfigSnapshot)  {}
func (f *fakeSink) PollPendingControlCommands(context.Context) ([]domain.ControlCommand, error) {
	return nil, nil
}
func (f *fakeSink) AckControlCommand(context.Context, uint) error { return nil }
func (f *fakeSink) Healthy() bool                                { return true }
func (f *fakeSink) Close()                                       {}

func (f *fakeSink) marketEventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.marketEvents)
}

func (f *fakeSink) lastMarketEvent() domain.MarketEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marketEvents[len(f.marketEvents)-1]
}

const symbol = "BTCUSDT"

func baseConfig() config.Config {
	return config.Config{
		Symbols:               []string{symbol},
		RiskPerTradePct:       0.005,
		MinLiqUSD:             map[string]float64{symbol: 1_000_000},
		LiqWindowSeconds:      60,
		VolumeMult:            1.3,
		MaxSpreadBps:          map[string]float64{symbol: 5},
		ExhaustionCandles:     1,
		SymbolCooldownSeconds: 120,
		TPPct:                 0.0035,
		SLPct:                 0.0045,
		TimeStopSeconds:       150,
		EntryFillTimeoutMs:    800,
		UseMarketIfNotFilled:  true,
		Mode:                  "paper",
	}
}

func riskConfig() risk.Config {
	return risk.Config{
		MaxTradesPerDay:                    20,
		MaxConsecutiveLosses:               3,
		DailyMaxLossPct:                    0.02,
		PauseAfterConsecutiveLossesMinutes: 30,
	}
}

// seedSignalQuality builds a book + trade history around mid 95000 that
// satisfies liq_size_ok/volume_ok/spread_ok/momentum_ok/exhaustion_ok for
// the given core's feed at time `now`, per the factor definitions in
// spec §4.2/§4.5.
func seedSignalQuality(f *feed.Feed, now time.Time) {
	c := f.Cache(symbol)

	// Volume baseline: 900 low-notional samples, far enough in the past to
	// stay outside the exhaustion/momentum lookback windows, to drive
	// recent_volume/avg_volume above the (lenient, test-only) volume_mult.
	start := now.Add(-299 * time.Second)
	step := 224 * time.Second / 900
	for i := 0; i < 900; i++ {
		at := start.Add(time.Duration(i) * step)
		qty := 0.00001
		if i >= 300 {
			qty = 0.0005 // recent majority: higher notional
		}
		c.ApplyTrade(95000, qty, at)
	}

	// Book: tight spread around mid 95000, updated just before `now` so it
	// reads as fresh (bookStaleAfter is 2s) when the gate snapshots at `now`.
	// Its mid must match the now-60s sample below: the entry gate's
	// price_delta scan walks history in append order, not time order, and
	// this point (appended ahead of the reversal samples) is what it lands
	// on as the window's oldest price.
	c.ApplyBookTicker(feed.BookSnapshot{BidPrice: 94995, AskPrice: 95005, At: now.Add(-1 * time.Second)})

	// Exhaustion/momentum construction: reversal pattern across the four
	// lookback samples, final point at `now` is the "current" price used by
	// both price_delta and exhaustion_candles.
	c.ApplyTrade(95000, 0.001, now.Add(-60*time.Second))
	c.ApplyTrade(95150, 0.001, now.Add(-40*time.Second))
	c.ApplyTrade(95100, 0.001, now.Add(-20*time.Second))
	c.ApplyTrade(95190, 0.001, now)
}

func newTestCore(t *testing.T, equityBaseline float64) (*strategy.Core, *fakeSink, *feed.Feed, execution.Broker) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(noopWriter{}, nil))

	f := feed.New("wss://example.invalid", []string{symbol}, make(chan events.Event, 16), logger)
	snk := &fakeSink{}
	gov := risk.New(riskConfig(), equityBaseline, time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC))
	broker := execution.NewPaperBroker(strategy.FeedPriceSource{Feed: f}, equityBaseline)

	core := strategy.New(baseConfig(), f, broker, gov, snk, logger)
	require.NoError(t, core.Boot(context.Background()))
	return core, snk, f, broker
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func liquidationAt(now time.Time) events.Liquidation {
	return events.Liquidation{
		Symbol:    symbol,
		Side:      events.Sell, // reversion entry is LONG
		Price:     95000,
		Quantity:  31.6, // notional ~3,000,000
		Timestamp: now,
	}
}

func TestCleanTakeProfit(t *testing.T) {
	core, snk, f, _ := newTestCore(t, 1400)
	now := time.Date(2026, 7, 29, 12, 10, 0, 0, time.UTC)
	seedSignalQuality(f, now)

	core.Mailbox() <- liquidationAt(now)
	drain(core)

	require.Equal(t, 1, snk.marketEventCount())
	me := snk.lastMarketEvent()
	assert.True(t, me.Passed, "expected gate to pass: %+v", me)
	assert.True(t, core.HasOpenPosition())

	// Move price up 0.40% and tick: should exit via TP.
	exitNow := now.Add(1 * time.Second)
	f.Cache(symbol).ApplyBookTicker(feed.BookSnapshot{
		BidPrice: 95000 * 1.004, AskPrice: 95000 * 1.004, At: exitNow,
	})
	core.Mailbox() <- events.Tick{Now: exitNow}
	drain(core)

	assert.False(t, core.HasOpenPosition(), "position should have closed on TP")
}

func TestSpreadRejection(t *testing.T) {
	core, snk, f, _ := newTestCore(t, 1400)
	now := time.Date(2026, 7, 29, 12, 10, 0, 0, time.UTC)
	seedSignalQuality(f, now)
	// Widen the spread past max_spread_bps=5.
	f.Cache(symbol).ApplyBookTicker(feed.BookSnapshot{BidPrice: 94715, AskPrice: 95285, At: now})

	core.Mailbox() <- liquidationAt(now)
	drain(core)

	me := snk.lastMarketEvent()
	assert.False(t, me.Passed)
	assert.False(t, me.SpreadOK)
	assert.False(t, core.HasOpenPosition())
}

func TestCooldownSuppressesSecondLiquidation(t *testing.T) {
	core, snk, f, _ := newTestCore(t, 1400)
	now := time.Date(2026, 7, 29, 12, 10, 0, 0, time.UTC)
	seedSignalQuality(f, now)

	core.Mailbox() <- liquidationAt(now)
	drain(core)
	require.Equal(t, 1, snk.marketEventCount())

	// Close the first position (TP) so the second liquidation reaches the
	// cooldown check rather than the open-position guard.
	exitNow := now.Add(1 * time.Second)
	f.Cache(symbol).ApplyBookTicker(feed.BookSnapshot{
		BidPrice: 95000 * 1.004, AskPrice: 95000 * 1.004, At: exitNow,
	})
	core.Mailbox() <- events.Tick{Now: exitNow}
	drain(core)
	require.False(t, core.HasOpenPosition())

	second := liquidationAt(now.Add(10 * time.Second))
	core.Mailbox() <- second
	drain(core)

	assert.Equal(t, 1, snk.marketEventCount(), "cooldown drop must be silent, no second Market Event")
}

func TestRiskPauseOnConsecutiveLossStreak(t *testing.T) {
	core, _, f, _ := newTestCore(t, 1400)
	now := time.Date(2026, 7, 29, 12, 10, 0, 0, time.UTC)
	seedSignalQuality(f, now)

	// Drive three consecutive losing trades directly through the risk path
	// by opening and then forcing an SL exit each time, 10 minutes apart so
	// each iteration's seeding clears the previous one's 5-minute price
	// history window.
	for i := 0; i < 3; i++ {
		liqTime := now.Add(time.Duration(i) * 10 * time.Minute)
		seedSignalQuality(f, liqTime)
		core.Mailbox() <- liquidationAt(liqTime)
		drain(core)
		require.True(t, core.HasOpenPosition(), "iteration %d: expected entry", i)

		exitTime := liqTime.Add(1 * time.Second)
		f.Cache(symbol).ApplyBookTicker(feed.BookSnapshot{
			BidPrice: 95000 * 0.995, AskPrice: 95000 * 0.995, At: exitTime,
		})
		core.Mailbox() <- events.Tick{Now: exitTime}
		drain(core)
		require.False(t, core.HasOpenPosition(), "iteration %d: expected SL exit", i)
	}

	require.Equal(t, domain.Running, core.State(), "pause only trips on the next admit attempt")

	// The next liquidation attempt is the one that observes
	// consecutive_losses >= max_consecutive_losses and trips the pause.
	finalTime := now.Add(40 * time.Minute)
	seedSignalQuality(f, finalTime)
	core.Mailbox() <- liquidationAt(finalTime)
	drain(core)

	assert.False(t, core.HasOpenPosition())
	assert.Equal(t, domain.PausedRiskLimit, core.State())
}

func TestFlattenClosesPositionAndPauses(t *testing.T) {
	core, snk, f, _ := newTestCore(t, 1400)
	now := time.Date(2026, 7, 29, 12, 10, 0, 0, time.UTC)
	seedSignalQuality(f, now)

	core.Mailbox() <- liquidationAt(now)
	drain(core)
	require.True(t, core.HasOpenPosition())

	reply := make(chan events.CommandResult, 1)
	core.Mailbox() <- events.Command{Kind: events.CmdFlatten, Reply: reply}
	drain(core)

	res := <-reply
	assert.True(t, res.OK)
	assert.False(t, core.HasOpenPosition())
	assert.Equal(t, domain.PausedManual, core.State())

	last := snk.trades[len(snk.trades)-1]
	assert.Equal(t, domain.ExitFlatten, last.ExitReason)
}

// drain processes every currently queued mailbox message synchronously, by
// running one iteration of Core.Run against a context that's cancelled once
// the mailbox empties. Tests construct events and push them directly onto
// the mailbox, then call drain to apply them deterministically.
func drain(core *strategy.Core) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for len(core.Mailbox()) > 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	core.Run(ctx)
}
