// Package risk implements the Risk Governor: per-day counters and the
// admission gate that decides whether a candidate trade may proceed and
// whether the bot must pause, per spec §4.4. Grounded in the teacher's daily
// rollover bookkeeping (trader.go's midnightUTC/updateDaily), generalized
// from a single PnL gauge to the full counter set named by the spec.
package risk

import (
	"fmt"
	"strings"
	"time"
)

// Decision is the outcome of Admit.
type Decision int

const (
	Admit Decision = iota
	RejectSignal
	RejectAndPause
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case RejectSignal:
		return "reject_signal"
	case RejectAndPause:
		return "reject_and_pause"
	default:
		return "unknown"
	}
}

// Day is the Risk Day state, reset at the first event after a UTC day
// boundary.
type Day struct {
	DayStart          time.Time
	EquityBaseline    float64
	PnLToday          float64
	TradeCountToday   int
	ConsecutiveLosses int
	RealizedWins      int
	RealizedLosses    int
}

// Config carries the bounded fields from spec §3 that the Risk Governor
// consults.
type Config struct {
	MaxTradesPerDay                    int
	MaxConsecutiveLosses               int
	DailyMaxLossPct                    float64
	PauseAfterConsecutiveLossesMinutes int
}

// Governor holds the current Risk Day and decides admission. It is only
// ever touched by the Strategy Core's single goroutine; no internal locking
// is needed, matching the core-only-ownership rule in spec §5.
type Governor struct {
	cfg       Config
	day       Day
	pausedAt  time.Time // zero when not in a timed risk pause
}

// New starts a Governor with the given config and initial equity baseline,
// with the risk day beginning at dayStart (UTC midnight of the current day).
func New(cfg Config, equityBaseline float64, dayStart time.Time) *Governor {
	return &Governor{
		cfg: cfg,
		day: Day{
			DayStart:       midnightUTC(dayStart),
			EquityBaseline: equityBaseline,
		},
	}
}

// Day returns a copy of the current Risk Day state.
func (g *Governor) Day() Day { return g.day }

// Candidate is the minimal information Admit needs; the Strategy Core's
// gate computes the signal-quality factors separately (spec §4.5 step 3/4).
type Candidate struct {
	Symbol string
}

// Admit is the conjunction described in spec §4.4.
func (g *Governor) Admit(_ Candidate) (Decision, []string) {
	var reasons []string

	if g.day.TradeCountToday >= g.cfg.MaxTradesPerDay {
		reasons = append(reasons, fmt.Sprintf("trade_count_today %d >= max_trades_per_day %d", g.day.TradeCountToday, g.cfg.MaxTradesPerDay))
		return RejectSignal, reasons
	}

	if g.day.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
		reasons = append(reasons, fmt.Sprintf("consecutive_losses %d >= max_consecutive_losses %d", g.day.ConsecutiveLosses, g.cfg.MaxConsecutiveLosses))
		return RejectAndPause, reasons
	}

	if g.day.EquityBaseline > 0 {
		lossFrac := -minFloat(0, g.day.PnLToday) / g.day.EquityBaseline
		if lossFrac >= g.cfg.DailyMaxLossPct {
			reasons = append(reasons, fmt.Sprintf("daily loss %.4f%% >= daily_max_loss_pct %.4f%%", lossFrac*100, g.cfg.DailyMaxLossPct*100))
			return RejectAndPause, reasons
		}
	}

	return Admit, nil
}

// ReasonString concatenates rejection reasons per spec §4.5 step 6.
func ReasonString(reasons []string) string {
	return strings.Join(reasons, "; ")
}

// OnTradeOpened increments trade_count_today, per spec §4.5 "Entry
// execution" ("Increment trade_count_today"). This is deliberately separate
// from OnTradeClosed: the admission check in Admit reads trade_count_today
// against max_trades_per_day at gate time, so it must already reflect every
// trade that has been entered today, not just the ones that have closed.
func (g *Governor) OnTradeOpened() {
	g.day.TradeCountToday++
}

// OnTradeClosed updates pnl_today, consecutive_losses (reset on non-negative
// pnl, increment on negative), realized_wins/losses, per spec §4.4.
func (g *Governor) OnTradeClosed(pnl float64) {
	g.day.PnLToday += pnl
	if pnl < 0 {
		g.day.ConsecutiveLosses++
		g.day.RealizedLosses++
	} else {
		g.day.ConsecutiveLosses = 0
		g.day.RealizedWins++
	}
}

// EnterRiskPause records the wall-clock time a RejectAndPause transition
// occurred, so CanResumeFromPause can enforce the timed-cooldown rule.
func (g *Governor) EnterRiskPause(now time.Time) {
	g.pausedAt = now
}

// CanResumeFromPause reports whether pause_after_consecutive_losses_minutes
// have elapsed since the pause began. Day rollover (MaybeRollover) is the
// other path back to RUNNING and is handled independently by the Strategy
// Core, per spec §4.4/§4.5 ("never via manual resume").
func (g *Governor) CanResumeFromPause(now time.Time) bool {
	if g.pausedAt.IsZero() {
		return true
	}
	elapsed := now.Sub(g.pausedAt)
	return elapsed >= time.Duration(g.cfg.PauseAfterConsecutiveLossesMinutes)*time.Minute
}

// NeedsRollover reports whether now has crossed the UTC day boundary since
// DayStart, without mutating anything. Callers that must fetch an
// expensive new equity baseline (a live venue round-trip) before calling
// MaybeRollover check this first so that cost is paid only at the actual
// boundary, not on every tick.
func (g *Governor) NeedsRollover(now time.Time) bool {
	return midnightUTC(now).After(g.day.DayStart)
}

// MaybeRollover snapshots and resets the Risk Day if now crosses the UTC day
// boundary, per spec §4.4. Returns true if a rollover occurred.
func (g *Governor) MaybeRollover(now time.Time, newEquityBaseline float64) bool {
	today := midnightUTC(now)
	if !today.After(g.day.DayStart) {
		return false
	}
	g.day = Day{
		DayStart:       today,
		EquityBaseline: newEquityBaseline,
	}
	g.pausedAt = time.Time{}
	return true
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
