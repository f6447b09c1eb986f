package strategy

import (
	"context"
	"time"

	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/stats"
)

// onTick runs the position monitor, fired every 100ms by the tick source
// regardless of Bot State, per spec §4.1/§4.5 ("continues to monitor the
// open position if prices are still available").
func (c *Core) onTick(ctx context.Context, tick events.Tick) {
	c.maybeRollover(tick.Now)
	c.maybeResumeFromRiskPause(tick.Now)

	if c.openPos == nil {
		return
	}
	pos := c.openPos

	price, ok := currentPrice(c, pos.Symbol, tick.Now)
	if !ok {
		return
	}

	pct := pnlPct(pos.Side, pos.EntryPrice, price)

	switch {
	case pct >= c.cfg.TPPct:
		c.exitPosition(ctx, domain.ExitTP, price, tick.Now)
	case pct <= -c.cfg.SLPct:
		c.exitPosition(ctx, domain.ExitSL, price, tick.Now)
	case tick.Now.Sub(pos.EntryTime) >= time.Duration(c.cfg.TimeStopSeconds)*time.Second:
		c.exitPosition(ctx, domain.ExitTimeStop, price, tick.Now)
	}
}

// currentPrice prefers the book mid; if the book is stale or absent it
// falls back to the last trade print, so monitoring degrades gracefully
// instead of stalling entirely on a quiet book.
func currentPrice(c *Core, symbol string, now time.Time) (float64, bool) {
	cache := c.feed.Cache(symbol)
	if cache == nil {
		return 0, false
	}
	snap := cache.Snapshot(now)
	if mid, ok := stats.Mid(snap); ok && !snap.BookStale {
		return mid, true
	}
	if snap.LastTrade.Price > 0 {
		return snap.LastTrade.Price, true
	}
	return 0, false
}
