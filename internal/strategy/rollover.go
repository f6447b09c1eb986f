package strategy

import (
	"context"
	"time"

	"github.com/chidi150c/liqreversion/internal/domain"
)

// maybeRollover snapshots and resets the Risk Day at the UTC day boundary,
// per spec §4.4. The new equity baseline comes from the adapter so a live
// venue's actual balance, not a locally accumulated figure, seeds the next
// Risk Day. onTick calls this every 100ms, so the equity round-trip — a
// blocking, uncancellable HTTP call in live mode — is only made once a
// boundary crossing is actually pending (per NeedsRollover), not on every
// tick; otherwise it would starve the mailbox of its §5 suspension budget
// for a value only ever consumed at the boundary.
func (c *Core) maybeRollover(now time.Time) {
	if !c.risk.NeedsRollover(now) {
		return
	}
	newBaseline := c.risk.Day().EquityBaseline
	if eq, err := c.broker.GetEquity(context.Background()); err == nil {
		newBaseline = eq
	}
	if c.risk.MaybeRollover(now, newBaseline) && c.state == domain.PausedRiskLimit {
		c.setState(domain.Running, "risk day rollover")
	}
}

// maybeResumeFromRiskPause restores RUNNING once the timed cooldown named
// by pause_after_consecutive_losses_minutes has elapsed, per spec §4.4
// ("never via manual resume").
func (c *Core) maybeResumeFromRiskPause(now time.Time) {
	if c.state != domain.PausedRiskLimit {
		return
	}
	if c.risk.CanResumeFromPause(now) {
		c.setState(domain.Running, "risk pause cooldown expired")
	}
}
