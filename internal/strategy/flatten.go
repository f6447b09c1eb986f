package strategy

import (
	"context"
	"time"

	"github.com/chidi150c/liqreversion/internal/domain"
)

// flatten force-exits any open position with reason FLATTEN and transitions
// to PAUSED_MANUAL, per spec §4.5 "Flatten" and the `flatten` control
// command in §4.6 (always permitted, regardless of current state).
func (c *Core) flatten(ctx context.Context, now time.Time) {
	if c.openPos != nil {
		price, ok := currentPrice(c, c.openPos.Symbol, now)
		if !ok {
			price = c.openPos.EntryPrice
		}
		c.exitPosition(ctx, domain.ExitFlatten, price, now)
	}
	c.setState(domain.PausedManual, "flatten")
}
