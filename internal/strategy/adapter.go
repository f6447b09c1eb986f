package strategy

import (
	"time"

	"github.com/chidi150c/liqreversion/internal/feed"
	"github.com/chidi150c/liqreversion/internal/stats"
)

// FeedPriceSource adapts a *feed.Feed to execution.PriceSource, so the paper
// adapter can synthesize fills against the same book the gate and monitor
// read, per spec §4.3.
type FeedPriceSource struct{ Feed *feed.Feed }

func (p FeedPriceSource) Mid(symbol string) (float64, bool) {
	c := p.Feed.Cache(symbol)
	if c == nil {
		return 0, false
	}
	return stats.Mid(c.Snapshot(time.Now()))
}
