package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/metrics"
	"github.com/chidi150c/liqreversion/internal/risk"
	"github.com/chidi150c/liqreversion/internal/stats"
)

// onLiquidation runs the entry gate of spec §4.5. Only evaluated when state
// is RUNNING and no position is open; a symbol in cooldown is dropped
// silently (no Market Event), matching step 1 of the gate.
func (c *Core) onLiquidation(ctx context.Context, liq events.Liquidation) {
	metrics.LiquidationsIngested.WithLabelValues(liq.Symbol).Inc()

	if c.state != domain.Running || c.openPos != nil {
		return
	}
	if until, inCooldown := c.cooldowns[liq.Symbol]; inCooldown && liq.Timestamp.Before(until) {
		return
	}

	cache := c.feed.Cache(liq.Symbol)
	if cache == nil {
		return
	}
	snap := cache.Snapshot(liq.Timestamp)

	minLiq := c.cfg.MinLiqUSD[liq.Symbol]
	maxSpread := c.cfg.MaxSpreadBps[liq.Symbol]

	liqSizeOK := liq.Notional() >= minLiq

	avgVol := stats.AvgVolume(snap)
	recentVol := stats.RecentVolume(snap, 60)
	volumeMultValue := 0.0
	if avgVol > 0 {
		volumeMultValue = recentVol / avgVol
	}
	volumeOK := volumeMultValue >= c.cfg.VolumeMult

	spreadBps := stats.SpreadBps(snap)
	spreadOK := spreadBps <= maxSpread

	priceDeltaValue := stats.PriceDelta(snap, liq.Timestamp, 60)
	momentumOK := absFloat(priceDeltaValue) < 0.5

	exhaustionValue := stats.ExhaustionCandles(snap, liq.Timestamp)
	exhaustionOK := exhaustionValue >= c.cfg.ExhaustionCandles

	decision, riskReasons := c.risk.Admit(risk.Candidate{Symbol: liq.Symbol})
	riskAdmitted := decision == risk.Admit

	signalQualityPassed := liqSizeOK && volumeOK && spreadOK && momentumOK && exhaustionOK
	passed := signalQualityPassed && riskAdmitted

	var reasons []string
	if !liqSizeOK {
		reasons = append(reasons, fmt.Sprintf("liq notional %.2f < min_liq_usd %.2f", liq.Notional(), minLiq))
	}
	if !volumeOK {
		reasons = append(reasons, fmt.Sprintf("volume_mult %.2f < configured %.2f", volumeMultValue, c.cfg.VolumeMult))
	}
	if !spreadOK {
		reasons = append(reasons, fmt.Sprintf("Spread %.1fbps > %gbps", spreadBps, maxSpread))
	}
	if !momentumOK {
		reasons = append(reasons, fmt.Sprintf("price_delta %.3f%% exceeds momentum bound", priceDeltaValue))
	}
	if !exhaustionOK {
		reasons = append(reasons, fmt.Sprintf("exhaustion_candles %d < required %d", exhaustionValue, c.cfg.ExhaustionCandles))
	}
	reasons = append(reasons, riskReasons...)

	c.sink.EnqueueMarketEvent(domain.MarketEvent{
		Symbol:          liq.Symbol,
		LiqSide:         liq.Side,
		Notional:        liq.Notional(),
		LiqSizeOK:       liqSizeOK,
		VolumeMultValue: volumeMultValue,
		VolumeOK:        volumeOK,
		SpreadBps:       spreadBps,
		SpreadOK:        spreadOK,
		PriceDeltaValue: priceDeltaValue,
		MomentumOK:      momentumOK,
		ExhaustionValue: exhaustionValue,
		ExhaustionOK:    exhaustionOK,
		RiskAdmitted:    riskAdmitted,
		Passed:          passed,
		RejectionReason: strings.Join(reasons, "; "),
		Timestamp:       liq.Timestamp,
	})

	outcome := "passed"
	if !passed {
		outcome = "rejected"
	}
	metrics.GateDecisions.WithLabelValues(liq.Symbol, outcome).Inc()

	if decision == risk.RejectAndPause {
		c.risk.EnterRiskPause(liq.Timestamp)
		c.setState(domain.PausedRiskLimit, risk.ReasonString(riskReasons))
		return
	}
	if !passed {
		return
	}

	side := domain.Short
	if liq.Side == events.Sell {
		side = domain.Long
	}
	c.enterPosition(ctx, liq, side, snap)
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// onFeedUnavailable stops admitting new entries but leaves monitoring
// running as long as prices remain available, per spec §4.1.
func (c *Core) onFeedUnavailable(e events.FeedUnavailable) {
	c.allowsEntries = false
	c.setState(domain.Errored, "feed reconnect attempts exhausted at "+e.At.Format(time.RFC3339))
}
