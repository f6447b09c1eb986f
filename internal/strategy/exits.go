package strategy

import (
	"context"
	"math"
	"time"

	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/feed"
	"github.com/chidi150c/liqreversion/internal/metrics"
	"github.com/chidi150c/liqreversion/internal/stats"
)

// feeFactor is the placeholder taker-fee estimate named in spec §4.5
// ("|pnl|·0.04"); the spec explicitly keeps this a placeholder constant
// rather than a notional-based model pending operator confirmation (see
// the Open Question resolution in SPEC_FULL.md §9), so it is wired as a
// named constant rather than a Configuration field.
const feeFactor = 0.04

// enterPosition executes the entry side of the gate once the gate has
// passed, per spec §4.5 "Entry execution". Sizing is computed once here and
// never revisited.
func (c *Core) enterPosition(ctx context.Context, liq events.Liquidation, side domain.PositionSide, snap feed.Snapshot) {
	entryPriceRef, ok := stats.Mid(snap)
	if !ok {
		c.logger.Warn("entry skipped: no mid price available", "symbol", liq.Symbol)
		return
	}

	quantity, _, _ := c.sizePosition(entryPriceRef)
	if quantity <= 0 {
		c.logger.Warn("entry skipped: non-positive sizing", "symbol", liq.Symbol)
		return
	}

	orderSide := events.Buy
	if side == domain.Short {
		orderSide = events.Sell
	}

	fillCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.EntryFillTimeoutMs)*time.Millisecond)
	defer cancel()

	result, err := c.broker.LimitIOC(fillCtx, liq.Symbol, orderSide, quantity, entryPriceRef)
	if err != nil || result.Status != "filled" {
		if !c.cfg.UseMarketIfNotFilled {
			c.logger.Warn("entry limit_ioc not filled, market fallback disabled", "symbol", liq.Symbol, "error", err)
			return
		}
		result, err = c.broker.MarketOrder(ctx, liq.Symbol, orderSide, quantity)
		if err != nil {
			c.logger.Error("entry market order failed", "symbol", liq.Symbol, "error", err)
			return
		}
	}

	now := liq.Timestamp
	tradeID := newTradeID()
	c.openPos = &domain.OpenPosition{
		Symbol:     liq.Symbol,
		Side:       side,
		EntryPrice: result.AvgPrice,
		Quantity:   result.ExecutedQty,
		EntryTime:  now,
		TradeID:    tradeID,
	}
	c.openTrade = &domain.TradeRecord{
		ID:         tradeID,
		Symbol:     liq.Symbol,
		Side:       side,
		EntryPrice: result.AvgPrice,
		Quantity:   result.ExecutedQty,
		EntryTS:    now,
		SetupID:    liq.Symbol + "-" + now.Format(time.RFC3339Nano),
		Open:       true,
	}
	c.sink.EnqueueTrade(*c.openTrade)
	c.risk.OnTradeOpened()

	c.cooldowns[liq.Symbol] = now.Add(time.Duration(c.cfg.SymbolCooldownSeconds) * time.Second)

	c.logger.Info("entered position", "symbol", liq.Symbol, "side", string(side),
		"entry_price", result.AvgPrice, "quantity", result.ExecutedQty)
}

// exitPosition closes the Open Position with reason, per spec §4.5 "Position
// monitor" exit handling and "Flatten".
func (c *Core) exitPosition(ctx context.Context, reason domain.ExitReason, currentPrice float64, now time.Time) {
	pos := c.openPos
	if pos == nil {
		return
	}

	closeSide := events.Sell
	if pos.Side == domain.Short {
		closeSide = events.Buy
	}

	result, err := c.broker.MarketOrder(ctx, pos.Symbol, closeSide, pos.Quantity)
	exitPrice := currentPrice
	if err == nil && result != nil {
		exitPrice = result.AvgPrice
	} else if err != nil {
		c.logger.Error("exit market order failed, booking at last known price", "symbol", pos.Symbol, "error", err)
	}

	pct := pnlPct(pos.Side, pos.EntryPrice, exitPrice)
	grossPnL := pos.EntryPrice * pos.Quantity * pct
	fees := absFloat(grossPnL) * feeFactor
	netPnL := grossPnL - fees
	duration := int64(math.Round(now.Sub(pos.EntryTime).Seconds()))

	if c.openTrade != nil {
		c.openTrade.ExitPrice = exitPrice
		c.openTrade.PnLUSDT = netPnL
		c.openTrade.PnLPct = pct
		c.openTrade.DurationS = duration
		c.openTrade.Fees = fees
		c.openTrade.ExitReason = reason
		c.openTrade.ExitTS = now
		c.openTrade.Open = false
		c.sink.EnqueueTrade(*c.openTrade)
	}

	c.risk.OnTradeClosed(netPnL)
	metrics.TradesByExitReason.WithLabelValues(string(reason)).Inc()
	metrics.RiskDayPnL.Set(c.risk.Day().PnLToday)

	// Paper mode has no independent ledger to derive equity from, so the
	// core applies the realized pnl itself; live mode re-reads the venue's
	// authoritative equity instead of accumulating locally.
	if pb, ok := c.broker.(interface{ SetEquity(float64) }); ok {
		if eq, err := c.broker.GetEquity(ctx); err == nil {
			pb.SetEquity(eq + netPnL)
		}
	}
	if eq, err := c.broker.GetEquity(ctx); err == nil {
		metrics.EquityUSD.Set(eq)
	}

	c.sink.EnqueueMetrics(domain.MetricsSnapshot{
		Timestamp:         now,
		PnLToday:          c.risk.Day().PnLToday,
		TradeCountToday:   c.risk.Day().TradeCountToday,
		ConsecutiveLosses: c.risk.Day().ConsecutiveLosses,
		RealizedWins:      c.risk.Day().RealizedWins,
		RealizedLosses:    c.risk.Day().RealizedLosses,
	})

	c.logger.Info("exited position", "symbol", pos.Symbol, "reason", string(reason),
		"pnl_usdt", netPnL, "duration_s", duration)

	c.openPos = nil
	c.openTrade = nil
}

