package strategy

import "github.com/chidi150c/liqreversion/internal/domain"

// sizePosition computes risk_amount/sl_distance/quantity per spec §4.5.
// Sizing is computed once at entry from the current equity baseline and
// sl_pct; it is never recomputed after entry.
func (c *Core) sizePosition(entryPriceRef float64) (quantity, riskAmount, slDistance float64) {
	riskAmount = c.risk.Day().EquityBaseline * c.cfg.RiskPerTradePct
	slDistance = entryPriceRef * c.cfg.SLPct
	if slDistance <= 0 {
		return 0, riskAmount, slDistance
	}
	quantity = riskAmount / slDistance
	return quantity, riskAmount, slDistance
}

// pnlPct computes the unrealized or realized percentage move for side,
// negated for SHORT per spec §4.5's position-monitor formula.
func pnlPct(side domain.PositionSide, entryPrice, currentPrice float64) float64 {
	p := (currentPrice - entryPrice) / entryPrice
	if side == domain.Short {
		return -p
	}
	return p
}
