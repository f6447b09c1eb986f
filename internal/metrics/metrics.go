// Package metrics defines the Prometheus series this bot exposes, grounded
// on the teacher's metrics.go (CounterVec/GaugeVec set registered in init(),
// served by promhttp at /metrics), generalized from the teacher's spot-bot
// metric set to the gate/risk/exit vocabulary this spec names.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// LiquidationsIngested counts Liquidation events observed per symbol.
	LiquidationsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liqreversion_liquidations_ingested_total",
			Help: "Liquidation events observed, by symbol.",
		},
		[]string{"symbol"},
	)

	// GateDecisions counts entry-gate outcomes by symbol and decision.
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liqreversion_gate_decisions_total",
			Help: "Entry gate decisions, by symbol and outcome (passed|rejected).",
		},
		[]string{"symbol", "outcome"},
	)

	// TradesByExitReason counts closed trades by exit_reason.
	TradesByExitReason = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liqreversion_trades_total",
			Help: "Closed trades, by exit_reason.",
		},
		[]string{"exit_reason"},
	)

	// EquityUSD is the current equity snapshot.
	EquityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "liqreversion_equity_usd",
			Help: "Current equity in USD.",
		},
	)

	// RiskDayPnL is the running pnl_today gauge.
	RiskDayPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "liqreversion_risk_day_pnl_usd",
			Help: "Risk Day pnl_today in USD.",
		},
	)

	// FeedReconnects counts Market Feed reconnect attempts.
	FeedReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "liqreversion_feed_reconnects_total",
			Help: "Market Feed reconnect attempts.",
		},
	)

	// SinkQueueDepth reports the current depth of a Sink stream's queue.
	SinkQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liqreversion_sink_queue_depth",
			Help: "Event Sink queue depth, by stream.",
		},
		[]string{"stream"},
	)

	// BotState indicates the current state machine state (1 for the active
	// label, 0 for the rest), mirroring the teacher's botModelMode idiom of
	// flipping labeled series rather than exposing an enum directly.
	BotState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liqreversion_bot_state",
			Help: "Bot state indicator, one labeled series per state.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		LiquidationsIngested,
		GateDecisions,
		TradesByExitReason,
		EquityUSD,
		RiskDayPnL,
		FeedReconnects,
		SinkQueueDepth,
		BotState,
	)
}

// SetBotState flips the labeled series for state to 1 and every other known
// state to 0, per the teacher's SetModelModeMetric idiom.
func SetBotState(state string, allStates []string) {
	for _, s := range allStates {
		if s == state {
			BotState.WithLabelValues(s).Set(1)
		} else {
			BotState.WithLabelValues(s).Set(0)
		}
	}
}
