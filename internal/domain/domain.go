// Package domain holds the types that flow between the Strategy Core and the
// Event Sink: TradeRecord, MarketEvent, Metrics, LogEntry, BotStateRecord,
// HealthCheck. Confining these here (instead of letting each adapter define
// its own shape) is the fix for the "mixing response shape construction with
// domain updates" pattern flagged in spec §9 — the Event Sink is the only
// place that ever maps a domain type to a persistence row.
package domain

import (
	"time"

	"github.com/chidi150c/liqreversion/internal/events"
)

// PositionSide is the Open Position's direction (distinct from a
// Liquidation's Side: a SELL liquidation is reverted with a LONG position).
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// OpenPosition is the Strategy Core's sole mutable position slot. At most
// one exists globally, per spec §3.
type OpenPosition struct {
	Symbol     string
	Side       PositionSide
	EntryPrice float64
	Quantity   float64
	EntryTime  time.Time
	TradeID    string
}

// ExitReason enumerates why a position was closed.
type ExitReason string

const (
	ExitTP       ExitReason = "TP"
	ExitSL       ExitReason = "SL"
	ExitTimeStop ExitReason = "TIME_STOP"
	ExitManual   ExitReason = "MANUAL"
	ExitFlatten  ExitReason = "FLATTEN"
)

// TradeRecord is immutable once closed, per spec §3.
type TradeRecord struct {
	ID             string
	Symbol         string
	Side           PositionSide
	EntryPrice     float64
	ExitPrice      float64
	Quantity       float64
	PnLUSDT        float64
	PnLPct         float64
	DurationS      int64
	Fees           float64
	SlippageEstPct float64
	ExitReason     ExitReason
	EntryTS        time.Time
	ExitTS         time.Time
	SetupID        string
	Open           bool // true between entry and exit, set false on close
}

// MarketEvent is the full gate-decision breakdown recorded for every
// Liquidation, per spec §4.5 step 6.
type MarketEvent struct {
	Symbol          string
	LiqSide         events.Side
	Notional        float64
	LiqSizeOK       bool
	VolumeMultValue float64
	VolumeOK        bool
	SpreadBps       float64
	SpreadOK        bool
	PriceDeltaValue float64
	MomentumOK      bool
	ExhaustionValue int
	ExhaustionOK    bool
	RiskAdmitted    bool
	Passed          bool
	RejectionReason string
	Timestamp       time.Time
}

// LogLevel mirrors the three levels named in spec §4.7.
type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// LogEntry is one structured log line destined for the log_entries table.
type LogEntry struct {
	Level     LogLevel
	Message   string
	Timestamp time.Time
}

// MetricsSnapshot is persisted on each trade close. The Control Plane's 5s
// heartbeat writes a HealthCheck, not a MetricsSnapshot.
type MetricsSnapshot struct {
	Timestamp         time.Time
	EquityUSD         float64
	PnLToday          float64
	TradeCountToday   int
	ConsecutiveLosses int
	RealizedWins      int
	RealizedLosses    int
}

// BotState enumerates the Strategy Core's state machine states, per spec §3.
type BotState string

const (
	Booting         BotState = "BOOTING"
	Running         BotState = "RUNNING"
	PausedManual    BotState = "PAUSED_MANUAL"
	PausedRiskLimit BotState = "PAUSED_RISK_LIMIT"
	Errored         BotState = "ERROR"
	Shutdown        BotState = "SHUTDOWN"
)

// BotStateRecord is written on every transition, per spec §4.7.
type BotStateRecord struct {
	State     BotState
	Reason    string
	Timestamp time.Time
}

// HealthCheck is the Control Plane's 5s heartbeat payload, per spec §4.6.
type HealthCheck struct {
	State            BotState
	LastHeartbeat    time.Time
	FeedConnected    bool
	AdapterReachable bool
	SinkReachable    bool
}

// ConfigSnapshot is persisted on load and on every version bump, per spec
// §3 ("Configuration has a monotonically increasing version") and §6's
// configs table.
type ConfigSnapshot struct {
	Version   int
	JSONBlob  string
	Timestamp time.Time
}

// ControlCommand is one row of the control_commands table the Control Plane
// polls every 5s, per spec §4.6 ("the control table itself ... inside the
// same GORM-backed store the Event Sink writes").
type ControlCommand struct {
	ID        uint
	Kind      events.CommandKind
	Mode      string
	CreatedAt time.Time
}
