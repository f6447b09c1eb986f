package sink

import (
	"time"

	"github.com/shopspring/decimal"
)

// The seven logical tables named in spec §6, bit-exact with the dashboard
// reader: bot_states, metrics, trades, market_events, log_entries, configs,
// health_checks. Each row type is a GORM model migrated via AutoMigrate,
// matching ChoSanghyuk-blackholedex's transaction_recorder.go pattern
// (struct + gorm tags + TableName()), generalized from one table to seven.
//
// Monetary fields that cross this relational boundary (pnl, fees, notional)
// are persisted as decimal.Decimal rather than float64, to avoid float
// round-trip drift through the database; the in-memory hot path stays on
// float64 (see DESIGN.md).

type BotStateRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	State     string    `gorm:"index;not null"`
	Reason    string    `gorm:"type:varchar(255)"`
	Timestamp time.Time `gorm:"index;not null"`
}

func (BotStateRow) TableName() string { return "bot_states" }

type MetricsRow struct {
	ID                uint            `gorm:"primaryKey;autoIncrement"`
	Timestamp         time.Time       `gorm:"index;not null"`
	EquityUSD         decimal.Decimal `gorm:"type:decimal(24,8);not null"`
	PnLToday          decimal.Decimal `gorm:"type:decimal(24,8);not null"`
	TradeCountToday   int             `gorm:"not null"`
	ConsecutiveLosses int             `gorm:"not null"`
	RealizedWins      int             `gorm:"not null"`
	RealizedLosses    int             `gorm:"not null"`
}

func (MetricsRow) TableName() string { return "metrics" }

type TradeRow struct {
	ID             uint            `gorm:"primaryKey;autoIncrement"`
	TradeID        string          `gorm:"uniqueIndex;type:varchar(64);not null"`
	Symbol         string          `gorm:"index;type:varchar(32);not null"`
	Side           string          `gorm:"type:varchar(8);not null"`
	EntryPrice     decimal.Decimal `gorm:"type:decimal(24,8);not null"`
	ExitPrice      decimal.Decimal `gorm:"type:decimal(24,8)"`
	Quantity       decimal.Decimal `gorm:"type:decimal(24,8);not null"`
	PnLUSDT        decimal.Decimal `gorm:"type:decimal(24,8)"`
	PnLPct         float64         `gorm:""`
	DurationS      int64           `gorm:""`
	Fees           decimal.Decimal `gorm:"type:decimal(24,8)"`
	SlippageEstPct float64         `gorm:""`
	ExitReason     string          `gorm:"type:varchar(16)"`
	EntryTS        time.Time       `gorm:"index;not null"`
	ExitTS         time.Time       `gorm:"index"`
	SetupID        string          `gorm:"type:varchar(64)"`
	Open           bool            `gorm:"index;not null"`
}

func (TradeRow) TableName() string { return "trades" }

type MarketEventRow struct {
	ID              uint            `gorm:"primaryKey;autoIncrement"`
	Symbol          string          `gorm:"index;type:varchar(32);not null"`
	LiqSide         string          `gorm:"type:varchar(8)"`
	Notional        decimal.Decimal `gorm:"type:decimal(24,8)"`
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
	Passed          bool      `gorm:"index"`
	RejectionReason string    `gorm:"type:varchar(512)"`
	Timestamp       time.Time `gorm:"index;not null"`
}

func (MarketEventRow) TableName() string { return "market_events" }

type LogEntryRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Level     string    `gorm:"index;type:varchar(8);not null"`
	Message   string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index;not null"`
}

func (LogEntryRow) TableName() string { return "log_entries" }

type ConfigRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Version   int       `gorm:"index;not null"`
	JSONBlob  string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"index;not null"`
}

func (ConfigRow) TableName() string { return "configs" }

type HealthCheckRow struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	State            string    `gorm:"type:varchar(24);not null"`
	LastHeartbeat    time.Time `gorm:"not null"`
	FeedConnected    bool
	AdapterReachable bool
	SinkReachable    bool
	Timestamp        time.Time `gorm:"index;not null"`
}

func (HealthCheckRow) TableName() string { return "health_checks" }

// ControlCommandRow is the polled control table named in spec §4.6: an
// out-of-process actor inserts a row, the Control Plane's 5s poll picks up
// unprocessed ones and marks them done.
type ControlCommandRow struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Kind        string    `gorm:"type:varchar(16);not null"`
	Mode        string    `gorm:"type:varchar(8)"`
	Processed   bool      `gorm:"index;not null"`
	CreatedAt   time.Time `gorm:"index;not null"`
	ProcessedAt time.Time
}

func (ControlCommandRow) TableName() string { return "control_commands" }
