// Package sink implements the Event Sink: bounded, non-blocking queues in
// front of a relational store, one single-consumer goroutine per stream.
// Grounded in the teacher's step.go safeSend (non-blocking send with a
// drop-stale-and-resend fallback) generalized from one result channel to one
// queue per stream, and in ChoSanghyuk-blackholedex's transaction_recorder.go
// GORM + AutoMigrate pattern generalized from one table to the seven named
// in spec §6.
package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/metrics"
)

// queueDepth is the bounded capacity for every stream, per spec §4.7.
const queueDepth = 4096

// Sink is the capability the rest of the system posts to. The Enqueue*
// methods are non-blocking, except EnqueueTrade, which blocks until the
// record is accepted into its queue; persistence failures mark the sink
// unhealthy but never stop trading, per spec §4.7/§7.
type Sink interface {
	EnqueueMarketEvent(domain.MarketEvent)
	EnqueueTrade(domain.TradeRecord)
	EnqueueLog(domain.LogEntry)
	EnqueueMetrics(domain.MetricsSnapshot)
	EnqueueBotState(domain.BotStateRecord)
	EnqueueHealth(domain.HealthCheck)
	EnqueueConfig(domain.ConfigSnapshot)
	// PollPendingControlCommands and AckControlCommand back the Control
	// Plane's 5s poll of the control_commands table, per spec §4.6. Unlike
	// the Enqueue* methods these are synchronous: control commands are
	// low-frequency operator actions, not hot-path trading events.
	PollPendingControlCommands(ctx context.Context) ([]domain.ControlCommand, error)
	AckControlCommand(ctx context.Context, id uint) error
	Healthy() bool
	Close()
}

// GormSink is the relational-store-backed Sink implementation.
type GormSink struct {
	db     *gorm.DB
	logger *slog.Logger

	marketEvents chan domain.MarketEvent
	trades       chan domain.TradeRecord
	logs         chan domain.LogEntry
	metrics      chan domain.MetricsSnapshot
	botStates    chan domain.BotStateRecord
	health       chan domain.HealthCheck
	configs      chan domain.ConfigSnapshot

	healthy atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// Open connects to dsn, migrates the seven logical tables plus
// control_commands, and starts one
// drain goroutine per stream. Call Close to stop the drains and release the
// connection.
func Open(dsn string, log *slog.Logger) (*GormSink, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&BotStateRow{}, &MetricsRow{}, &TradeRow{},
		&MarketEventRow{}, &LogEntryRow{}, &ConfigRow{}, &HealthCheckRow{},
		&ControlCommandRow{},
	); err != nil {
		return nil, err
	}
	return NewWithDB(db, log), nil
}

// NewWithDB wires a GormSink around an already-open *gorm.DB, useful for
// tests against an in-memory/sqlite db or a shared connection pool.
func NewWithDB(db *gorm.DB, log *slog.Logger) *GormSink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &GormSink{
		db:           db,
		logger:       log.With("component", "sink"),
		marketEvents: make(chan domain.MarketEvent, queueDepth),
		trades:       make(chan domain.TradeRecord, queueDepth),
		logs:         make(chan domain.LogEntry, queueDepth),
		metrics:      make(chan domain.MetricsSnapshot, queueDepth),
		botStates:    make(chan domain.BotStateRecord, queueDepth),
		health:       make(chan domain.HealthCheck, queueDepth),
		configs:      make(chan domain.ConfigSnapshot, queueDepth),
		cancel:       cancel,
	}
	s.healthy.Store(true)
	s.startDrains(ctx)
	return s
}

// PollPendingControlCommands reads unprocessed control_commands rows in
// insertion order. It is a synchronous read against the shared store: the
// Control Plane calls it on its own 5s tick, not from the trading path.
func (s *GormSink) PollPendingControlCommands(ctx context.Context) ([]domain.ControlCommand, error) {
	var rows []ControlCommandRow
	if err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ControlCommand, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ControlCommand{
			ID:        r.ID,
			Kind:      events.CommandKind(r.Kind),
			Mode:      r.Mode,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// AckControlCommand marks a control_commands row processed so the next poll
// doesn't redeliver it.
func (s *GormSink) AckControlCommand(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&ControlCommandRow{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed": true, "processed_at": time.Now().UTC()}).Error
}

func (s *GormSink) Healthy() bool { return s.healthy.Load() }

func (s *GormSink) Close() {
	s.cancel()
	s.wg.Wait()
}

// EnqueueMarketEvent never blocks the trading path; market events are
// informational and may be dropped under sustained overflow, same as logs.
func (s *GormSink) EnqueueMarketEvent(e domain.MarketEvent) {
	enqueueDropOldest(s.marketEvents, e)
}

// EnqueueTrade blocks only until accepted into the queue (the channel send
// itself), per spec §4.7 — trade records are never silently dropped; a full
// queue here indicates the consumer has stalled and is itself a sink health
// problem, not a reason to lose the record.
func (s *GormSink) EnqueueTrade(t domain.TradeRecord) {
	select {
	case s.trades <- t:
	default:
		s.logger.Error("trade queue full, marking sink unhealthy", "trade_id", t.ID)
		s.healthy.Store(false)
		s.trades <- t // accept anyway; trade records are never dropped.
	}
}

func (s *GormSink) EnqueueLog(l domain.LogEntry) {
	enqueueDropOldest(s.logs, l)
}

func (s *GormSink) EnqueueMetrics(m domain.MetricsSnapshot) {
	enqueueDropOldest(s.metrics, m)
}

func (s *GormSink) EnqueueBotState(b domain.BotStateRecord) {
	enqueueDropOldest(s.botStates, b)
}

func (s *GormSink) EnqueueHealth(h domain.HealthCheck) {
	enqueueDropOldest(s.health, h)
}

func (s *GormSink) EnqueueConfig(c domain.ConfigSnapshot) {
	enqueueDropOldest(s.configs, c)
}

// enqueueDropOldest sends item on ch; if ch is full, it drops the oldest
// queued item to make room, per spec §4.7 ("log overflows drop oldest").
func enqueueDropOldest[T any](ch chan T, item T) {
	select {
	case ch <- item:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- item:
	default:
	}
}

func (s *GormSink) startDrains(ctx context.Context) {
	s.wg.Add(7)
	go s.drainMarketEvents(ctx)
	go s.drainTrades(ctx)
	go s.drainLogs(ctx)
	go s.drainMetrics(ctx)
	go s.drainBotStates(ctx)
	go s.drainHealth(ctx)
	go s.drainConfigs(ctx)
}

func (s *GormSink) drainMarketEvents(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-s.marketEvents:
			metrics.SinkQueueDepth.WithLabelValues("market_events").Set(float64(len(s.marketEvents)))
			row := toMarketEventRow(e)
			if err := s.db.Create(&row).Error; err != nil {
				s.logger.Error("persist market_event failed", "error", err)
				s.healthy.Store(false)
			}
		}
	}
}

func (s *GormSink) drainTrades(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.trades:
			metrics.SinkQueueDepth.WithLabelValues("trades").Set(float64(len(s.trades)))
			row := toTradeRow(t)
			// Upsert by TradeID: the open-row is created on entry and
			// updated in place on close, per spec §4.7 ("updated on close").
			err := s.db.Where("trade_id = ?", row.TradeID).
				Assign(row).
				FirstOrCreate(&TradeRow{}).Error
			if err != nil {
				s.logger.Error("persist trade failed", "error", err, "trade_id", t.ID)
				s.healthy.Store(false)
			}
		}
	}
}

func (s *GormSink) drainLogs(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-s.logs:
			metrics.SinkQueueDepth.WithLabelValues("log_entries").Set(float64(len(s.logs)))
			row := toLogEntryRow(l)
			if err := s.db.Create(&row).Error; err != nil {
				s.healthy.Store(false)
			}
		}
	}
}

func (s *GormSink) drainMetrics(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.metrics:
			metrics.SinkQueueDepth.WithLabelValues("metrics").Set(float64(len(s.metrics)))
			row := toMetricsRow(m)
			if err := s.db.Create(&row).Error; err != nil {
				s.logger.Error("persist metrics failed", "error", err)
				s.healthy.Store(false)
			}
		}
	}
}

func (s *GormSink) drainBotStates(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-s.botStates:
			metrics.SinkQueueDepth.WithLabelValues("bot_states").Set(float64(len(s.botStates)))
			row := toBotStateRow(b)
			if err := s.db.Create(&row).Error; err != nil {
				s.logger.Error("persist bot_state failed", "error", err)
				s.healthy.Store(false)
			}
		}
	}
}

func (s *GormSink) drainHealth(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case h := <-s.health:
			metrics.SinkQueueDepth.WithLabelValues("health_checks").Set(float64(len(s.health)))
			row := toHealthCheckRow(h)
			if err := s.db.Create(&row).Error; err != nil {
				s.healthy.Store(false)
				continue
			}
			s.healthy.Store(true)
		}
	}
}

func (s *GormSink) drainConfigs(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-s.configs:
			metrics.SinkQueueDepth.WithLabelValues("configs").Set(float64(len(s.configs)))
			row := toConfigRow(c)
			if err := s.db.Create(&row).Error; err != nil {
				s.logger.Error("persist config failed", "error", err)
				s.healthy.Store(false)
			}
		}
	}
}

// --- Domain -> row conversions. This is the single place domain types map
// to persistence shape, per the REDESIGN FLAG in spec §9.

func toMarketEventRow(e domain.MarketEvent) MarketEventRow {
	return MarketEventRow{
		Symbol:          e.Symbol,
		LiqSide:         string(e.LiqSide),
		Notional:        decimal.NewFromFloat(e.Notional),
		LiqSizeOK:       e.LiqSizeOK,
		VolumeMultValue: e.VolumeMultValue,
		VolumeOK:        e.VolumeOK,
		SpreadBps:       e.SpreadBps,
		SpreadOK:        e.SpreadOK,
		PriceDeltaValue: e.PriceDeltaValue,
		MomentumOK:      e.MomentumOK,
		ExhaustionValue: e.ExhaustionValue,
		ExhaustionOK:    e.ExhaustionOK,
		RiskAdmitted:    e.RiskAdmitted,
		Passed:          e.Passed,
		RejectionReason: e.RejectionReason,
		Timestamp:       e.Timestamp,
	}
}

func toTradeRow(t domain.TradeRecord) TradeRow {
	return TradeRow{
		TradeID:        t.ID,
		Symbol:         t.Symbol,
		Side:           string(t.Side),
		EntryPrice:     decimal.NewFromFloat(t.EntryPrice),
		ExitPrice:      decimal.NewFromFloat(t.ExitPrice),
		Quantity:       decimal.NewFromFloat(t.Quantity),
		PnLUSDT:        decimal.NewFromFloat(t.PnLUSDT),
		PnLPct:         t.PnLPct,
		DurationS:      t.DurationS,
		Fees:           decimal.NewFromFloat(t.Fees),
		SlippageEstPct: t.SlippageEstPct,
		ExitReason:     string(t.ExitReason),
		EntryTS:        t.EntryTS,
		ExitTS:         t.ExitTS,
		SetupID:        t.SetupID,
		Open:           t.Open,
	}
}

func toLogEntryRow(l domain.LogEntry) LogEntryRow {
	return LogEntryRow{Level: string(l.Level), Message: l.Message, Timestamp: l.Timestamp}
}

func toMetricsRow(m domain.MetricsSnapshot) MetricsRow {
	return MetricsRow{
		Timestamp:         m.Timestamp,
		EquityUSD:         decimal.NewFromFloat(m.EquityUSD),
		PnLToday:          decimal.NewFromFloat(m.PnLToday),
		TradeCountToday:   m.TradeCountToday,
		ConsecutiveLosses: m.ConsecutiveLosses,
		RealizedWins:      m.RealizedWins,
		RealizedLosses:    m.RealizedLosses,
	}
}

func toBotStateRow(b domain.BotStateRecord) BotStateRow {
	return BotStateRow{State: string(b.State), Reason: b.Reason, Timestamp: b.Timestamp}
}

func toConfigRow(c domain.ConfigSnapshot) ConfigRow {
	return ConfigRow{Version: c.Version, JSONBlob: c.JSONBlob, Timestamp: c.Timestamp}
}

func toHealthCheckRow(h domain.HealthCheck) HealthCheckRow {
	return HealthCheckRow{
		State:            string(h.State),
		LastHeartbeat:    h.LastHeartbeat,
		FeedConnected:    h.FeedConnected,
		AdapterReachable: h.AdapterReachable,
		SinkReachable:    h.SinkReachable,
		Timestamp:        h.LastHeartbeat,
	}
}
