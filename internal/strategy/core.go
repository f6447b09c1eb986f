// Package strategy implements the Strategy Core: a single goroutine that
// consumes the tagged-variant Event union from one mailbox channel and owns
// the Open Position slot, the Risk Day (via the Risk Governor), cooldowns,
// and the Bot State machine. No other goroutine ever mutates this state,
// replacing the teacher's sync.RWMutex-guarded Trader with the serialized
// single-consumer design named in spec §4.5/§9 — direct descendant of the
// teacher's apply(fn func(*Trader)) channel-dispatch idiom in trader.go,
// promoted here from an optional fallback path to the only path.
package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chidi150c/liqreversion/internal/config"
	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/execution"
	"github.com/chidi150c/liqreversion/internal/feed"
	"github.com/chidi150c/liqreversion/internal/metrics"
	"github.com/chidi150c/liqreversion/internal/risk"
	"github.com/chidi150c/liqreversion/internal/sink"
)

// allBotStates backs the metrics.SetBotState labeled-series flip; every
// state named in spec §3.
var allBotStates = []string{
	string(domain.Booting), string(domain.Running), string(domain.PausedManual),
	string(domain.PausedRiskLimit), string(domain.Errored), string(domain.Shutdown),
}

// MailboxCapacity is shared by every producer (feed, tick sources, control
// plane) that constructs the core's channel.
const MailboxCapacity = 1024

// Core is the single owner of Open Position, Risk Day, cooldowns, and Bot
// State. Construct with New, then run Run in its own goroutine.
type Core struct {
	cfg     config.Config
	feed    *feed.Feed
	broker  execution.Broker
	risk    *risk.Governor
	sink    sink.Sink
	logger  *slog.Logger
	mailbox chan events.Event

	state domain.BotState
	// stateSnapshot mirrors state for readers outside the core goroutine
	// (the Control Plane's heartbeat loop and its /healthz handler run on
	// their own goroutines): spec §5 reserves state itself to the core, so
	// cross-goroutine reads go through this atomic publish instead of the
	// field directly.
	stateSnapshot atomic.Value // domain.BotState
	openPos       *domain.OpenPosition
	openTrade     *domain.TradeRecord
	cooldowns     map[string]time.Time

	// allowsEntries is set by Boot and cleared when the feed reports
	// unavailable (which also moves the core to ERROR); pausing does not
	// change it. onLiquidation gates entries on the Bot State, not on this
	// field. The position monitor keeps running regardless, per spec
	// §4.1/§4.5 ("continues to monitor the open position if prices are
	// still available").
	allowsEntries bool
}

// New constructs a Core. feed and broker must already be running/reachable;
// New does not start any goroutines itself.
func New(cfg config.Config, f *feed.Feed, broker execution.Broker, gov *risk.Governor, snk sink.Sink, logger *slog.Logger) *Core {
	c := &Core{
		cfg:           cfg,
		feed:          f,
		broker:        broker,
		risk:          gov,
		sink:          snk,
		logger:        logger.With("component", "strategy_core"),
		mailbox:       make(chan events.Event, MailboxCapacity),
		state:         domain.Booting,
		cooldowns:     make(map[string]time.Time, len(cfg.Symbols)),
		allowsEntries: false,
	}
	c.stateSnapshot.Store(domain.Booting)
	return c
}

// Mailbox is the channel every producer (feed, tick sources, control plane)
// posts events onto.
func (c *Core) Mailbox() chan<- events.Event { return c.mailbox }

// Boot transitions BOOTING -> RUNNING once the adapter is reachable (checked
// in live mode only). It does not wait for or check the feed connection.
func (c *Core) Boot(ctx context.Context) error {
	if c.cfg.Mode == "live" {
		if _, err := c.broker.GetEquity(ctx); err != nil {
			c.setState(domain.Errored, fmt.Sprintf("adapter unreachable at boot: %v", err))
			return err
		}
	}
	c.allowsEntries = true
	c.setState(domain.Running, "adapter reachable, risk day initialized")
	return nil
}

// Run consumes the mailbox until ctx is cancelled or a Shutdown event is
// processed. It is the only goroutine that ever touches Open Position, Risk
// Day, cooldowns, or Bot State.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.mailbox:
			if c.handle(ctx, ev) {
				return
			}
		}
	}
}

// handle dispatches one event. Returns true if the core should stop running
// (a Shutdown was processed).
func (c *Core) handle(ctx context.Context, ev events.Event) bool {
	switch e := ev.(type) {
	case events.Liquidation:
		c.onLiquidation(ctx, e)
	case events.Trade:
		// Caches are already updated by the feed reader; nothing further to
		// do here, the position monitor reads the cache on its own Tick.
	case events.BookTicker:
		// Same as Trade: cache already updated upstream.
	case events.Tick:
		c.onTick(ctx, e)
	case events.Command:
		c.onCommand(ctx, e)
	case events.FeedUnavailable:
		c.onFeedUnavailable(e)
	case events.Shutdown:
		c.onShutdown(ctx, e)
		return true
	default:
		c.logger.Warn("unrecognized event type", "type", fmt.Sprintf("%T", ev))
	}
	return false
}

func (c *Core) setState(state domain.BotState, reason string) {
	if c.state == state {
		return
	}
	c.state = state
	c.stateSnapshot.Store(state)
	metrics.SetBotState(string(state), allBotStates)
	c.logger.Info("state transition", "state", string(state), "reason", reason)
	c.sink.EnqueueBotState(domain.BotStateRecord{
		State:     state,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

// State returns the most recently published Bot State. It is safe to call
// from any goroutine (the Control Plane's heartbeat loop and its /healthz
// handler both do); the core goroutine is still the sole writer, publishing
// through the atomic snapshot in setState rather than exposing the mutable
// field itself.
func (c *Core) State() domain.BotState {
	return c.stateSnapshot.Load().(domain.BotState)
}

// HasOpenPosition reports whether a position is currently open.
func (c *Core) HasOpenPosition() bool { return c.openPos != nil }

func newTradeID() string { return uuid.NewString() }
