// Package feed connects to the venue's combined websocket stream, parses
// inbound frames into typed events, and maintains the per-symbol caches that
// Rolling Statistics reads. Reconnect is bounded and backs off exponentially,
// matching the venue-feed idiom in the wider trading-bot pack (see DESIGN.md).
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/metrics"
)

const (
	maxReconnectAttempts = 10
	backoffBase          = time.Second
	pingInterval         = 30 * time.Second
	writeTimeout         = 10 * time.Second
	readIdleTimeout      = 2 * pingInterval // a missed ping-pong pair forces a reconnect
)

// Feed owns the websocket connection for a configured set of symbols and
// publishes parsed events onto the core's mailbox.
type Feed struct {
	url     string
	symbols map[string]struct{}
	mailbox chan<- events.Event
	logger  *slog.Logger

	caches map[string]*Cache

	connMu sync.Mutex
	conn   *websocket.Conn
}

// New returns a Feed for the given venue stream URL and symbol set. mailbox
// is the Strategy Core's single-consumer channel; Run will never block on it
// longer than it takes to enqueue (the channel is expected to be generously
// buffered by the caller).
func New(url string, symbols []string, mailbox chan<- events.Event, logger *slog.Logger) *Feed {
	caches := make(map[string]*Cache, len(symbols))
	symSet := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		caches[s] = NewCache(s)
		symSet[s] = struct{}{}
	}
	return &Feed{
		url:     url,
		symbols: symSet,
		mailbox: mailbox,
		logger:  logger.With("component", "feed"),
		caches:  caches,
	}
}

// Cache returns the per-symbol cache for Rolling Statistics to read.
// Returns nil for an unconfigured symbol.
func (f *Feed) Cache(symbol string) *Cache { return f.caches[symbol] }

// Rewire points the Feed at a different destination channel. Callers that
// need the Strategy Core fully constructed (so its Mailbox() is available)
// before the Feed that posts into it exists can pass a throwaway channel to
// New and swap in the real one with Rewire before calling Run.
func (f *Feed) Rewire(mailbox chan<- events.Event) { f.mailbox = mailbox }

// Run connects and maintains the websocket connection with bounded,
// exponentially backed-off reconnect, per spec §4.1. It blocks until ctx is
// cancelled or the reconnect ceiling is reached, in which case it posts a
// FeedUnavailable event to the mailbox and returns.
func (f *Feed) Run(ctx context.Context) {
	attempt := 0
	backoff := backoffBase

	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}

		// A connection that was actually established resets the attempt
		// counter and backoff before counting this disconnect, per spec
		// §4.1 ("on success reset the attempt counter") — otherwise a
		// long-lived feed that reconnects successfully many times over its
		// life would eventually hit the ceiling on connect count alone.
		if connected {
			attempt = 0
			backoff = backoffBase
		}

		attempt++
		if attempt >= maxReconnectAttempts {
			f.logger.Error("reconnect attempts exhausted, feed unavailable",
				"attempts", attempt, "last_error", err)
			f.post(events.FeedUnavailable{At: time.Now().UTC()})
			return
		}

		f.logger.Warn("feed disconnected, reconnecting",
			"attempt", attempt, "backoff", backoff, "error", err)
		metrics.FeedReconnects.Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// connectAndRead dials and reads until the connection drops or ctx is
// cancelled. The returned bool reports whether the dial itself succeeded
// (i.e. a connection was established at all), independent of how the read
// loop subsequently ended, so Run knows whether to reset its reconnect
// counter.
func (f *Feed) connectAndRead(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.logger.Info("feed connected", "url", f.url)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		f.dispatch(msg)
	}
}

// dispatch parses one inbound frame. Parse errors are logged and skipped;
// they never drop the connection, per spec §4.1 failure semantics.
func (f *Feed) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		f.logger.Warn("parse error: not a valid envelope", "error", err)
		return
	}

	switch {
	case env.Stream == "!forceOrder@arr":
		f.dispatchForceOrder(env.Data)
	case hasSuffix(env.Stream, "@aggTrade"):
		f.dispatchAggTrade(env.Data)
	case hasSuffix(env.Stream, "@bookTicker"):
		f.dispatchBookTicker(env.Data)
	default:
		f.logger.Debug("unrecognized stream, ignoring", "stream", env.Stream)
	}
}

func (f *Feed) dispatchForceOrder(data json.RawMessage) {
	var frame forceOrderFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		f.logger.Warn("parse error: forceOrder frame", "error", err)
		return
	}
	if _, ok := f.symbols[frame.O.Symbol]; !ok {
		return
	}
	price, err1 := strconv.ParseFloat(frame.O.Price, 64)
	qty, err2 := strconv.ParseFloat(frame.O.Qty, 64)
	if err1 != nil || err2 != nil {
		f.logger.Warn("parse error: forceOrder numeric fields", "symbol", frame.O.Symbol)
		return
	}
	side := events.Buy
	if frame.O.Side == "SELL" {
		side = events.Sell
	}
	f.post(events.Liquidation{
		Symbol:    frame.O.Symbol,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Timestamp: time.UnixMilli(frame.O.TimeMs).UTC(),
	})
}

func (f *Feed) dispatchAggTrade(data json.RawMessage) {
	var frame aggTradeFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		f.logger.Warn("parse error: aggTrade frame", "error", err)
		return
	}
	c, ok := f.caches[frame.Symbol]
	if !ok {
		return
	}
	price, err1 := strconv.ParseFloat(frame.Price, 64)
	qty, err2 := strconv.ParseFloat(frame.Qty, 64)
	if err1 != nil || err2 != nil {
		f.logger.Warn("parse error: aggTrade numeric fields", "symbol", frame.Symbol)
		return
	}
	at := time.UnixMilli(frame.TimeMs).UTC()
	c.ApplyTrade(price, qty, at)
	f.post(events.Trade{
		Symbol:       frame.Symbol,
		Price:        price,
		Quantity:     qty,
		IsBuyerMaker: frame.IsBuyerMaker,
		Timestamp:    at,
	})
}

func (f *Feed) dispatchBookTicker(data json.RawMessage) {
	var frame bookTickerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		f.logger.Warn("parse error: bookTicker frame", "error", err)
		return
	}
	c, ok := f.caches[frame.Symbol]
	if !ok {
		return
	}
	bid, err1 := strconv.ParseFloat(frame.BidPrice, 64)
	bidQty, err2 := strconv.ParseFloat(frame.BidQty, 64)
	ask, err3 := strconv.ParseFloat(frame.AskPrice, 64)
	askQty, err4 := strconv.ParseFloat(frame.AskQty, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		f.logger.Warn("parse error: bookTicker numeric fields", "symbol", frame.Symbol)
		return
	}
	now := time.Now().UTC()
	snap := BookSnapshot{BidPrice: bid, BidQty: bidQty, AskPrice: ask, AskQty: askQty, At: now}
	c.ApplyBookTicker(snap)
	f.post(events.BookTicker{
		Symbol:    frame.Symbol,
		BidPrice:  bid,
		BidQty:    bidQty,
		AskPrice:  ask,
		AskQty:    askQty,
		Timestamp: now,
	})
}

// post enqueues ev without ever blocking the read loop indefinitely; the
// mailbox is sized generously by the caller, so this only protects against a
// core that has already shut down.
func (f *Feed) post(ev events.Event) {
	select {
	case f.mailbox <- ev:
	default:
		f.logger.Warn("mailbox full, dropping event", "type", fmt.Sprintf("%T", ev))
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn := f.conn
			f.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
