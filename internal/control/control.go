// Package control implements the Control Plane named in spec §4.6: an HTTP
// surface for operator commands plus a 5s heartbeat and a 5s poll of the
// shared store's control_commands table. Grounded in the teacher's main.go
// mux-with-/healthz idiom (http.NewServeMux + http.Server{Addr,Handler},
// served from a goroutine, shut down with a bounded context), generalized
// from a bare health endpoint to the full command surface.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
	"github.com/chidi150c/liqreversion/internal/execution"
	"github.com/chidi150c/liqreversion/internal/feed"
	"github.com/chidi150c/liqreversion/internal/sink"
	"github.com/chidi150c/liqreversion/internal/strategy"
)

const (
	heartbeatInterval = 5 * time.Second
	pollInterval      = 5 * time.Second
	replyTimeout      = 2 * time.Second
)

// Server is the Control Plane's HTTP surface plus its two background
// tickers (heartbeat publish, control-table poll).
type Server struct {
	addr    string
	core    *strategy.Core
	feed    *feed.Feed
	broker  execution.Broker
	sink    sink.Sink
	logger  *slog.Logger
	symbols []string

	httpServer *http.Server
}

// New builds a Control Plane server. feed and broker back the heartbeat's
// feed_connected/adapter_reachable fields; they may be nil in tests that
// only exercise the command handlers.
func New(addr string, core *strategy.Core, f *feed.Feed, broker execution.Broker, snk sink.Sink, symbols []string, logger *slog.Logger) *Server {
	s := &Server{
		addr:    addr,
		core:    core,
		feed:    f,
		broker:  broker,
		sink:    snk,
		symbols: symbols,
		logger:  logger.With("component", "control"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/control/pause", s.handleCommand(events.CmdPause))
	mux.HandleFunc("/control/resume", s.handleCommand(events.CmdResume))
	mux.HandleFunc("/control/flatten", s.handleCommand(events.CmdFlatten))
	mux.HandleFunc("/control/mode", s.handleSetMode)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler exposes the underlying mux for tests that want to drive the HTTP
// surface without a real listener.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run starts the HTTP server and both background tickers. It blocks until
// ctx is cancelled, then shuts the HTTP server down with a bounded timeout.
func (s *Server) Run(ctx context.Context) {
	go func() {
		s.logger.Info("control plane listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control plane server failed", "error", err)
		}
	}()

	go s.heartbeatLoop(ctx)
	go s.pollLoop(ctx)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"state":   string(s.core.State()),
		"symbols": s.symbols,
	})
}

// handleCommand returns a handler that posts kind to the core's mailbox and
// waits up to replyTimeout for the Strategy Core's reply.
func (s *Server) handleCommand(kind events.CommandKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.dispatch(w, events.Command{Kind: kind})
	}
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || (body.Mode != "paper" && body.Mode != "live") {
		http.Error(w, "mode must be \"paper\" or \"live\"", http.StatusBadRequest)
		return
	}
	s.dispatch(w, events.Command{Kind: events.CmdSetMode, Mode: body.Mode})
}

func (s *Server) dispatch(w http.ResponseWriter, cmd events.Command) {
	reply := make(chan events.CommandResult, 1)
	cmd.Reply = reply
	select {
	case s.core.Mailbox() <- cmd:
	case <-time.After(replyTimeout):
		http.Error(w, "strategy core unresponsive", http.StatusServiceUnavailable)
		return
	}

	select {
	case res := <-reply:
		w.Header().Set("Content-Type", "application/json")
		if !res.OK {
			w.WriteHeader(http.StatusConflict)
		}
		_ = json.NewEncoder(w).Encode(res)
	case <-time.After(replyTimeout):
		http.Error(w, "strategy core did not reply in time", http.StatusGatewayTimeout)
	}
}

// heartbeatLoop publishes a HealthCheck every 5s, per spec §4.6.
func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishHeartbeat(ctx)
		}
	}
}

func (s *Server) publishHeartbeat(ctx context.Context) {
	now := time.Now().UTC()
	state := s.core.State()

	feedConnected := state != domain.Errored && s.anySymbolFresh(now)
	adapterReachable := true
	if s.broker != nil {
		reachCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		_, err := s.broker.GetEquity(reachCtx)
		cancel()
		adapterReachable = err == nil
	}

	s.sink.EnqueueHealth(domain.HealthCheck{
		State:            state,
		LastHeartbeat:    now,
		FeedConnected:    feedConnected,
		AdapterReachable: adapterReachable,
		SinkReachable:    s.sink.Healthy(),
	})
}

// anySymbolFresh reports whether at least one configured symbol's book has
// updated within bookStaleAfter, our proxy for "the feed is still alive".
func (s *Server) anySymbolFresh(now time.Time) bool {
	if s.feed == nil {
		return true
	}
	for _, sym := range s.symbols {
		cache := s.feed.Cache(sym)
		if cache == nil {
			continue
		}
		if snap := cache.Snapshot(now); !snap.BookStale {
			return true
		}
	}
	return false
}

// pollLoop polls control_commands every 5s and forwards unprocessed rows to
// the Strategy Core's mailbox, per spec §4.6 ("polled every 5 s by the
// Control Plane's tick source").
func (s *Server) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Server) pollOnce(ctx context.Context) {
	rows, err := s.sink.PollPendingControlCommands(ctx)
	if err != nil {
		s.logger.Warn("control_commands poll failed", "error", err)
		return
	}
	for _, row := range rows {
		reply := make(chan events.CommandResult, 1)
		s.core.Mailbox() <- events.Command{Kind: row.Kind, Mode: row.Mode, Reply: reply}
		select {
		case <-reply:
		case <-time.After(replyTimeout):
			s.logger.Warn("polled control command timed out waiting for reply", "id", row.ID, "kind", row.Kind)
		}
		if err := s.sink.AckControlCommand(ctx, row.ID); err != nil {
			s.logger.Error("failed to ack control command", "id", row.ID, "error", err)
		}
	}
}
